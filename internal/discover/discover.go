// Package discover finds datasets and their watchdog configuration files.
//
// The layout is
//
//	<code_dir>/<dataset>-code/<namespace>/*.yaml
//
// where the dataset name starts with a four digit year, e.g.
// 2024-Happy_Dog-abc123-code.
package discover

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

var datasetDirRx = regexp.MustCompile(`^(\d{4}-.+)-code$`)

// Dataset is a discovered dataset with at least one config file.
type Dataset struct {
	Dir         string // <code_dir>/<dataset>-code
	Name        string
	ConfigFiles []string // absolute, sorted
}

// ConfigDir returns the namespace directory of the dataset.
func (d Dataset) ConfigDir(namespace string) string {
	return filepath.Join(d.Dir, namespace)
}

// LogDir returns the directory receiving job output files.
func (d Dataset) LogDir(namespace string) string {
	return filepath.Join(d.Dir, namespace, "logs")
}

// DatasetName extracts the dataset name from a code directory name:
// 2024-Happy_Dog-abc123-code gives 2024-Happy_Dog-abc123. The second return
// value is false when the name does not follow the convention.
func DatasetName(dirName string) (string, bool) {
	m := datasetDirRx.FindStringSubmatch(dirName)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Datasets iterates over datasets under codeDir in name order. A missing
// codeDir yields nothing. Errors reading a single dataset are yielded and the
// iteration continues with the next one.
func Datasets(ctx context.Context, codeDir, namespace string) iter.Seq2[Dataset, error] {
	return func(yield func(Dataset, error) bool) {
		entries, err := os.ReadDir(codeDir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				yield(Dataset{}, err)
			}
			return
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				return
			}
			if !entry.IsDir() {
				continue
			}
			name, ok := DatasetName(entry.Name())
			if !ok {
				continue
			}
			ds := Dataset{
				Dir:  filepath.Join(codeDir, entry.Name()),
				Name: name,
			}
			files, err := configFiles(ds.ConfigDir(namespace))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				if !yield(ds, err) {
					return
				}
				continue
			}
			if len(files) == 0 {
				continue
			}
			ds.ConfigFiles = files
			if !yield(ds, nil) {
				return
			}
		}
	}
}

// Scan collects Datasets, skipping the ones which could not be read.
func Scan(ctx context.Context, codeDir, namespace string) []Dataset {
	var ret []Dataset
	for ds, err := range Datasets(ctx, codeDir, namespace) {
		if err != nil {
			slog.WarnContext(ctx, "can't read dataset, skipping", "dir", ds.Dir, "error", err)
			continue
		}
		ret = append(ret, ds)
	}
	return ret
}

func configFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}
