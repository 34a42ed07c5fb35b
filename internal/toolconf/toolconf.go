// Package toolconf decodes dataset configuration files into tool
// specifications.
//
// A config file holds a single ln2t_tools section, either a mapping
//
//	ln2t_tools:
//	  freesurfer:
//	    version: "7.2.0"
//	    tool_args: "--recon-all all"
//	    participant-label: ["001", "042"]
//
// or a list of single key mappings
//
//	ln2t_tools:
//	  - freesurfer: {version: "7.2.0"}
//	  - fmriprep: {}
//
// Both spellings of the option keys are accepted, see optionSpellings.
package toolconf

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ln2t/watchdog/internal/model"

	"gopkg.in/yaml.v3"
)

const SectionKey = "ln2t_tools"

const (
	optVersion = "version"
	optArgs    = "args"
	optLabels  = "labels"
)

// optionSpellings lists the accepted keys of each option. The first
// non-empty one in this order wins, wherever it appears in the file.
var optionSpellings = []struct {
	opt  string
	keys []string
}{
	{optVersion, []string{"version"}},
	{optArgs, []string{"tool_args", "tool-args"}},
	{optLabels, []string{"participant-label", "participant_label"}},
}

// Load reads and parses one config file.
func Load(ctx context.Context, path, dataset string) ([]model.ToolSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(ctx, data, dataset, path)
}

// Parse decodes the content of a config file. Malformed entries of the tools
// section are logged and skipped; a malformed document is an error. The specs
// keep the order of the file.
func Parse(ctx context.Context, data []byte, dataset, path string) ([]model.ToolSpec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%s: empty document: %w", path, model.ErrConfigShape)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: top level is %s, expected mapping: %w", path, kindName(root), model.ErrConfigShape)
	}

	section := lookup(root, SectionKey)
	if section == nil {
		return nil, fmt.Errorf("%s: no %q key: %w", path, SectionKey, model.ErrNoToolsSection)
	}

	var entries []*yaml.Node // key, value pairs
	switch {
	case isNull(section):
		return nil, nil
	case section.Kind == yaml.MappingNode:
		entries = section.Content
	case section.Kind == yaml.SequenceNode:
		for _, item := range section.Content {
			if item.Kind != yaml.MappingNode {
				slog.WarnContext(ctx, "skipping non-mapping list entry", "path", path, "line", item.Line, "kind", kindName(item))
				continue
			}
			entries = append(entries, item.Content...)
		}
	default:
		return nil, fmt.Errorf("%s: %q is %s, expected mapping or list: %w", path, SectionKey, kindName(section), model.ErrConfigShape)
	}

	specs := make([]model.ToolSpec, 0, len(entries)/2)
	for i := 0; i+1 < len(entries); i += 2 {
		key, value := entries[i], entries[i+1]
		spec := model.ToolSpec{
			Tool:       key.Value,
			Dataset:    dataset,
			ConfigFile: path,
		}
		if !isNull(value) {
			if value.Kind != yaml.MappingNode {
				slog.WarnContext(ctx, "tool options should be a mapping, skipping", "path", path, "tool", key.Value, "kind", kindName(value))
				continue
			}
			applyOptions(ctx, &spec, value)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func applyOptions(ctx context.Context, spec *model.ToolSpec, options *yaml.Node) {
	values := make(map[string]*yaml.Node, len(options.Content)/2)
	for i := 0; i+1 < len(options.Content); i += 2 {
		values[options.Content[i].Value] = options.Content[i+1]
	}

	known := make(map[string]bool, 5)
	for _, o := range optionSpellings {
		for _, key := range o.keys {
			known[key] = true
			value, ok := values[key]
			if !ok || isNull(value) {
				continue
			}
			if apply(spec, o.opt, value) {
				break
			}
		}
	}
	for i := 0; i+1 < len(options.Content); i += 2 {
		if key := options.Content[i].Value; !known[key] {
			slog.DebugContext(ctx, "ignoring unknown tool option", "tool", spec.Tool, "option", key)
		}
	}
}

// apply sets opt from value and reports whether it was non-empty.
func apply(spec *model.ToolSpec, opt string, value *yaml.Node) bool {
	switch opt {
	case optVersion:
		spec.Version = scalar(value)
		return spec.Version != ""
	case optArgs:
		spec.Args = scalar(value)
		return spec.Args != ""
	case optLabels:
		spec.Labels = labels(value)
		return len(spec.Labels) > 0
	}
	return false
}

// labels accepts a list or a single scalar. Scalars are kept verbatim, so an
// unquoted 001 stays "001".
func labels(n *yaml.Node) []string {
	if n.Kind != yaml.SequenceNode {
		if s := scalar(n); s != "" {
			return []string{s}
		}
		return nil
	}
	ret := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		if s := scalar(item); s != "" {
			ret = append(ret, s)
		}
	}
	return ret
}

func scalar(n *yaml.Node) string {
	if n.Kind != yaml.ScalarNode || isNull(n) {
		return ""
	}
	return n.Value
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar " + n.ShortTag()
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
