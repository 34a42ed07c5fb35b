package model

import (
	"fmt"
	"io"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
	"github.com/mitchellh/go-homedir"

	_ "embed"
)

const (
	ServiceModeManual = "manual"
	ServiceModeTimer  = "timer"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	LogFormatJSON = "json"
	LogFormatText = "text"

	DefaultNamespace = "ln2t_watchdog"
	DefaultRunner    = "ln2t_tools"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource, cue.Filename("config.cue"))
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

// Config is the watchdog application configuration (watchdog.yaml).
type Config struct {
	Version   int     `json:"version" yaml:"version"`
	CodeDir   string  `json:"code_dir,omitempty" yaml:"code_dir,omitempty"`   // default ~/code
	StateDir  string  `json:"state_dir,omitempty" yaml:"state_dir,omitempty"` // default ~/.local/state/ln2t_watchdog
	Namespace string  `json:"namespace" yaml:"namespace"`                     // config dir name inside <dataset>-code
	Runner    string  `json:"runner" yaml:"runner"`                           // tool-runner executable
	Service   Service `json:"service" yaml:"service"`
}

type Service struct {
	Mode      string    `json:"mode" yaml:"mode"` // "manual" | "timer"
	Verbose   bool      `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	DryRun    bool      `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	Log       string    `json:"log,omitempty" yaml:"log,omitempty"`               // "stderr"|"stdout"|"discard"|path
	LogFormat string    `json:"log_format,omitempty" yaml:"log_format,omitempty"` // "json"|"text"
	Schedule  *Schedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// Schedule of the timer mode. Exactly one of the fields is expected.
type Schedule struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"` // ISO-8601, e.g. P1D
}

func DefaultConfig() Config {
	return Config{
		Version:   0,
		Namespace: DefaultNamespace,
		Runner:    DefaultRunner,
		Service: Service{
			Mode: ServiceModeManual,
			Log:  LogStderr,
		},
	}
}

// LoadConfig validates YAML from r against the CUE schema and decodes it.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("watchdog.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),
		cue.Concrete(true),
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}
	if out.Service.Mode == ServiceModeTimer {
		if out.Service.Schedule == nil || (out.Service.Schedule.Cron == "" && out.Service.Schedule.Duration == "") {
			return Config{}, fmt.Errorf("service.schedule: %w", ErrNoSchedule)
		}
	}
	return out, nil
}

// CodeDirPath returns the expanded directory holding the <dataset>-code trees.
func (c Config) CodeDirPath() (string, error) {
	if c.CodeDir != "" {
		return homedir.Expand(c.CodeDir)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, "code"), nil
}

// StateDirPath returns the expanded directory holding the run ledger.
func (c Config) StateDirPath() (string, error) {
	if c.StateDir != "" {
		return homedir.Expand(c.StateDir)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", DefaultNamespace), nil
}
