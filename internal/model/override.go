package model

import (
	"github.com/spf13/viper"
)

// Keys understood by ApplyOverrides. Each one can be bound to a flag or set
// through a WATCHDOG_<KEY> environment variable.
const (
	KeyCodeDir  = "code_dir"
	KeyStateDir = "state_dir"
	KeyRunner   = "runner"
	KeyVerbose  = "verbose"
	KeyDryRun   = "dry_run"
)

// NewViper returns a viper instance reading WATCHDOG_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("watchdog")
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies the explicitly set keys of v over cfg. The config
// file is the base layer, flags and environment win.
func ApplyOverrides(cfg *Config, v *viper.Viper) {
	if v == nil {
		return
	}
	if v.IsSet(KeyCodeDir) {
		cfg.CodeDir = v.GetString(KeyCodeDir)
	}
	if v.IsSet(KeyStateDir) {
		cfg.StateDir = v.GetString(KeyStateDir)
	}
	if v.IsSet(KeyRunner) {
		cfg.Runner = v.GetString(KeyRunner)
	}
	if v.IsSet(KeyVerbose) && v.GetBool(KeyVerbose) {
		cfg.Service.Verbose = true
	}
	if v.IsSet(KeyDryRun) && v.GetBool(KeyDryRun) {
		cfg.Service.DryRun = true
	}
}
