package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/ln2t/watchdog/internal/ledger"
	"github.com/ln2t/watchdog/internal/log"
	"github.com/ln2t/watchdog/internal/model"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	userConfigPath string // /default/config/path/watchdog on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	logCloser      io.Closer

	// resolved from config after initWatchdog
	codeDir  string
	stateDir string

	flagConfigFilePath string // value of --config flag
	overrides          *viper.Viper
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "watchdog")
	overrides = model.NewViper()
}

func main() {
	// root flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is watchdog.yaml in current directory or in "+userConfigPath)
	flags.BoolP("verbose", "v", false, "verbose logging")
	flags.String("code-dir", "", "directory holding the <dataset>-code trees (default ~/code)")
	flags.String("state-dir", "", "directory holding the run history (default ~/.local/state/ln2t_watchdog)")
	flags.String("runner", "", "tool-runner executable (default ln2t_tools)")
	mustBind(model.KeyVerbose, flags.Lookup("verbose"))
	mustBind(model.KeyCodeDir, flags.Lookup("code-dir"))
	mustBind(model.KeyStateDir, flags.Lookup("state-dir"))
	mustBind(model.KeyRunner, flags.Lookup("runner"))

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initWatchdog
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("watchdog failed", "err", err)
		os.Exit(1)
	}
}

func mustBind(key string, flag *pflag.Flag) {
	if err := overrides.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

var rootCmd = &cobra.Command{
	Use:          "watchdog",
	Short:        "Nightly dispatcher of ln2t_tools pipelines",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a watchdog",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Fprintln(out, "watchdog: version info not available")
			return
		}

		if configPath != "" {
			fmt.Fprintf(out, "config:   %s\n", configPath)
		}
		fmt.Fprintf(out, "watchdog: %s\n", info.Main.Version)
		fmt.Fprintf(out, "go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Fprintf(out, "commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Fprintf(out, "date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Fprintf(out, "dirty:    %s\n", s.Value)
			}
		}
	},
}

func initWatchdog(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("WATCHDOGCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "watchdog.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	var err error
	if configPath == "" {
		configPath = filepath.Join(userConfigPath, "watchdog.yaml")
		config, err = storeDefaultConfig(configPath)
	} else {
		config, err = loadConfig(configPath)
	}
	if err != nil {
		return err
	}

	// flags and WATCHDOG_* variables have a precedence over config file
	model.ApplyOverrides(&config, overrides)

	logger, closer, err := log.Open(config.Service.Log, config.Service.LogFormat, config.Service.Verbose)
	if err != nil {
		return err
	}
	logCloser = closer
	slog.SetDefault(logger)

	codeDir, err = config.CodeDirPath()
	if err != nil {
		return err
	}
	stateDir, err = config.StateDirPath()
	if err != nil {
		return err
	}

	slog.Debug("watchdog run", "configPath", configPath)
	slog.Debug("watchdog run", "config", config)
	return nil
}

func storeDefaultConfig(path string) (model.Config, error) {
	cfg := model.DefaultConfig()
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return cfg, fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return cfg, fmt.Errorf("creating file %s: %w", path, err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	err = errors.Join(enc.Encode(cfg), enc.Close(), f.Close())
	if err != nil {
		return cfg, fmt.Errorf("storing configuration: %w", err)
	}
	return cfg, nil
}

func loadConfig(path string) (model.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error(d.String(), d.Attr("detail"))
		}
		return model.Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func newLedger() *ledger.Ledger {
	return ledger.New(stateDir)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
