package model

// ToolSpec is one desired tool invocation parsed from a dataset config file.
// It is built fresh on every scan and never persisted.
type ToolSpec struct {
	Tool    string
	Dataset string
	// Version and Args are optional, empty means absent.
	Version string
	Args    string
	Labels  []string

	// ConfigFile is the originating config, used in diagnostics only.
	ConfigFile string
}
