package main

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

const toolConfigTemplate = `# ln2t_watchdog configuration template
#
# Edit this file to specify which ln2t_tools pipelines to run and their settings.
# Place it in: ~/code/<dataset>-code/ln2t_watchdog/<name>.yaml

ln2t_tools:
  # Example: freesurfer pipeline
  # freesurfer:
  #   version: "7.2.0"
  #   tool_args: "--recon-all all"
  #   participant-label:
  #     - "001"
  #     - "042"
  #     - "666"
  #
  # Example: fmriprep pipeline
  # fmriprep:
  #   version: "21.1.4"
  #   tool_args: "--fs-noreconall"
  #   participant-label:
  #     - "001"
  #     - "042"
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "generate a template dataset configuration file",
	Args:  cobra.NoArgs,
	RunE:  doInit,
}

func init() {
	initCmd.Flags().StringP("output", "o", "ln2t_watchdog_config.yaml", "output file path")
}

func doInit(cmd *cobra.Command, _ []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	path, err := writeTemplate(output)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Template created: %s\n", path)
	fmt.Fprintf(out, "Edit this file and place it in: ~/code/<dataset>-code/%s/\n", config.Namespace)
	return nil
}

func writeTemplate(output string) (string, error) {
	path, err := homedir.Expand(output)
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", output, err)
	}
	if err := os.WriteFile(path, []byte(toolConfigTemplate), 0o644); err != nil {
		return "", fmt.Errorf("writing template: %w", err)
	}
	return path, nil
}
