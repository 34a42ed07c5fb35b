package command_test

import (
	"testing"

	"github.com/ln2t/watchdog/internal/command"
	"github.com/ln2t/watchdog/internal/model"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBuild(t *testing.T) {
	t.Parallel()
	type then struct {
		args    []string
		display string
	}
	cases := []struct {
		scenario string
		given    model.ToolSpec
		then     then
	}{
		{
			scenario: "all fields",
			given: model.ToolSpec{
				Tool:    "freesurfer",
				Dataset: "2024-Happy_Dog-abc123",
				Version: "7.2.0",
				Args:    "--fs-noreconall",
				Labels:  []string{"001", "042"},
			},
			then: then{
				args: []string{
					"ln2t_tools", "freesurfer", "--dataset", "2024-Happy_Dog-abc123",
					"--version", "7.2.0",
					"--tool-args", "--fs-noreconall",
					"--participant-label", "001", "042",
				},
				display: `ln2t_tools freesurfer --dataset 2024-Happy_Dog-abc123 --version 7.2.0 --tool-args "--fs-noreconall" --participant-label 001 042`,
			},
		},
		{
			scenario: "required only",
			given:    model.ToolSpec{Tool: "fmriprep", Dataset: "ds"},
			then: then{
				args:    []string{"ln2t_tools", "fmriprep", "--dataset", "ds"},
				display: "ln2t_tools fmriprep --dataset ds",
			},
		},
		{
			scenario: "args with spaces stay one element",
			given:    model.ToolSpec{Tool: "freesurfer", Dataset: "ds", Args: "--recon-all all"},
			then: then{
				args:    []string{"ln2t_tools", "freesurfer", "--dataset", "ds", "--tool-args", "--recon-all all"},
				display: `ln2t_tools freesurfer --dataset ds --tool-args "--recon-all all"`,
			},
		},
		{
			scenario: "labels without version",
			given:    model.ToolSpec{Tool: "qsiprep", Dataset: "ds", Labels: []string{"007"}},
			then: then{
				args:    []string{"ln2t_tools", "qsiprep", "--dataset", "ds", "--participant-label", "007"},
				display: "ln2t_tools qsiprep --dataset ds --participant-label 007",
			},
		},
		{
			scenario: "empty labels slice is absent",
			given:    model.ToolSpec{Tool: "qsiprep", Dataset: "ds", Labels: []string{}},
			then: then{
				args:    []string{"ln2t_tools", "qsiprep", "--dataset", "ds"},
				display: "ln2t_tools qsiprep --dataset ds",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			d := command.Build("ln2t_tools", tc.given)
			require.Equal(t, tc.then.args, d.Args)
			require.Equal(t, tc.then.display, d.Display)
			require.Equal(t, "ln2t_tools", d.Name())

			again := command.Build("ln2t_tools", tc.given)
			require.Equal(t, d, again)
			if tc.given.Version == "" {
				require.NotContains(t, d.Args, "--version")
			}
			if tc.given.Args == "" {
				require.NotContains(t, d.Args, "--tool-args")
			}
		})
	}
}
