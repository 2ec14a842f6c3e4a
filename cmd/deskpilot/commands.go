package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

// runOptions holds flags for the run command.
type runOptions struct {
	metricsAddr   string
	maxIterations int
	images        int
	noBrowser     bool
	jsonOut       bool
	record        string
	replay        string
}

func buildRunCmd() *cobra.Command {
	opts := &runOptions{images: -1}
	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run the agent loop for a task",
		Long: `Run sends the prompt to the configured model and executes the tool calls it
makes until it stops calling tools. Reads the prompt from stdin when no
argument is given.

--record saves every model response and tool result to a tape file.
--replay serves a tape back instead of calling the model and the tools,
starting from the recorded prompt unless one is given.`,
		Example: `  deskpilot run "take a screenshot and describe what is open"
  echo "list files in ~/Downloads" | deskpilot run --no-browser
  deskpilot run --record run.tape.json "open a terminal"
  deskpilot run --replay run.tape.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus /metrics on this address while running")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "Override agent.max_iterations")
	cmd.Flags().IntVar(&opts.images, "images", -1, "Override agent.only_n_most_recent_images")
	cmd.Flags().BoolVar(&opts.noBrowser, "no-browser", false, "Do not offer the browser tool")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Print the final history as JSON instead of a transcript")
	cmd.Flags().StringVar(&opts.record, "record", "", "Write a tape of the run to this file")
	cmd.Flags().StringVar(&opts.replay, "replay", "", "Replay a tape instead of calling the model and tools")
	return cmd
}

func buildGeometryCmd() *cobra.Command {
	var point string
	cmd := &cobra.Command{
		Use:   "geometry",
		Short: "Print the probed display geometry",
		Long: `Geometry probes the display the same way run does and prints the physical
size, the logical preset the model sees, the DPI scale and taskbar offset.
With --point it also prints where a logical coordinate lands on screen.`,
		Example: "  deskpilot geometry --point 640,400",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGeometry(cmd, point)
		},
	}
	cmd.Flags().StringVar(&point, "point", "", "Logical x,y coordinate to translate")
	return cmd
}

func buildScreenshotCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "screenshot",
		Short: "Capture the screen as the model would see it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(output) == "" {
				return errors.New("--output is required")
			}
			return runScreenshot(cmd, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write the encoded PNG to")
	return cmd
}

func buildToolsCmd() *cobra.Command {
	var noBrowser bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool descriptors offered to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd, noBrowser)
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Leave out the browser tool")
	return cmd
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}

	var requireModel bool
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, requireModel)
		},
	}
	validateCmd.Flags().BoolVar(&requireModel, "require-model", false, "Also fail when the model key or name is missing")

	cmd.AddCommand(schemaCmd, validateCmd)
	return cmd
}
