package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Stderr.WriteString("jumptrain: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every command.
type rootOptions struct {
	ConfigFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "jumptrain",
		Short: "Jump training orchestration engine",
		Long: `jumptrain drives a parachute jump training session through its curriculum:
it sequences procedures, waits for their completion signals, handles
instructor commands and records an evaluation for every procedure.`,
		SilenceUsage: true,
		// Running the bare binary starts the server.
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file (default $JUMPTRAIN_CONFIG)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newCatalogCommand())
	return cmd
}
