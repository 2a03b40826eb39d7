// Command web runs the SonicMirror API server. Besides `serve` it offers a
// couple of offline helpers: `features` lists the generation features and
// `prompt` prints the prompt a feature would send for a profile file, which
// is handy when tuning prompts without spending provider quota.

package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"SonicMirror/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Configuration is loaded before any
// subcommand runs so every command logs the same way.
func newRootCmd() *cobra.Command {
	var cfg config.Config
	root := &cobra.Command{
		Use:           "web",
		Short:         "SonicMirror: Spotify listening insights generated by a language model",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			return cfg.ConfigureLogging(log.StandardLogger())
		},
	}
	root.AddCommand(
		newServeCmd(&cfg),
		newFeaturesCmd(),
		newPromptCmd(),
	)
	return root
}
