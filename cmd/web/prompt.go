package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"SonicMirror/pkg/music"
	"SonicMirror/pkg/prompts"
)

func newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List the generation features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range prompts.Features() {
				f, _ := prompts.Lookup(name)
				kind := "text"
				if f.Structured {
					kind = "json"
				}
				if f.RequiresPartner {
					kind += ", needs partner"
				}
				fmt.Fprintf(out, "%-22s %s\n", name, kind)
			}
			return nil
		},
	}
}

func newPromptCmd() *cobra.Command {
	var (
		opts    prompts.Options
		partner string
	)
	cmd := &cobra.Command{
		Use:   "prompt <feature> [profile.json]",
		Short: "Print the prompt a feature builds for a listening profile",
		Long:  "Print the prompt a feature builds for a listening profile. The profile is read from the file argument, or from standard input when it is omitted or \"-\".",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, ok := prompts.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown feature %q (see 'web features')", args[0])
			}
			src := "-"
			if len(args) == 2 {
				src = args[1]
			}
			p, err := readProfile(src, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if partner != "" {
				pp, err := readProfile(partner, cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("partner: %w", err)
				}
				opts.Partner = &pp
			}
			if f.RequiresPartner && opts.Partner == nil {
				return fmt.Errorf("%s needs --partner", f.Name)
			}
			fmt.Fprintln(cmd.OutOrStdout(), f.Build(p, opts))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Mood, "mood", "", "target mood")
	cmd.Flags().StringVar(&opts.Occasion, "occasion", "", "playlist occasion")
	cmd.Flags().IntVar(&opts.TrackCount, "tracks", 0, "playlist length")
	cmd.Flags().StringVar(&partner, "partner", "", "second profile for musical-compatibility")
	return cmd
}

// readProfile decodes and validates a profile from path, or from stdin when
// path is "-".
func readProfile(path string, stdin io.Reader) (music.ListeningProfile, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return music.ListeningProfile{}, err
		}
		defer f.Close()
		r = f
	}
	var p music.ListeningProfile
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return p, fmt.Errorf("decode profile: %w", err)
	}
	return p, p.Validate()
}
