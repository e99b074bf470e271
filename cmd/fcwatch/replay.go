package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/omochice/fcchat/pkg/client"
	"github.com/omochice/fcchat/pkg/model"
)

func newReplayCmd(root *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "replay <capture>",
		Short: "Replay a packet capture into a fresh registry and summarize it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}
			opts, err := cfg.ClientOptions()
			if err != nil {
				return err
			}
			opts.Logger = logger
			opts.Registry = model.NewRegistry(logger)
			opts.UseCachedServerConfig = true

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			c := client.New(opts)
			n, err := c.Replay(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(modelViews(opts.Registry.Snapshots()))
			}
			return writeSummary(cmd.OutOrStdout(), n, opts.Registry)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the models as JSON")
	return cmd
}

func writeSummary(w io.Writer, packets int, reg *model.Registry) error {
	counts := make(map[string]int)
	for _, s := range reg.Snapshots() {
		counts[s.VideoState().String()]++
	}
	states := make([]string, 0, len(counts))
	for st := range counts {
		states = append(states, st)
	}
	slices.Sort(states)

	if _, err := fmt.Fprintf(w, "packets: %d\nmodels: %d\n", packets, reg.Len()); err != nil {
		return err
	}
	for _, st := range states {
		if _, err := fmt.Fprintf(w, "  %s: %d\n", st, counts[st]); err != nil {
			return err
		}
	}
	return nil
}
