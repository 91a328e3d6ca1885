package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/vocalx/internal/remote"
)

func newEnginesCommand(a *app) *cobra.Command {
	var stt bool
	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List the backend's speech engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind := remote.EnginesTTS
			if stt {
				kind = remote.EnginesSTT
			}
			cat, err := a.client.ListEngines(cmd.Context(), kind)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tAVAILABLE\tDESCRIPTION")
			for _, e := range cat.Items {
				fmt.Fprintf(w, "%s\t%v\t%s\n", e.Name, e.Available, e.Description)
			}
			if cat.Offline {
				fmt.Fprintln(w, "(backend unreachable, built-in list)\t\t")
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&stt, "stt", false, "list speech-to-text engines instead of text-to-speech")
	return cmd
}
