package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/validate"
)

// storeVoice checks a sample against the clone ceiling before it reaches
// the library, whichever backend the store ends up using.
func storeVoice(ctx context.Context, store domain.VoiceStore, sample *domain.Artifact, limits validate.Constraints, name, desc string) (domain.SavedVoice, error) {
	if err := validate.Validate(validate.FromArtifact(sample), limits).Err(); err != nil {
		return domain.SavedVoice{}, err
	}
	return store.Save(ctx, sample, name, desc)
}

func newVoicesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "Manage the saved voice library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved voices",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.voiceStore(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			voices, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(voices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no saved voices")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSIZE\tCREATED\tDESCRIPTION")
			for _, v := range voices {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", v.ID, v.Name, v.FileSizeBytes, v.CreatedAt.Local().Format("2006-01-02 15:04"), v.Description)
			}
			return w.Flush()
		},
	}

	var desc string
	save := &cobra.Command{
		Use:   "save <name> <audio>",
		Short: "Add a voice sample to the library",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, limits, _, _ := a.limits()
			sample, err := validate.Open(args[1], limits)
			if err != nil {
				return err
			}
			store, err := a.voiceStore(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			v, err := storeVoice(cmd.Context(), store, sample, limits, args[0], desc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved voice %q as %s\n", v.Name, v.ID)
			return nil
		},
	}
	save.Flags().StringVar(&desc, "description", "", "short description")

	del := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a saved voice",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.voiceStore(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	var (
		text string
		out  string
	)
	clone := &cobra.Command{
		Use:   "clone <id>",
		Short: "Speak text with a saved voice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				return fmt.Errorf("--text is required")
			}
			store, err := a.voiceStore(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			res, err := store.CloneWithText(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "result: %s (%.1fs, took %.1fs)\n", res.AudioURL, res.DurationSeconds, res.ProcessingTimeSeconds)
			return a.download(cmd, res.AudioURL, out)
		},
	}
	clone.Flags().StringVar(&text, "text", "", "text to speak")
	clone.Flags().StringVarP(&out, "out", "o", "", "download the result to this path")

	cmd.AddCommand(list, save, del, clone)
	return cmd
}
