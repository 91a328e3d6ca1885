package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/playback"
	"github.com/hammamikhairi/vocalx/internal/validate"
)

func newPlayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "play <original.wav> [processed.wav]",
		Short: "Compare an original and a processed take, one at a time",
		Long: `Plays WAV files through the default output. Commands on stdin:
  o   play/pause the original
  p   play/pause the processed take
  q   quit
Starting one take stops the other.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limits, _, _, _ := a.limits()
			takes := make([]*domain.Artifact, len(args))
			for i, path := range args {
				t, err := validate.Open(path, limits)
				if err != nil {
					return err
				}
				takes[i] = t
			}

			rate, chans, err := playback.WAVFormat(takes[0].Data())
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			output, err := playback.NewOutput(a.log, rate, chans)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			coord := playback.New(a.log)
			notify := func(e playback.Event) {
				coord.HandleEvent(e)
				if e.Kind == playback.Ended {
					fmt.Fprintf(out, "%s finished\n", e.Surface)
				} else {
					fmt.Fprintf(out, "%s failed: %v\n", e.Surface, e.Err)
				}
			}

			surfaces := []domain.Surface{playback.Original, playback.Processed}
			for i, t := range takes {
				sink, err := output.NewSink(surfaces[i], t, notify)
				if err != nil {
					return fmt.Errorf("%s: %w", args[i], err)
				}
				coord.Attach(surfaces[i], sink)
			}
			defer coord.StopAll()

			fmt.Fprintln(out, "o = original, p = processed, q = quit")
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				var s domain.Surface
				switch strings.TrimSpace(sc.Text()) {
				case "o":
					s = playback.Original
				case "p":
					s = playback.Processed
				case "q":
					return nil
				default:
					continue
				}
				if err := coord.Toggle(s); err != nil {
					fmt.Fprintln(out, err)
					continue
				}
				if st := coord.State(); st.Playing {
					fmt.Fprintf(out, "playing %s\n", st.Active)
				} else {
					fmt.Fprintln(out, "paused")
				}
			}
			return sc.Err()
		},
	}
}
