package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/pipeline"
	"github.com/hammamikhairi/vocalx/internal/playback"
	"github.com/hammamikhairi/vocalx/internal/remote"
)

func newSpeakCommand(a *app) *cobra.Command {
	var (
		req  remote.TTSRequest
		out  string
		play bool
	)
	cmd := &cobra.Command{
		Use:     "tts <text>",
		Short:   "Generate speech from text",
		Example: `vocalx tts "Welcome back" -o welcome.wav --play`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Text = args[0]
			res, err := a.runJob(cmd, func(opts ...pipeline.Option) *pipeline.Job {
				return pipeline.NewSpeechJob(a.client, req, opts...)
			})
			if err != nil {
				return err
			}
			printMetadata(cmd, res)
			if out == "" && !play {
				return nil
			}

			data, err := a.client.Download(cmd.Context(), res.Locator)
			if err != nil {
				return err
			}
			speech := domain.NewArtifact(data, "audio/wav", domain.ArtifactFilename("speech", "wav", time.Now()), domain.SourceProcessed)
			if out != "" {
				if err := os.WriteFile(out, speech.Data(), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", out, speech.SizeBytes())
			}
			if play {
				return a.playToEnd(cmd.Context(), cmd.OutOrStdout(), speech)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Language, "language", "en", "speech language")
	f.Float64Var(&req.Exaggeration, "exaggeration", 0.5, "emotion intensity between 0 and 1")
	f.Float64Var(&req.CFGWeight, "cfg-weight", 0.5, "guidance weight between 0 and 1")
	f.StringVarP(&out, "out", "o", "", "save the speech to this path")
	f.BoolVar(&play, "play", false, "play the speech when it is ready")
	return cmd
}

// playToEnd plays a WAV artifact on the processed surface and returns
// when it finishes or ctx is done.
func (a *app) playToEnd(ctx context.Context, out io.Writer, art *domain.Artifact) error {
	rate, chans, err := playback.WAVFormat(art.Data())
	if err != nil {
		return err
	}
	output, err := playback.NewOutput(a.log, rate, chans)
	if err != nil {
		return err
	}

	coord := playback.New(a.log)
	done := make(chan playback.Event, 1)
	sink, err := output.NewSink(playback.Processed, art, func(e playback.Event) {
		coord.HandleEvent(e)
		select {
		case done <- e:
		default:
		}
	})
	if err != nil {
		return err
	}
	coord.Attach(playback.Processed, sink)
	defer coord.StopAll()

	if err := coord.Toggle(playback.Processed); err != nil {
		return err
	}
	fmt.Fprintln(out, "playing...")
	select {
	case e := <-done:
		if e.Kind == playback.Failed {
			return e.Err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
