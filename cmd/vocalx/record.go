package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/vocalx/internal/capture"
	"github.com/hammamikhairi/vocalx/internal/display"
	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/meter"
)

func newRecordCommand(a *app) *cobra.Command {
	var (
		out       string
		device    string
		saveVoice string
		desc      string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone with a live level meter",
		Example: `vocalx record --out take.wav
vocalx record --save-voice "Narrator"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := a.cfg.Capture
			if device == "" {
				device = cc.Device
			}
			constraints := domain.CaptureConstraints{
				SampleRate: cc.SampleRate,
				Channels:   cc.Channels,
				DeviceName: device,
			}

			var view *display.RecorderView
			ctrl := capture.New(capture.NewMalgoDevice(a.log), a.log,
				capture.WithTempDir(cc.TempDir),
				capture.WithMeterOptions(
					meter.WithInterval(cc.MeterInterval.Duration),
					meter.WithBuckets(cc.MeterBuckets),
				),
				capture.WithEventSink(func(e capture.Event) {
					if view != nil {
						view.Send(e)
					}
				}),
			)
			defer ctrl.Close()

			fmt.Fprint(cmd.OutOrStdout(), display.RenderBanner())
			view = display.NewRecorderView(cmd.Context(), ctrl, constraints)
			take, err := view.Run()
			if err != nil {
				return err
			}
			if take == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing recorded")
				return nil
			}

			if out == "" {
				out = take.SuggestedFilename()
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(out, take.Data(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", out, take.SizeBytes())

			if saveVoice == "" {
				return nil
			}
			_, limits, _, _ := a.limits()
			store, err := a.voiceStore(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			v, err := storeVoice(cmd.Context(), store, take, limits, saveVoice, desc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved voice %q as %s\n", v.Name, v.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output WAV path (default recording-<time>.wav)")
	cmd.Flags().StringVar(&device, "device", "", "capture device name (default from config)")
	cmd.Flags().StringVar(&saveVoice, "save-voice", "", "also store the take in the voice library under this name")
	cmd.Flags().StringVar(&desc, "description", "", "description for --save-voice")
	return cmd
}
