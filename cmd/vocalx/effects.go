package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/pipeline"
	"github.com/hammamikhairi/vocalx/internal/preview"
	"github.com/hammamikhairi/vocalx/internal/validate"
)

func newEffectsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "effects",
		Short: "Apply voice effects (pitch, speed, robot, echo, reverb)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newEffectsPresetsCommand(a),
		newEffectsPreviewCommand(a),
		newEffectsApplyCommand(a),
	)
	return cmd
}

func newEffectsPresetsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List effect presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.client.ListPresets(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
			for _, p := range cat.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Description)
			}
			if cat.Offline {
				fmt.Fprintln(w, "\t(backend unreachable, built-in list)\t")
			}
			return w.Flush()
		},
	}
}

// effectFlags are the parameter flags shared by preview and apply.
type effectFlags struct {
	preset string
	sets   []string
}

func (f *effectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.preset, "preset", "", "start from a preset id")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "set a parameter, e.g. --set pitch_shift=3 (repeatable)")
}

// editor builds the starting parameters from the flags.
func (f *effectFlags) editor(ctx context.Context, a *app) (*domain.EffectEditor, error) {
	ed := domain.NewEffectEditor()
	if f.preset != "" {
		if err := applyPreset(ctx, a, ed, f.preset); err != nil {
			return nil, err
		}
	}
	for _, kv := range f.sets {
		if err := setParam(ed, kv); err != nil {
			return nil, err
		}
	}
	return ed, nil
}

func applyPreset(ctx context.Context, a *app, ed *domain.EffectEditor, id string) error {
	cat, err := a.client.ListPresets(ctx)
	if err != nil {
		return err
	}
	for _, p := range cat.Items {
		if p.ID == id {
			ed.ApplyPreset(p)
			return nil
		}
	}
	return fmt.Errorf("preset %q: %w", id, domain.ErrNotFound)
}

// setParam applies one "name=value" edit. Out-of-range values are clamped.
func setParam(ed *domain.EffectEditor, kv string) error {
	name, value, ok := strings.Cut(kv, "=")
	if !ok {
		return fmt.Errorf("expected name=value, got %q", kv)
	}
	_, err := ed.Update(func(p *domain.EffectParameters) error {
		return p.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	})
	return err
}

func newEffectsPreviewCommand(a *app) *cobra.Command {
	var (
		flags       effectFlags
		out         string
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "preview <audio>",
		Short: "Render a short effects preview, re-rendering as parameters change",
		Long: `Renders the first seconds of the input with the chosen effects.

With --interactive, reads edits from stdin, one per line:
  pitch_shift=3     set a parameter
  preset robot      apply a preset
  reset             back to defaults
  off | on          pause or resume previews
Rapid edits are coalesced; only the newest result is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, _, limits := a.limits()
			src, err := validate.Open(args[0], limits)
			if err != nil {
				return err
			}
			ed, err := flags.editor(cmd.Context(), a)
			if err != nil {
				return err
			}
			if out == "" {
				out = "preview.wav"
			}

			stdout := cmd.OutOrStdout()
			settled := make(chan uint64, 16)
			pc := a.cfg.Preview
			sched := preview.New(
				preview.NewEffectsPreviewer(a.client, src, pc.ClipLimit.Duration),
				a.log,
				preview.WithQuantum(pc.Quantum.Duration),
				preview.WithMinSpacing(pc.MinSpacing.Duration),
				preview.WithContext(cmd.Context()),
				preview.WithOnApply(func(r preview.Request, art *domain.Artifact) {
					if err := os.WriteFile(out, art.Data(), 0o644); err != nil {
						fmt.Fprintf(stdout, "writing %s: %v\n", out, err)
					} else {
						fmt.Fprintf(stdout, "preview #%d ready: %s (%d bytes)\n", r.Generation, out, art.SizeBytes())
					}
					settled <- r.Generation
				}),
				preview.WithOnError(func(r preview.Request, err error) {
					fmt.Fprintf(stdout, "preview #%d failed: %v\n", r.Generation, err)
					settled <- r.Generation
				}),
			)
			defer sched.Close()

			last := sched.Edit(ed.Params())
			if interactive {
				last = previewREPL(cmd.Context(), cmd.InOrStdin(), stdout, a, ed, sched, last)
			}
			if !sched.Enabled() {
				return nil
			}
			for {
				select {
				case gen := <-settled:
					if gen >= last {
						return nil
					}
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
			}
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "where to write the preview (default preview.wav)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read parameter edits from stdin")
	return cmd
}

// previewREPL feeds stdin edits into the scheduler until EOF and returns
// the last generation issued.
func previewREPL(ctx context.Context, in io.Reader, out io.Writer, a *app, ed *domain.EffectEditor, sched *preview.Scheduler, last uint64) uint64 {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "off":
			sched.SetEnabled(false)
			continue
		case line == "on":
			sched.SetEnabled(true)
			last = sched.Edit(ed.Params())
			continue
		case line == "reset":
			ed.Reset()
		case strings.HasPrefix(line, "preset "):
			if err := applyPreset(ctx, a, ed, strings.TrimSpace(strings.TrimPrefix(line, "preset "))); err != nil {
				fmt.Fprintln(out, err)
				continue
			}
		default:
			if err := setParam(ed, line); err != nil {
				fmt.Fprintln(out, err)
				continue
			}
		}
		last = sched.Edit(ed.Params())
	}
	return last
}

func newEffectsApplyCommand(a *app) *cobra.Command {
	var (
		flags  effectFlags
		out    string
		format string
	)
	cmd := &cobra.Command{
		Use:     "apply <audio>",
		Short:   "Render effects over the whole file",
		Example: `vocalx effects apply take.wav --preset robot --format mp3 -o robot.mp3`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, _, limits := a.limits()
			src, err := validate.Open(args[0], limits)
			if err != nil {
				return err
			}
			ed, err := flags.editor(cmd.Context(), a)
			if err != nil {
				return err
			}
			res, err := a.runJob(cmd, func(opts ...pipeline.Option) *pipeline.Job {
				return pipeline.NewEffectsJob(a.client, src, ed.Params(), format, limits, opts...)
			})
			if err != nil {
				return err
			}
			if out == "" {
				out = res.Artifact.SuggestedFilename()
			}
			if err := os.WriteFile(out, res.Artifact.Data(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", out, res.Artifact.SizeBytes())
			if applied, ok := res.Metadata["effects_applied"].(map[string]any); ok && len(applied) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "effects: %v\n", applied)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default from the server's filename)")
	cmd.Flags().StringVar(&format, "format", "wav", "output format: wav, mp3, ogg or flac")
	return cmd
}
