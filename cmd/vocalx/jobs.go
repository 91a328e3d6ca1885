package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/pipeline"
	"github.com/hammamikhairi/vocalx/internal/remote"
	"github.com/hammamikhairi/vocalx/internal/validate"
)

func newDubCommand(a *app) *cobra.Command {
	var (
		req remote.DubRequest
		out string
	)
	cmd := &cobra.Command{
		Use:     "dub <video>",
		Short:   "Replace a video's speech with new text",
		Example: `vocalx dub clip.mp4 --text "Hello there" --lip-sync -o dubbed.mp4`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, limits, _ := a.limits()
			video, err := validate.Open(args[0], limits)
			if err != nil {
				return err
			}
			res, err := a.runJob(cmd, func(opts ...pipeline.Option) *pipeline.Job {
				return pipeline.NewDubJob(a.client, video, req, limits, opts...)
			})
			if err != nil {
				return err
			}
			printMetadata(cmd, res)
			return a.download(cmd, res.Locator, out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Text, "text", "", "replacement speech")
	f.StringVar(&req.Voice, "voice", "neutral", "voice: neutral, male or female")
	f.StringVar(&req.Language, "language", "en", "speech language")
	f.BoolVar(&req.PreserveOriginalTiming, "preserve-timing", true, "keep the original speech timing")
	f.BoolVar(&req.LipSyncEnabled, "lip-sync", false, "re-sync lip movement")
	f.BoolVar(&req.FaceEnhancement, "face-enhancement", false, "enhance faces in the output")
	f.StringVarP(&out, "out", "o", "", "download the result to this path")
	return cmd
}

func newPrivacyCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "privacy",
		Short: "Anonymize a voice while keeping the words",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var (
		req remote.PrivacyRequest
		out string
	)
	convert := &cobra.Command{
		Use:     "convert <audio>",
		Short:   "Convert a recording to an anonymous voice",
		Example: `vocalx privacy convert take.wav --type male_to_female --level 0.8 -o anon.wav`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limits, _, _, _ := a.limits()
			audio, err := validate.Open(args[0], limits)
			if err != nil {
				return err
			}
			res, err := a.runJob(cmd, func(opts ...pipeline.Option) *pipeline.Job {
				return pipeline.NewPrivacyJob(a.client, audio, req, limits, opts...)
			})
			if err != nil {
				return err
			}
			printMetadata(cmd, res)
			return a.download(cmd, res.Locator, out)
		},
	}
	f := convert.Flags()
	f.StringVar(&req.ConversionType, "type", "anonymize", "conversion type (see 'privacy types')")
	f.Float64Var(&req.PrivacyLevel, "level", 0.7, "privacy level between 0 and 1")
	f.BoolVar(&req.PreserveEmotion, "preserve-emotion", true, "keep emotional tone")
	f.StringVarP(&out, "out", "o", "", "download the result to this path")

	types := &cobra.Command{
		Use:   "types",
		Short: "List conversion types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := a.client.ListConversionTypes(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPRIVACY\tDESCRIPTION")
			for _, t := range cat.Items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.PrivacyLevel, t.Description)
			}
			if cat.Offline {
				fmt.Fprintln(w, "\t(backend unreachable, built-in list)\t\t")
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(convert, types)
	return cmd
}

func newCloneCommand(a *app) *cobra.Command {
	var (
		req     remote.CloneRequest
		speaker string
		out     string
	)
	cmd := &cobra.Command{
		Use:     "clone <reference-audio>",
		Short:   "Speak text in the voice of a reference sample",
		Example: `vocalx clone me.wav --text "This is not really me" -o fake.wav`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, limits, _, _ := a.limits()
			sample, err := validate.Open(args[0], limits)
			if err != nil {
				return err
			}
			res, err := a.runJob(cmd, func(opts ...pipeline.Option) *pipeline.Job {
				return pipeline.NewCloneJob(a.client, sample, speaker, req, limits, opts...)
			})
			if err != nil {
				return err
			}
			printMetadata(cmd, res)
			return a.download(cmd, res.Locator, out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Text, "text", "", "text to speak")
	f.StringVar(&req.Language, "language", "en", "speech language")
	f.Float64Var(&req.Speed, "speed", 1.0, "speaking rate")
	f.StringVar(&speaker, "speaker", "", "speaker name stored with the reference")
	f.StringVarP(&out, "out", "o", "", "download the result to this path")
	return cmd
}

func printMetadata(cmd *cobra.Command, res domain.JobResult) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "result: %s\n", res.Locator)
	for k, v := range res.Metadata {
		fmt.Fprintf(w, "  %s: %v\n", k, v)
	}
}
