package main

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/vocalx/internal/config"
	"github.com/hammamikhairi/vocalx/internal/display"
	"github.com/hammamikhairi/vocalx/internal/domain"
	"github.com/hammamikhairi/vocalx/internal/logger"
	"github.com/hammamikhairi/vocalx/internal/pipeline"
	"github.com/hammamikhairi/vocalx/internal/remote"
	"github.com/hammamikhairi/vocalx/internal/validate"
	"github.com/hammamikhairi/vocalx/internal/voicestore"
)

// app holds what every command shares once flags and config are read.
type app struct {
	configPath string
	verbose    bool
	quiet      bool
	logFile    string
	serverURL  string

	cfg    *config.Config
	log    *logger.Logger
	client *remote.Client
	closer []io.Closer
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "vocalx",
		Short:         "Record, transform and clone voices with the VocalX backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.teardown()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", config.DefaultPath, "config file (missing file is fine)")
	f.BoolVar(&a.verbose, "verbose", false, "enable verbose/debug logging")
	f.BoolVar(&a.quiet, "quiet", false, "disable all logging")
	f.StringVar(&a.logFile, "log-file", "", "file to write logs to (use \"stderr\" to log to console)")
	f.StringVar(&a.serverURL, "server", "", "backend base URL (overrides config)")

	root.AddCommand(
		newRecordCommand(a),
		newEffectsCommand(a),
		newDubCommand(a),
		newPrivacyCommand(a),
		newCloneCommand(a),
		newVoicesCommand(a),
		newEnginesCommand(a),
		newPlayCommand(a),
		newSpeakCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("server") {
		cfg.Server.URL = a.serverURL
	}
	if cmd.Flags().Changed("log-file") {
		cfg.Log.File = a.logFile
	}
	a.cfg = cfg

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if a.verbose {
		level = logger.LevelVerbose
	}
	if a.quiet {
		level = logger.LevelOff
	}

	// Logs go to a file by default so terminal views stay clean.
	var logOut io.Writer = os.Stderr
	if cfg.Log.File != "" && cfg.Log.File != "stderr" {
		if dir := filepath.Dir(cfg.Log.File); dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", cfg.Log.File, err)
		} else {
			logOut = f
			a.closer = append(a.closer, f)
		}
	}

	// Third-party libraries log through the standard package.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	a.log = logger.New(level, logOut)
	a.client = remote.New(cfg.Server.URL, a.log,
		remote.WithTimeout(cfg.Server.Timeout.Duration),
		remote.WithOfflineCatalog(cfg.Server.OfflineCatalog),
	)
	a.log.Debug("vocalx: backend %s", a.client.BaseURL())
	return nil
}

func (a *app) teardown() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i].Close()
	}
	a.closer = nil
}

// limits returns the configured ceilings applied to each feature.
func (a *app) limits() (audio, clone, video, effects validate.Constraints) {
	l := a.cfg.Limits
	return validate.AudioUpload.WithMaxBytes(config.MB(l.AudioMB)),
		validate.CloneSample.WithMaxBytes(config.MB(l.CloneMB)),
		validate.VideoUpload.WithMaxBytes(config.MB(l.VideoMB)),
		validate.EffectsUpload.WithMaxBytes(config.MB(l.EffectsMB))
}

// voiceStore builds the store stack from config: backend, optional local
// fallback, and the list cache in front.
func (a *app) voiceStore(out io.Writer) (*voicestore.Cache, error) {
	var store domain.VoiceStore = voicestore.NewHTTPStore(a.client)
	if a.cfg.Store.Fallback {
		local, err := voicestore.OpenLocal(a.cfg.Store.Path, a.log.Named("store"))
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, local)
		store = voicestore.NewFallbackStore(store, local, a.log,
			voicestore.WithOnWarning(func(w voicestore.Warning) {
				fmt.Fprintln(out, "warning:", w)
			}),
		)
	}
	return voicestore.NewCache(store, a.log), nil
}

// runJob runs j while printing its progress to out. Events reach the
// printer through the job's event bus.
func (a *app) runJob(cmd *cobra.Command, build func(opts ...pipeline.Option) *pipeline.Job) (domain.JobResult, error) {
	printer := display.NewJobPrinter(cmd.OutOrStdout(), 30)
	bus := pipeline.NewEventBus(64)
	events, unsubscribe := bus.Subscribe("", 0, 64)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for e := range events {
			printer.Print(e)
		}
	}()

	j := build(
		pipeline.WithLogger(a.log),
		pipeline.WithGracePeriod(a.cfg.Pipeline.GracePeriod.Duration),
		pipeline.WithEventBus(bus),
	)
	defer j.Discard()
	res, err := j.Run(cmd.Context())
	unsubscribe()
	<-printed
	if n := bus.Dropped(); n > 0 {
		a.log.Debug("progress printer missed %d events", n)
	}
	return res, err
}

// download fetches a result by locator and writes it to path.
func (a *app) download(cmd *cobra.Command, locator, path string) error {
	if locator == "" || path == "" {
		return nil
	}
	data, err := a.client.Download(cmd.Context(), locator)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", path, len(data))
	return nil
}
