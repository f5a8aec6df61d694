package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/maruel/interrupt"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/vidstab"
	"github.com/opd-ai/vidstab/config"
	"github.com/opd-ai/vidstab/curves"
	"github.com/opd-ai/vidstab/features"
	"github.com/opd-ai/vidstab/pathopt"
	"github.com/opd-ai/vidstab/preview"
	"github.com/opd-ai/vidstab/render"
	"github.com/opd-ai/vidstab/video"
	"github.com/opd-ai/vidstab/videoio"
)

// containerExtensions are output paths written through the container
// backend rather than as an image directory.
var containerExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mkv": true, ".mov": true, ".m4v": true,
}

// errUsage marks errors in the command line itself.
var errUsage = errors.New("usage")

// CLI configuration
type CLIConfig struct {
	input            string
	output           string
	fps              float64
	configPath       string
	writeConfig      bool
	detector         string
	radius           int
	model            string
	crop             float64
	salient          string
	mode             string
	policy           string
	featuresIn       string
	featuresOut      string
	salientLocations string
	curvesPath       string
	previewAddr      string
	tui              bool
	logLevel         string
	logFile          string
	help             bool

	// set records the flags given on the command line, so only those
	// override the config file.
	set map[string]bool
}

// parseCLIFlags parses args into a configuration.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{set: map[string]bool{}}

	// Input and output
	fs.StringVar(&cfg.input, "in", "", "Input video file or directory of frame images")
	fs.StringVar(&cfg.output, "out", "", "Output video file (.mp4, .avi, .mkv, .mov) or image directory")
	fs.Float64Var(&cfg.fps, "fps", 30, "Frame rate of image directory input")

	// Configuration
	fs.StringVar(&cfg.configPath, "config", "", "YAML options file")
	fs.BoolVar(&cfg.writeConfig, "write-config", false, "Write the effective options as YAML to stdout and exit")
	fs.StringVar(&cfg.detector, "detector", "gftt", "Feature detector ("+kindNames()+")")
	fs.IntVar(&cfg.radius, "radius", 10, "Tracking search radius in pixels")
	fs.StringVar(&cfg.model, "model", "translation", "Crop pose model (translation, similarity, affine)")
	fs.Float64Var(&cfg.crop, "crop", 0.8, "Crop box size as a fraction of the frame, centered")
	fs.StringVar(&cfg.salient, "salient", "off", "Salient tracking (off, centered, anchored)")
	fs.StringVar(&cfg.mode, "mode", "stabilized", "Output (stabilized, crop-only, annotated)")
	fs.StringVar(&cfg.policy, "policy", "skip", "Frames whose crop window leaves the frame (skip, letterbox)")

	// Side inputs and outputs
	fs.StringVar(&cfg.featuresIn, "features-in", "", "CSV of frame,x,y feature locations used instead of detection")
	fs.StringVar(&cfg.featuresOut, "features-out", "", "Write detected feature locations as CSV")
	fs.StringVar(&cfg.salientLocations, "salient-locations", "", "CSV of frame,x,y points outlining the salient region")
	fs.StringVar(&cfg.curvesPath, "curves", "", "Write motion curves as YAML")

	// Monitoring
	fs.StringVar(&cfg.previewAddr, "preview", "", "Serve the preview on this address, e.g. :8080")
	fs.BoolVar(&cfg.tui, "tui", false, "Show a terminal progress view")
	fs.StringVar(&cfg.logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	fs.StringVar(&cfg.logFile, "log-file", "", "Log file path (default: stderr)")

	fs.BoolVar(&cfg.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })
	return cfg, nil
}

func kindNames() string {
	var names []string
	for _, k := range features.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(cfg *CLIConfig) error {
	if cfg.writeConfig {
		return nil
	}
	if cfg.input == "" {
		return fmt.Errorf("input cannot be empty")
	}
	if cfg.output == "" && cfg.curvesPath == "" && cfg.featuresOut == "" {
		return fmt.Errorf("nothing to write: give -out, -curves or -features-out")
	}
	if cfg.fps <= 0 {
		return fmt.Errorf("fps must be positive")
	}
	if cfg.tui && cfg.logFile == "" {
		return fmt.Errorf("-tui needs -log-file so log lines do not corrupt the view")
	}
	return nil
}

// buildOptions loads the config file, if any, and applies the flags given
// on the command line.
func buildOptions(cfg *CLIConfig) (*vidstab.Options, error) {
	opts := vidstab.NewOptions()
	if cfg.configPath != "" {
		var err error
		if opts, err = config.Load(cfg.configPath); err != nil {
			return nil, err
		}
	}

	if cfg.set["detector"] {
		k, err := features.ParseKind(cfg.detector)
		if err != nil {
			return nil, err
		}
		opts.Motion.Detector = k
	}
	if cfg.set["radius"] {
		opts.Motion.Tracking.Radius = cfg.radius
	}
	if cfg.set["model"] {
		m, err := pathopt.ParseModel(cfg.model)
		if err != nil {
			return nil, err
		}
		opts.Path.Model = m
	}
	if cfg.set["crop"] {
		opts.CropBox = vidstab.CropBox{Ratio: cfg.crop}
	}
	if cfg.set["salient"] {
		if cfg.salient == "off" {
			opts.Path.Salient.Enabled = false
		} else {
			if err := opts.Path.Salient.Mode.UnmarshalText([]byte(cfg.salient)); err != nil {
				return nil, err
			}
			opts.Path.Salient.Enabled = true
		}
	}
	if cfg.set["mode"] {
		if err := opts.Render.Mode.UnmarshalText([]byte(cfg.mode)); err != nil {
			return nil, err
		}
	}
	if cfg.set["policy"] {
		if err := opts.Render.Policy.UnmarshalText([]byte(cfg.policy)); err != nil {
			return nil, err
		}
	}
	if cfg.featuresIn != "" {
		opts.Motion.PreserveFeatures = true
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// setupLogging configures logrus from the CLI flags. The returned closer
// releases the log file.
func setupLogging(cfg *CLIConfig) (io.Closer, error) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.logLevel))
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.logFile == "" {
		logrus.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	f, err := os.OpenFile(cfg.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logrus.SetOutput(f)
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openSource opens a frame directory or a video file.
func openSource(cfg *CLIConfig) (videoio.Source, error) {
	st, err := os.Stat(cfg.input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", videoio.ErrNotFound, cfg.input)
	}
	if st.IsDir() {
		return videoio.OpenSequence(cfg.input, cfg.fps)
	}
	return videoio.OpenCapture(cfg.input)
}

// openSink creates the output for v, reusing its codec and frame rate for
// video files.
func openSink(path string, v *video.Video, size [2]int) (videoio.Sink, error) {
	if containerExtensions[strings.ToLower(filepath.Ext(path))] {
		return videoio.CreateWriter(path, v.Codec(), v.FPS(), size[0], size[1])
	}
	return videoio.CreateSequence(path, "stab_")
}

func readLocations(path string) (video.Locations, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return video.ReadLocations(f)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// pipeline runs every stage for cfg, notifying observers along the way.
func pipeline(ctx context.Context, cfg *CLIConfig, opts *vidstab.Options, observers ...vidstab.Observer) error {
	s, err := vidstab.NewStabilizer(opts)
	if err != nil {
		return err
	}
	for _, o := range observers {
		s.AddObserver(o)
	}

	if cfg.previewAddr != "" {
		hub := preview.NewHub(s.Video)
		s.AddObserver(hub)
		defer hub.Close()
		srv := &http.Server{Addr: cfg.previewAddr, Handler: hub.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithFields(logrus.Fields{
					"function": "pipeline",
					"addr":     cfg.previewAddr,
					"error":    err.Error(),
				}).Error("Preview server failed")
			}
		}()
		defer srv.Close()
	}

	src, err := openSource(cfg)
	if err != nil {
		return &vidstab.Error{Code: vidstab.CodeSource, Stage: vidstab.StageLoad, FirstFrame: -1, LastFrame: -1, Err: err}
	}
	defer src.Close()
	if err := s.Load(ctx, src); err != nil {
		return err
	}
	v := s.Video()

	if cfg.featuresIn != "" {
		locs, err := readLocations(cfg.featuresIn)
		if err != nil {
			return fmt.Errorf("features-in: %w", err)
		}
		if err := v.ImportFeatures(locs); err != nil {
			return fmt.Errorf("features-in: %w", err)
		}
	}
	if cfg.salientLocations != "" {
		locs, err := readLocations(cfg.salientLocations)
		if err != nil {
			return fmt.Errorf("salient-locations: %w", err)
		}
		if err := v.SetSalientFromLocations(locs); err != nil {
			return fmt.Errorf("salient-locations: %w", err)
		}
	}

	if err := s.EstimateMotion(ctx); err != nil {
		return err
	}
	if cfg.featuresOut != "" {
		if err := writeFile(cfg.featuresOut, v.WriteFeatures); err != nil {
			return fmt.Errorf("features-out: %w", err)
		}
	}
	if _, err := s.OptimizePath(ctx); err != nil {
		return err
	}
	if cfg.curvesPath != "" {
		doc, err := curves.Build(v)
		if err != nil {
			return err
		}
		if err := writeFile(cfg.curvesPath, func(w io.Writer) error { return curves.Export(w, doc) }); err != nil {
			return fmt.Errorf("curves: %w", err)
		}
	}

	if cfg.output != "" {
		size := render.NewTransformer(opts.Render).OutputSize(v)
		sink, err := openSink(cfg.output, v, [2]int{size.X, size.Y})
		if err != nil {
			return &vidstab.Error{Code: vidstab.CodeRender, Stage: vidstab.StageRender, FirstFrame: -1, LastFrame: -1, Err: err}
		}
		rep, err := s.Render(ctx, sink)
		if cerr := sink.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if len(rep.Skipped) > 0 || len(rep.Letterboxed) > 0 {
			logrus.WithFields(logrus.Fields{
				"function":    "pipeline",
				"skipped":     rep.Skipped,
				"letterboxed": rep.Letterboxed,
			}).Warn("Some frames left the crop window")
		}
	}

	r := s.Report()
	logrus.WithFields(logrus.Fields{
		"function":   "pipeline",
		"run_id":     r.RunID,
		"frames":     r.Frames,
		"degenerate": len(r.Degenerate),
	}).Info("Done")
	return nil
}

// exitCode maps a pipeline error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, errUsage) {
		return 2
	}
	switch vidstab.CodeOf(err) {
	case vidstab.CodeNone:
		if err == nil {
			return 0
		}
		return 1
	case vidstab.CodeConfig:
		return 2
	case vidstab.CodeCancelled:
		return 130
	case vidstab.CodeInfeasible:
		return 3
	}
	return 1
}

// contextFromInterrupt returns a context cancelled on Ctrl-C.
func contextFromInterrupt() (context.Context, context.CancelFunc) {
	interrupt.HandleCtrlC()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-interrupt.Channel:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func mainImpl(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("vidstab", flag.ContinueOnError)
	cfg, err := parseCLIFlags(fs, args)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if cfg.help {
		fs.SetOutput(stdout)
		fs.PrintDefaults()
		return nil
	}
	if err := validateCLIConfig(cfg); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	opts, err := buildOptions(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if cfg.writeConfig {
		return config.Write(stdout, opts)
	}

	closer, err := setupLogging(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	defer closer.Close()

	ctx, cancel := contextFromInterrupt()
	defer cancel()

	if cfg.tui {
		return runWithTUI(ctx, cfg, opts)
	}
	return pipeline(ctx, cfg, opts)
}

func main() {
	if err := mainImpl(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "vidstab: %s\n", err)
		os.Exit(exitCode(err))
	}
}
