package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/pansweep/internal/config"
	"github.com/cjeanneret/pansweep/internal/debug"
	"github.com/cjeanneret/pansweep/internal/hw/camera"
	"github.com/cjeanneret/pansweep/internal/hw/gpio"
	"github.com/cjeanneret/pansweep/internal/hw/panel"
	"github.com/cjeanneret/pansweep/internal/hw/stepper"
	"github.com/cjeanneret/pansweep/internal/logic/geometry"
	"github.com/cjeanneret/pansweep/internal/logic/motion"
	"github.com/cjeanneret/pansweep/internal/mosaic"
	"github.com/cjeanneret/pansweep/internal/panorama"
	"github.com/cjeanneret/pansweep/internal/storage"
	"github.com/cjeanneret/pansweep/internal/telemetry"
	"github.com/cjeanneret/pansweep/internal/web"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// options are the flags shared by every command.
type options struct {
	cfgPath   string
	overrides web.Overrides
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "pansweep",
		Short:        "Sweep panorama capture",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.cfgPath, "config", filepath.Join("configs", "default.yaml"), "path to config file")
	pf.Float64Var(&opts.overrides.SweepAngleDeg, "sweep-angle-deg", 0, "override the auto-stop sweep angle in degrees (0-360]")
	pf.Float64Var(&opts.overrides.HorizontalFOVDeg, "horizontal-fov-deg", 0, "override the camera horizontal view angle in degrees (0-180)")

	root.AddCommand(newServeCmd(opts), newRunCmd(opts))
	return root
}

func newServeCmd(opts *options) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the capture session behind the web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port <= 0 || port > 65535 {
				return fmt.Errorf("port must be 1-65535, got %d", port)
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, fmt.Sprintf(":%d", port))
		},
	}
	cmd.Flags().IntVar(&port, "web", 8080, "web server port")
	return cmd
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Record a single sweep headless and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), cfg)
		},
	}
}

// load validates the overrides, reads the config file and applies them.
func (o *options) load() (*config.Config, error) {
	if err := web.ValidateOverrides(o.overrides); err != nil {
		return nil, fmt.Errorf("invalid override: %w", err)
	}
	if err := config.ValidateConfigPath(o.cfgPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyOverrides(cfg, o.overrides); err != nil {
		return nil, err
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", o.cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Sweep angle", cfg.Sweep.AngleDeg)
	return cfg, nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values
// are applied. A horizontal view angle keeps the configured aspect.
func applyOverrides(cfg *config.Config, o web.Overrides) error {
	if o.SweepAngleDeg > 0 {
		cfg.Sweep.AngleDeg = o.SweepAngleDeg
	}
	if o.HorizontalFOVDeg > 0 {
		view, err := geometry.ViewAnglesFor(cfg)
		if err != nil {
			return fmt.Errorf("view angles: %w", err)
		}
		cfg.Camera.VerticalViewAngleDeg = view.Vertical * o.HorizontalFOVDeg / view.Horizontal
		cfg.Camera.HorizontalViewAngleDeg = o.HorizontalFOVDeg
	}
	return nil
}

// app is the hardware and session wiring shared by serve and run.
type app struct {
	cfg      *config.Config
	gpio     gpio.Driver
	panel    *panel.Panel
	provider *telemetry.Provider
	session  *panorama.Panorama
}

func newApp(cfg *config.Config, sink panorama.Sink) (*app, error) {
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return nil, fmt.Errorf("init GPIO: %w", err)
	}
	a := &app{cfg: cfg, gpio: gpioDriver}

	debug.Step(2, "Initializing control panel")
	a.panel, err = panel.New(gpioDriver, cfg.Panel, cfg.PanelPoll())
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init panel: %w", err)
	}
	debug.PrintStruct("Panel config", cfg.Panel)

	debug.Step(3, "Initializing metrics and storage")
	a.provider, err = telemetry.NewProvider(cfg.Metrics)
	if err != nil {
		a.close()
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(a.provider.MeterProvider())
	if err != nil {
		a.close()
		return nil, err
	}
	store, err := storage.New(cfg.Storage)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	debug.Value("Storage dir", store.Dir())

	debug.Step(4, "Initializing rig and camera")
	var rig *motion.Controller
	if cfg.Rig.Enabled {
		rig = motion.NewController(stepper.NewStepper(gpioDriver, stepper.ConfigFrom(cfg)), geometry.NewStepsCalculator(cfg))
		debug.PrintStruct("Rig stepper config", cfg.Rig.PanStepper)
	}
	view, err := geometry.ViewAnglesFor(cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("view angles: %w", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)
	debug.Value("Horizontal view angle", view.Horizontal)
	debug.Value("Vertical view angle", view.Vertical)

	open := func() (camera.Camera, error) {
		pose := camera.HandPan(cfg.Camera.PanRateDegPerSec, cfg.Camera.TiltRateDegPerSec)
		if rig != nil {
			pose = func() (float64, float64) { return rig.PanAngle(), 0 }
		}
		return camera.Open(cfg, pose, view.Horizontal, view.Vertical)
	}

	engine := mosaic.NewShared(mosaic.NewSoftwareEngine(mosaic.SoftwareConfig{
		MaxFrames:      cfg.Engine.MaxFrames,
		KeyframeStride: cfg.Engine.KeyframeStride,
		LowResScale:    cfg.Engine.LowResScale,
		RowCost:        cfg.RowCost(),
	}))

	a.session = panorama.New(panorama.Options{
		Config:  cfg,
		Open:    open,
		Engine:  engine,
		Store:   store,
		Rig:     rig,
		Metrics: metrics,
		Sink:    withPanel(sink, a.panel),
	})
	return a, nil
}

// withPanel mirrors the capture indicator on the panel LED.
func withPanel(sink panorama.Sink, p *panel.Panel) panorama.Sink {
	capturing := sink.Capturing
	sink.Capturing = func(on bool) {
		p.SetCapturing(on)
		if capturing != nil {
			capturing(on)
		}
	}
	return sink
}

func (a *app) onPress(b panel.Button) {
	switch b {
	case panel.Shutter:
		a.session.Shutter()
	case panel.Cancel:
		a.session.Cancel()
	}
}

// start runs the session and the panel under g.
func (a *app) start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return a.session.Run(ctx) })
	g.Go(func() error { return a.panel.Run(ctx, a.onPress) })
}

func (a *app) close() {
	if a.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.provider.Shutdown(ctx); err != nil {
			debug.Errorf("closing metrics failed: %v", err)
		}
	}
	if err := a.gpio.Close(); err != nil {
		debug.Errorf("closing GPIO driver failed: %v", err)
	}
}

func serve(ctx context.Context, cfg *config.Config, addr string) error {
	broadcaster := web.NewStatusBroadcaster()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
	ui := web.NewUI(broadcaster)

	a, err := newApp(cfg, ui.Sink())
	if err != nil {
		return err
	}
	defer a.close()

	view, err := geometry.ViewAnglesFor(cfg)
	if err != nil {
		return err
	}
	srv, err := web.NewServer(addr, broadcaster, ui, a.session, web.SweepDefaults{
		SweepAngleDeg:        cfg.Sweep.AngleDeg,
		HorizontalFOVDeg:     view.Horizontal,
		VerticalFOVDeg:       view.Vertical,
		SpeedThresholdDegSec: cfg.Sweep.SpeedThresholdDegSec,
	}, a.provider.Handler())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	a.start(gctx, g)
	g.Go(func() error { return srv.Run(gctx) })
	a.session.Resume()
	return g.Wait()
}

// headlessSink logs progress and reports the end of the sweep on done.
func headlessSink(done chan<- error) panorama.Sink {
	report := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	return panorama.Sink{
		SweepProgress:  func(deg int) { debug.Live("Sweep: %d°", deg) },
		SavingProgress: func(pct int) { debug.Live("Saving: %d%%", pct) },
		TooFast: func(on bool) {
			if on {
				debug.Warn("Sweep too fast, slow down")
			}
		},
		Dialog: func(text string) {
			if text != "" {
				debug.Info("%s", text)
			}
		},
		PictureSaved: func(path string) {
			debug.Summary("Panorama saved")
			debug.Value("Path", path)
			report(nil)
		},
		Error: func(msg string, ack func()) {
			ack()
			report(errors.New(msg))
		},
	}
}

func runOnce(ctx context.Context, cfg *config.Config) error {
	done := make(chan error, 1)
	a, err := newApp(cfg, headlessSink(done))
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	a.start(gctx, g)
	g.Go(func() error {
		debug.Section("Starting sweep")
		a.session.Resume()
		a.session.Shutter()
		select {
		case err := <-done:
			cancel()
			return err
		case <-gctx.Done():
			return nil
		}
	})
	return g.Wait()
}
