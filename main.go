package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pleimann/gazeboard/internal/action"
	"github.com/pleimann/gazeboard/internal/config"
	"github.com/pleimann/gazeboard/internal/display"
	"github.com/pleimann/gazeboard/internal/dwell"
	"github.com/pleimann/gazeboard/internal/feedback"
	"github.com/pleimann/gazeboard/internal/hid"
	"github.com/pleimann/gazeboard/internal/history"
	"github.com/pleimann/gazeboard/internal/input"
	"github.com/pleimann/gazeboard/internal/keyboard"
	"github.com/pleimann/gazeboard/internal/layout"
	"github.com/pleimann/gazeboard/internal/logging"
	"github.com/pleimann/gazeboard/internal/pty"
	"github.com/pleimann/gazeboard/internal/sensor"
	"github.com/pleimann/gazeboard/internal/server"
	"github.com/pleimann/gazeboard/internal/suggest"
	"github.com/pleimann/gazeboard/internal/tui"
	"github.com/pleimann/gazeboard/internal/ui"
	"github.com/pleimann/gazeboard/internal/utils"
)

const Version = "0.2.0"

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          utils.DefaultName,
		Short:        "Gaze-controlled circular keyboard",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to configuration file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newReplayCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newLayoutCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newListDevicesCmd())
	root.AddCommand(newSetSwitchCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the logger from cfg. The terminal keyboard owns the
// screen, so it always logs to a file.
func newLogger(cfg *config.Config, toFile bool) (*zap.SugaredLogger, error) {
	lc := logging.Config{Level: cfg.Log.Level, File: cfg.Log.File, Development: cfg.Log.Development}
	if toFile && lc.File == "" {
		lc.File = filepath.Join(utils.ConfigDir(), utils.DefaultName+".log")
	}
	return logging.New(lc)
}

func loadLexicon(cfg *config.Config) (*suggest.Lexicon, error) {
	if cfg.Layout.LexiconPath == "" {
		return suggest.DefaultLexicon(), nil
	}
	return suggest.LoadLexicon(cfg.Layout.LexiconPath)
}

func userPtr(id int64) *int64 {
	if id < 1 {
		return nil
	}
	return &id
}

// runOptions are the flags of the run command
type runOptions struct {
	sensor     string
	sensorAddr string
	replayFile string
	record     string
	exec       string
	useSwitch  bool
	userID     int64
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the keyboard in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeyboard(opts)
		},
	}
	cmd.Flags().StringVar(&opts.sensor, "sensor", "none", "gaze sensor: none, ws or replay")
	cmd.Flags().StringVar(&opts.sensorAddr, "sensor-addr", "", "listen address for the ws sensor (default server.addr)")
	cmd.Flags().StringVar(&opts.replayFile, "replay-file", "", "gaze recording used by the replay sensor")
	cmd.Flags().StringVar(&opts.record, "record", "", "write every gaze sample to this file")
	cmd.Flags().StringVar(&opts.exec, "exec", "", "forward typed text to this program running in a PTY")
	cmd.Flags().BoolVar(&opts.useSwitch, "switch", false, "commit with the configured assistive switch")
	cmd.Flags().Int64Var(&opts.userID, "user", 0, "user id recorded with saved text")
	return cmd
}

func runKeyboard(opts runOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logging.Sync(logger)

	app, err := newApp(cfg, opts, logger)
	if err != nil {
		logger.Errorw("failed to initialize", "error", err)
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := app.Run(ctx); err != nil {
		logger.Errorw("keyboard stopped with error", "error", err)
		return err
	}
	return nil
}

// App is the terminal keyboard with its optional sensor, switch, program
// forwarding and config reload
type App struct {
	cfg        *config.Config
	logger     *zap.SugaredLogger
	store      history.Store
	session    *keyboard.Session
	highlight  *feedback.Highlight
	tone       *feedback.Tone
	gaze       *input.Gaze
	sensor     sensor.Sensor
	server     *server.Server
	ptyManager *pty.Manager
	forwarder  *action.Forwarder
	switchDev  *hid.Device
	watcher    *config.Watcher
	recordFile *os.File
	recorder   *sensor.Recorder
	model      *tui.Model
}

func newApp(cfg *config.Config, opts runOptions, logger *zap.SugaredLogger) (app *App, err error) {
	lexicon, err := loadLexicon(cfg)
	if err != nil {
		return nil, err
	}

	app = &App{
		cfg:       cfg,
		logger:    logger,
		highlight: feedback.NewHighlight(nil),
		tone:      feedback.NewTone(cfg.ToneConfig(), logger),
	}
	defer func() {
		if err != nil {
			app.shutdown()
		}
	}()

	app.store = history.Open(cfg.Server.DatabasePath, logger)
	app.session = keyboard.NewSession(layout.New(cfg.Layout.Radius), lexicon, cfg.DwellConfig(),
		keyboard.WithLogger(logger),
		keyboard.WithObserver(feedback.Multi{app.tone, app.highlight}),
	)
	app.session.AddFinalizer(history.Saver{Store: app.store, UserID: userPtr(opts.userID)})
	app.gaze = input.NewGaze(app.session.Engine(), app.session, cfg.FilterConfig(), logger)

	switch opts.sensor {
	case "", "none":
	case "ws":
		ws := sensor.NewWebSocket(logger)
		addr := cfg.Server.Addr
		if opts.sensorAddr != "" {
			addr = opts.sensorAddr
		}
		app.sensor = ws
		app.server = server.New(addr, app.store, logger,
			server.WithGazeHandler(ws),
			server.WithStaticDir(cfg.Server.StaticDir),
		)
	case "replay":
		if opts.replayFile == "" {
			return app, fmt.Errorf("--replay-file is required with --sensor replay")
		}
		r, err := sensor.OpenReplay(opts.replayFile, 1)
		if err != nil {
			return app, err
		}
		app.sensor = r
	default:
		return app, fmt.Errorf("unknown sensor %q (want none, ws or replay)", opts.sensor)
	}

	if opts.record != "" {
		f, err := os.Create(opts.record)
		if err != nil {
			return app, fmt.Errorf("failed to create recording: %w", err)
		}
		app.recordFile = f
		app.recorder = sensor.NewRecorder(f)
		app.gaze.Tap(func(s *dwell.Sample) {
			if err := app.recorder.Record(s); err != nil {
				logger.Debugw("failed to record sample", "error", err)
			}
		})
	}

	command, args := cfg.Forward.Command, cfg.Forward.Args
	if fields := strings.Fields(opts.exec); len(fields) > 0 {
		command, args = fields[0], fields[1:]
	}
	if command != "" {
		mgr, err := pty.NewManager(command, args, cfg.Forward.WorkingDir, logger)
		if err != nil {
			return app, fmt.Errorf("failed to create PTY manager: %w", err)
		}
		app.ptyManager = mgr
		delay := time.Duration(cfg.Forward.KeyDelayMs) * time.Millisecond
		app.forwarder = action.NewForwarder(pty.NewWriter(mgr, delay), logger)
		app.session.Subscribe(app.forwarder.OnUpdate)
	}

	if opts.useSwitch {
		if !cfg.Switch.Enabled() {
			return app, fmt.Errorf("no switch configured; run '%s set-switch' first", utils.ExecutableName())
		}
		parse, err := hid.ParserFor(cfg.Switch.Format, cfg.Switch.Offset)
		if err != nil {
			return app, err
		}
		dev, err := hid.NewDevice(cfg.Switch.VendorID, cfg.Switch.ProductID, parse)
		if err != nil {
			return app, fmt.Errorf("failed to open switch: %w", err)
		}
		app.switchDev = dev
	}

	if config.Exists(configPath) {
		w, err := config.NewWatcher(configPath, logger)
		if err != nil {
			logger.Warnw("config hot reload disabled", "error", err)
		} else {
			app.watcher = w
			w.OnReload(app.applyConfig)
		}
	}

	tuiOpts := []tui.Option{tui.WithHighlight(app.highlight), tui.WithLogger(logger)}
	if app.ptyManager != nil {
		tuiOpts = append(tuiOpts, tui.WithOutput(app.ptyManager.RecentOutput))
	}
	app.model = tui.NewModel(app.session, tuiOpts...)
	if app.ptyManager != nil {
		app.ptyManager.OnOutput(app.model.Refresh)
	}
	return app, nil
}

// applyConfig pushes reloaded timings into the live components. Changes
// take effect from the next dwell episode.
func (a *App) applyConfig(cfg *config.Config) {
	a.session.Engine().SetDuration(cfg.DwellConfig().Duration)
	a.gaze.SetFilterConfig(cfg.FilterConfig())
	a.tone.SetConfig(cfg.ToneConfig())
	a.logger.Infow("applied reloaded config", "dwellMs", cfg.Dwell.DurationMs)
}

func (a *App) setSensorStatus(ok bool, err error) {
	if ok {
		a.session.SetStatus(keyboard.StatusActive, keyboard.MessageActive)
		return
	}
	a.logger.Warnw("gaze sensor unavailable", "error", err)
	a.session.SetStatus(keyboard.StatusWarning, keyboard.MessageSensorFailed)
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.shutdown()

	if a.watcher != nil {
		a.watcher.Start()
	}

	if a.ptyManager != nil {
		if err := a.ptyManager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start PTY: %w", err)
		}
		go func() {
			select {
			case <-a.ptyManager.Done():
				a.logger.Infow("forwarded program exited")
			case <-ctx.Done():
			}
		}()
	}

	if a.server != nil {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start gaze endpoint: %w", err)
		}
	}

	if a.sensor != nil {
		a.session.SetStatus(keyboard.StatusStarting, keyboard.MessageStarting)
		go func() {
			if err := a.gaze.Attach(ctx, a.sensor, a.cfg.SensorOptions(), a.setSensorStatus); err != nil {
				a.logger.Debugw("gaze input ended", "error", err)
			}
		}()
	} else {
		a.session.SetStatus(keyboard.StatusPointer, keyboard.MessagePointerOnly)
	}

	if a.switchDev != nil {
		sw := input.NewSwitch(a.session.Engine(), a.cfg.Switch.Button, a.logger)
		go func() {
			if err := sw.Run(ctx, a.switchDev); err != nil {
				a.logger.Warnw("switch input ended", "error", err)
			}
		}()
	}

	return tui.Run(ctx, a.model)
}

func (a *App) shutdown() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.session != nil {
		a.session.Close()
	}
	if a.sensor != nil {
		_ = a.sensor.Stop()
	}
	if a.server != nil {
		if err := a.server.Stop(context.Background()); err != nil {
			a.logger.Warnw("failed to stop gaze endpoint", "error", err)
		}
	}
	if a.forwarder != nil {
		a.forwarder.Close()
	}
	if a.ptyManager != nil {
		a.ptyManager.Stop()
	}
	if a.switchDev != nil {
		_ = a.switchDev.Close()
	}
	if a.recorder != nil {
		if err := a.recorder.Flush(); err != nil {
			a.logger.Warnw("failed to flush gaze recording", "error", err)
		}
	}
	if a.recordFile != nil {
		_ = a.recordFile.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the history API and browser keyboard sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger, err := newLogger(cfg, false)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logging.Sync(logger)
			return serve(cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func serve(cfg *config.Config, logger *zap.SugaredLogger) error {
	lexicon, err := loadLexicon(cfg)
	if err != nil {
		return err
	}
	board := layout.New(cfg.Layout.Radius)
	store := history.Open(cfg.Server.DatabasePath, logger)
	defer store.Close()

	current := func() *config.Config { return cfg }
	if config.Exists(configPath) {
		if w, err := config.NewWatcher(configPath, logger); err != nil {
			logger.Warnw("config hot reload disabled", "error", err)
		} else {
			w.Start()
			defer w.Stop()
			current = w.Get
		}
	}

	// Each browser connection gets its own keyboard with the latest timings
	sessions := func() *keyboard.Session {
		c := current()
		sess := keyboard.NewSession(board, lexicon, c.DwellConfig(), keyboard.WithLogger(logger))
		sess.AddFinalizer(history.Saver{Store: store})
		return sess
	}

	srv := server.New(cfg.Server.Addr, store, logger,
		server.WithSessions(sessions),
		server.WithRenderer(display.NewRenderer(board)),
		server.WithStaticDir(cfg.Server.StaticDir),
	)

	ctx, cancel := signalContext()
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	<-ctx.Done()
	return srv.Stop(context.Background())
}

func newReplayCmd() *cobra.Command {
	var (
		speed  float64
		save   bool
		userID int64
	)
	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Type from a gaze recording without a terminal UI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, false)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer logging.Sync(logger)
			return replay(cmd, cfg, logger, args[0], speed, save, userID)
		},
	}
	cmd.Flags().Float64Var(&speed, "speed", 1, "playback speed; 0 plays as fast as possible")
	cmd.Flags().BoolVar(&save, "save", false, "store the typed text in the history")
	cmd.Flags().Int64Var(&userID, "user", 0, "user id recorded with saved text")
	return cmd
}

func replay(cmd *cobra.Command, cfg *config.Config, logger *zap.SugaredLogger, path string, speed float64, save bool, userID int64) error {
	lexicon, err := loadLexicon(cfg)
	if err != nil {
		return err
	}
	r, err := sensor.OpenReplay(path, speed)
	if err != nil {
		return err
	}

	sess := keyboard.NewSession(layout.New(cfg.Layout.Radius), lexicon, cfg.DwellConfig(), keyboard.WithLogger(logger))
	out := cmd.OutOrStdout()
	sess.Subscribe(func(u keyboard.Update) {
		if u.Commit != nil {
			ui.PrintCommit(out, u.Commit.Target.String(), u.State.Text)
		}
	})

	var store history.Store
	if save {
		store = history.Open(cfg.Server.DatabasePath, logger)
		defer store.Close()
		sess.AddFinalizer(history.Saver{Store: store, UserID: userPtr(userID)})
	}

	ctx, cancel := signalContext()
	defer cancel()

	gaze := input.NewGaze(sess.Engine(), sess, cfg.FilterConfig(), logger)
	if err := gaze.Attach(ctx, r, cfg.SensorOptions(), nil); err != nil {
		sess.Close()
		return err
	}

	// A fixation at the end of the recording still completes its dwell
	select {
	case <-time.After(sess.Engine().Duration()):
	case <-ctx.Done():
	}
	if save {
		sess.Finalize(context.Background())
	}
	sess.Close()

	fmt.Fprintf(out, "%s %q\n", ui.Bold("text:"), sess.Text())
	return nil
}

func newHistoryCmd() *cobra.Command {
	var (
		userID int64
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show saved typing history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.DatabasePath == "" {
				return fmt.Errorf("server.database_path is not set; history is only kept in memory")
			}
			store, err := history.OpenSQLite(cfg.Server.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			var records []history.Record
			if userID > 0 {
				records, err = store.TypingHistoryByUser(cmd.Context(), userID)
				if err == nil && limit > 0 && len(records) > limit {
					records = records[:limit]
				}
			} else {
				records, err = store.RecentTypingHistory(cmd.Context(), limit)
			}
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}
			ui.PrintHistory(cmd.OutOrStdout(), records, time.Now())
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "only show this user's history")
	cmd.Flags().IntVar(&limit, "limit", history.DefaultLimit, "maximum number of records")
	return cmd
}

func newLayoutCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Render the keyboard layout to a PNG file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			r := display.NewRenderer(layout.New(cfg.Layout.Radius))
			if err := r.EncodePNG(f, keyboard.State{}); err != nil {
				f.Close()
				return fmt.Errorf("failed to render layout: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			ui.PrintSaved(cmd.OutOrStdout(), "Layout written to", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "layout.png", "output file")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create or edit the configuration interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ok, err := ui.EditConfig(cfg)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), ui.Muted("Cancelled"))
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return err
			}
			if err := config.Write(configPath, cfg); err != nil {
				return err
			}
			ui.PrintSaved(cmd.OutOrStdout(), "Configuration written to", configPath)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), configPath)
		},
	})
	return cmd
}

func newListDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices",
		Short: "List HID devices that could act as a switch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := hid.ListDevices()
			if err != nil {
				return err
			}
			ui.PrintDeviceList(cmd.OutOrStdout(), devices)
			return nil
		},
	}
}

func newSetSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-switch [vendor_id product_id]",
		Short: "Choose the assistive switch device",
		Long: "Set the switch in the configuration file. With no arguments a list of\n" +
			"connected devices is shown. IDs are hex with a 0x prefix or decimal.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("both vendor_id and product_id must be provided, or neither")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var vendorID, productID uint16
			if len(args) == 2 {
				vid, err := parseID(args[0])
				if err != nil {
					return fmt.Errorf("invalid vendor_id %q: %w", args[0], err)
				}
				pid, err := parseID(args[1])
				if err != nil {
					return fmt.Errorf("invalid product_id %q: %w", args[1], err)
				}
				vendorID, productID = vid, pid
			} else {
				device, err := selectDevice()
				if err != nil {
					return err
				}
				if device == nil {
					fmt.Fprintln(cmd.OutOrStdout(), ui.Muted("No device selected"))
					return nil
				}
				vendorID, productID = device.VendorID, device.ProductID
			}

			out := cmd.OutOrStdout()
			if config.Exists(configPath) {
				if err := config.UpdateSwitchIDs(configPath, vendorID, productID); err != nil {
					return fmt.Errorf("failed to update config: %w", err)
				}
				ui.PrintSwitchSaved(out, configPath, vendorID, productID, false)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return err
			}
			if err := config.CreateDefaultConfig(configPath, vendorID, productID); err != nil {
				return fmt.Errorf("failed to create config: %w", err)
			}
			ui.PrintSwitchSaved(out, configPath, vendorID, productID, true)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			ui.PrintVersion(cmd.OutOrStdout(), Version)
		},
	}
}

// parseID parses a vendor or product ID (hex with 0x prefix or decimal)
func parseID(s string) (uint16, error) {
	s = strings.TrimSpace(s)

	var val uint64
	var err error
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		val, err = strconv.ParseUint(s[2:], 16, 16)
	} else {
		val, err = strconv.ParseUint(s, 10, 16)
	}
	if err != nil {
		return 0, err
	}
	return uint16(val), nil
}

// selectDevice lets the user pick one of the connected HID devices
func selectDevice() (*hid.DeviceInfo, error) {
	devices, err := hid.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	candidates := ui.SwitchCandidates(devices)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no identifiable HID devices found")
	}
	return ui.SelectDevice(candidates)
}
