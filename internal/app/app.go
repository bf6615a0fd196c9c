package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/revview/internal/affinity"
	"github.com/dshills/revview/internal/config"
	"github.com/dshills/revview/internal/event"
	"github.com/dshills/revview/internal/event/events"
	"github.com/dshills/revview/internal/history"
	"github.com/dshills/revview/internal/logging"
	"github.com/dshills/revview/internal/viewer"
)

// ShutdownTimeout bounds how long Shutdown waits for the metrics server.
const ShutdownTimeout = 3 * time.Second

// Options configures the application. Non-empty fields override the
// configuration file and the environment.
type Options struct {
	// ConfigPath is the configuration file (.toml, .yaml or .yml).
	ConfigPath string

	// File is the document to view. Empty opens a scratch document.
	File string

	// LogLevel sets the logging verbosity.
	LogLevel string

	// LogFile receives log output.
	LogFile string

	// MetricsAddr is the listen address of the /metrics endpoint.
	MetricsAddr string

	// Script is a Lua file defining numbered actions.
	Script string

	// NoWatch disables reloading the document when it changes on disk.
	NoWatch bool

	// Screen is the terminal. Nil creates one with tcell.NewScreen.
	Screen tcell.Screen

	// Registry receives the metrics. Nil creates a private registry.
	Registry *prometheus.Registry
}

// Application owns every component and their lifecycles.
type Application struct {
	opts Options

	config  *config.Config
	logger  *logging.Logger
	logFile *os.File
	bus     *event.Bus
	metrics *Metrics
	subs    *subscriptions

	loop   *affinity.Loop
	engine *history.Engine
	hist   *history.Affine
	sink   *StatusPublisher

	view    *viewer.View
	scripts *viewer.Scripts
	session *viewer.Session
	screen  *viewer.Screen

	metricsServer *MetricsServer
	watcher       *viewer.Watcher

	started      atomic.Bool
	running      atomic.Bool
	shutdown     atomic.Bool
	shutdownOnce sync.Once
}

// New creates an application. Components are built in dependency order;
// on failure the ones already built are released.
func New(opts Options) (*Application, error) {
	app := &Application{opts: opts}
	if err := app.bootstrap(); err != nil {
		app.Shutdown()
		return nil, err
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	// 1. Config: defaults < file < environment < options
	app.config = config.New(config.WithFile(app.opts.ConfigPath))
	if err := app.config.Load(context.Background()); err != nil {
		return NewComponentError("config", "load", err)
	}
	for path, value := range map[string]string{
		"logging.level": app.opts.LogLevel,
		"logging.file":  app.opts.LogFile,
		"metrics.addr":  app.opts.MetricsAddr,
		"viewer.script": app.opts.Script,
	} {
		if value == "" {
			continue
		}
		if err := app.config.Set(path, value); err != nil {
			return NewComponentError("config", "set "+path, err)
		}
	}
	if app.opts.NoWatch {
		if err := app.config.Set("viewer.watch", false); err != nil {
			return NewComponentError("config", "set viewer.watch", err)
		}
	}
	if err := app.config.Validate(); err != nil {
		return NewComponentError("config", "validate", err)
	}

	// 2. Logging: the screen owns the terminal, so logs go to a file or nowhere.
	if err := app.initLogging(); err != nil {
		return NewComponentError("logging", "open", err)
	}

	// 3. Event bus
	app.bus = event.NewBus(event.WithErrorHandler(func(err error) {
		app.logger.Warn("event: %v", err)
	}))

	// 4. Metrics
	app.metrics = NewMetrics(app.opts.Registry)

	// 5. History
	hc := app.config.History()
	app.loop = affinity.New(
		affinity.WithQueueSize(hc.QueueSize),
		affinity.WithPanicHandler(func(recovered any, stack []byte) {
			app.logger.Error("loop task panic: %v\n%s", recovered, stack)
		}),
	)
	app.sink = NewStatusPublisher(app.bus, app.logger.WithComponent("status"))
	app.engine = history.New(
		history.WithObserver(NewHistoryPublisher(app.bus, app.logger)),
		history.WithStatusSink(app.sink),
		history.WithLogger(app.logger),
		history.WithRecorder(app.metrics),
		history.WithRedrawPadding(hc.RedrawPadding),
	)
	app.hist = history.NewAffine(app.engine, app.loop)

	// 6. Document and view
	doc, err := app.openDocument()
	if err != nil {
		return NewComponentError("document", "open", err)
	}
	app.view = viewer.NewView(doc, 80, 24)

	subs, err := wireSubscriptions(app.bus, app.view, app.metrics)
	if err != nil {
		return NewComponentError("event bus", "subscribe", err)
	}
	app.subs = subs

	// 7. Scripts
	vc := app.config.Viewer()
	if vc.Script != "" {
		app.scripts, err = viewer.LoadScripts(vc.Script, app.view.Document, app.sink.Report)
		if err != nil {
			return NewComponentError("scripts", "load", err)
		}
		app.logger.Info("loaded %d script actions from %s", len(app.scripts.Slots()), vc.Script)
	}

	// 8. Session and screen
	app.session = viewer.NewSession(app.hist, app.view,
		viewer.WithScripts(app.scripts),
		viewer.WithSink(app.sink),
		viewer.WithPublisher(app.bus),
		viewer.WithSessionLogger(app.logger),
		viewer.WithTabWidth(vc.TabWidth),
	)

	scr := app.opts.Screen
	if scr == nil {
		scr, err = tcell.NewScreen()
		if err != nil {
			return NewComponentError("screen", "create", err)
		}
	}
	app.screen = viewer.NewScreen(scr, app.session,
		viewer.WithKeysOnLoop(hc.Affinity),
		viewer.WithScreenLogger(app.logger),
		viewer.WithScreenTabWidth(vc.TabWidth),
	)
	return nil
}

func (app *Application) initLogging() error {
	lc := app.config.Logging()
	var out io.Writer = io.Discard
	if lc.File != "" {
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		app.logFile = f
		out = f
	}
	app.logger = logging.New(logging.Config{
		Level:  logging.ParseLevel(lc.Level),
		Output: out,
		Prefix: "revview",
	})
	return nil
}

func (app *Application) openDocument() (*viewer.Document, error) {
	if app.opts.File == "" {
		return viewer.NewDocument("", nil), nil
	}
	return viewer.OpenDocument(app.opts.File)
}

// Config returns the effective configuration.
func (app *Application) Config() *config.Config {
	return app.config
}

// Bus returns the event bus.
func (app *Application) Bus() *event.Bus {
	return app.bus
}

// Metrics returns the metrics.
func (app *Application) Metrics() *Metrics {
	return app.metrics
}

// History returns the loop-confined history engine.
func (app *Application) History() *history.Affine {
	return app.hist
}

// Session returns the editing session.
func (app *Application) Session() *viewer.Session {
	return app.session
}

// IsRunning reports whether Run is in progress.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Run starts the history loop, the metrics endpoint and the file watcher,
// then shows the document until the user quits or ctx is done.
// Later calls return ErrAlreadyRunning.
func (app *Application) Run(ctx context.Context) (err error) {
	if app.shutdown.Load() {
		return ErrShutdown
	}
	if !app.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	app.running.Store(true)
	defer app.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			app.logger.Error("panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan error, 1)
	go func() { loopDone <- app.loop.Run(ctx) }()
	defer func() {
		cancel()
		if lerr := <-loopDone; lerr != nil && !errors.Is(lerr, context.Canceled) {
			app.logger.Warn("history loop: %v", lerr)
		}
	}()

	if addr := app.config.Metrics().Addr; addr != "" {
		srv, serr := ServeMetrics(addr, app.metrics.Registry(), app.logger)
		if serr != nil {
			return serr
		}
		app.metricsServer = srv
	}

	if err := app.startWatcher(ctx); err != nil {
		// The document is still viewable without live reload.
		app.logger.Warn("%v", err)
		app.sink.ReportError(err)
	}

	if err := app.screen.Init(); err != nil {
		return NewComponentError("screen", "init", err)
	}
	defer app.screen.Fini()

	doc := app.view.Document()
	app.publish(ctx, event.NewEvent(events.TopicDocumentOpened, events.DocumentOpened{
		Path:  doc.Path(),
		Lines: doc.LineCount(),
	}, "app"))
	app.logger.Info("viewing %s", doc)

	return app.screen.Run(ctx)
}

func (app *Application) startWatcher(ctx context.Context) error {
	path := app.view.Document().Path()
	if path == "" || !app.config.Viewer().Watch {
		return nil
	}
	w, err := viewer.NewWatcher(path, func(string) {
		app.session.Reload(ctx)
	}, viewer.WithWatchLogger(app.logger))
	if err != nil {
		return NewOperationError("watch", path, err)
	}
	app.watcher = w
	return nil
}

func (app *Application) publish(ctx context.Context, ev any) {
	if err := app.bus.Publish(ctx, ev); err != nil {
		app.logger.Debug("publish: %v", err)
	}
}

// Shutdown releases every component in reverse order of creation.
// Safe to call multiple times and on a partially built application.
func (app *Application) Shutdown() {
	app.shutdownOnce.Do(func() {
		app.shutdown.Store(true)

		if app.watcher != nil {
			if err := app.watcher.Close(); err != nil {
				app.logger.Warn("close watcher: %v", err)
			}
		}
		if app.metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			if err := app.metricsServer.Shutdown(ctx); err != nil {
				app.logger.Warn("stop metrics: %v", err)
			}
			cancel()
		}
		if app.loop != nil {
			app.loop.Close()
		}
		if app.scripts != nil {
			app.scripts.Close()
		}
		if app.subs != nil {
			app.subs.close()
		}
		if app.bus != nil {
			app.bus.Close()
		}
		if app.logger != nil {
			app.logger.Info("shut down")
		}
		if app.logFile != nil {
			_ = app.logFile.Close()
		}
	})
}
