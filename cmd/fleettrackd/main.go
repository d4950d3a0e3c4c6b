// fleettrackd is the track synchronization and playback daemon. It
// reconciles the shared vehicle/date selection across views, fetches
// track data through the primary/fallback/cache chain and streams the
// rendered state to connected dashboard clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetgrid/fleettrack/internal/api"
	"github.com/fleetgrid/fleettrack/internal/config"
	"github.com/fleetgrid/fleettrack/internal/controller"
	"github.com/fleetgrid/fleettrack/internal/dates"
	"github.com/fleetgrid/fleettrack/internal/geo"
	"github.com/fleetgrid/fleettrack/internal/influx"
	"github.com/fleetgrid/fleettrack/internal/kvstore"
	"github.com/fleetgrid/fleettrack/internal/logging"
	"github.com/fleetgrid/fleettrack/internal/monitor"
	ftotel "github.com/fleetgrid/fleettrack/internal/otel"
	"github.com/fleetgrid/fleettrack/internal/selection"
	"github.com/fleetgrid/fleettrack/internal/stream"
	"github.com/fleetgrid/fleettrack/internal/track"
	"github.com/fleetgrid/fleettrack/pkg/core"
	"github.com/fleetgrid/fleettrack/pkg/streaming"

	fgbus "github.com/fleetgrid/fleettrack/internal/bus"
)

const appName = "fleettrackd"

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	switch opts.Command {
	case "dump":
		err = dumpSelection(opts)
	default:
		err = run(opts)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// nopSurface swallows render calls when streaming is disabled; the
// controller and playback engine still run so state stays consistent.
type nopSurface struct{}

func (nopSurface) SetTrack(core.TrackDataset)     {}
func (nopSurface) SetMarker(core.TrackPoint, int) {}
func (nopSurface) FitBounds(geo.Bounds)           {}
func (nopSurface) Clear()                         {}

// selectionAttrs builds the log context provider: records are stamped
// with the selected vehicle and date range. Until the store is created
// records pass through untouched.
func selectionAttrs(holder *atomic.Pointer[selection.Store]) logging.ContextProvider {
	return func() []slog.Attr {
		s := holder.Load()
		if s == nil {
			return nil
		}
		st := s.State()
		attrs := make([]slog.Attr, 0, 2)
		if st.Vehicle != nil {
			attrs = append(attrs, slog.String("vehicle", st.Vehicle.Key()))
		}
		if st.DateRange != nil {
			attrs = append(attrs, slog.String("dateRange",
				dates.DayString(st.DateRange.Start)+".."+dates.DayString(st.DateRange.End)))
		}
		return attrs
	}
}

func run(opts cliOptions) error {
	sessionStart := time.Now()

	if err := config.Load(opts.ConfigDir); err != nil {
		return err
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	// OTel log export shares the session's log directory.
	var otelWriter *os.File
	otelCfg := ftotel.Config{
		Enabled:      config.GetBool("otel.enabled"),
		ServiceName:  appName,
		BatchTimeout: config.GetMillis("otel.batchTimeoutMs"),
		Endpoint:     config.GetString("otel.endpoint"),
		Insecure:     config.GetBool("otel.insecure"),
	}
	if otelCfg.Enabled {
		var err error
		otelWriter, err = os.Create(filepath.Join(logsDir, appName+".otel.json"))
		if err != nil {
			return fmt.Errorf("create otel log file: %w", err)
		}
		defer otelWriter.Close()
		otelCfg.LogWriter = otelWriter
	}
	otelProvider, err := ftotel.New(otelCfg)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer otelProvider.Shutdown(context.Background())

	logFile, err := os.Create(logging.LogFilePath(logsDir, appName, sessionStart))
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	defer logFile.Close()

	var extraHandlers []slog.Handler
	if config.GetBool("graylog.enabled") {
		gelfHandler, err := logging.NewGelfHandler(
			config.GetString("graylog.address"),
			slog.LevelInfo,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "graylog unavailable, continuing without: %v\n", err)
		} else {
			extraHandlers = append(extraHandlers, gelfHandler)
		}
	}

	logManager := logging.NewSlogManager()
	logManager.Setup(logFile, config.GetString("logLevel"), otelProvider.LoggerProvider(), extraHandlers...)
	defer logManager.Flush(context.Background())

	// Every record carries the live selection once the store exists.
	var selHolder atomic.Pointer[selection.Store]
	logger := slog.New(logging.NewContextHandler(
		logManager.Logger().Handler(),
		selectionAttrs(&selHolder),
	))

	zl := zerolog.New(logFile).With().Timestamp().Logger()

	kv, err := kvstore.New(kvstore.Config{
		Backend:      config.GetString("store.backend"),
		Path:         config.GetString("store.path"),
		DSN:          config.GetString("store.dsn"),
		PollInterval: config.GetMillis("store.pollIntervalMs"),
	}, zl)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer kv.Close()

	bus, err := fgbus.New(logging.NewBusLogger(zl))
	if err != nil {
		return fmt.Errorf("create bus: %w", err)
	}

	sel := selection.New(kv, bus, logger)
	if err := sel.Initialize(nil); err != nil {
		return fmt.Errorf("initialize selection: %w", err)
	}
	defer sel.Close()
	selHolder.Store(sel)

	client := api.New(
		config.GetString("api.baseUrl"),
		config.GetString("api.fallbackBaseUrl"),
		func() (string, bool) {
			token := config.GetString("api.token")
			return token, token != ""
		},
	)
	cache := track.NewSessionCache(kv, logger)

	var recorder track.Recorder
	var influxMgr *influx.Manager
	if config.GetBool("influx.enabled") {
		influxMgr = influx.NewManager(zl, filepath.Join(logsDir, "influx_backup.gz"))
		if err := influxMgr.Connect(); err != nil {
			logger.Warn("influx connect failed, measurements buffered", "error", err)
		}
		defer influxMgr.Close()
		recorder = influxMgr
	}

	svc := track.NewService(client, cache, logger, recorder)

	var hub *stream.Hub
	var surface controller.MapSurface = nopSurface{}
	var streamSurface *stream.Surface
	var server *http.Server
	if config.GetBool("stream.enabled") {
		hub = stream.NewHub(logger)
		defer hub.Close()
		streamSurface = stream.NewSurface(hub, logger)
		surface = streamSurface

		mux := http.NewServeMux()
		mux.Handle("/stream", hub)
		server = &http.Server{
			Addr:    config.GetString("stream.listenAddr"),
			Handler: mux,
		}
		go func() {
			logger.Info("stream server listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("stream server failed", "error", err)
			}
		}()
	}

	ctrl := controller.New(sel, svc, surface, logger, controller.Config{
		DebounceDelay:    config.GetMillis("controller.debounceMs"),
		DefaultRangeDays: config.GetInt("controller.defaultRangeDays"),
	})
	ctrl.OnError(func(err error) {
		logger.Error("track fetch degraded", "error", err)
	})
	if influxMgr != nil {
		ctrl.Engine().SetObserver(influxMgr.RecordPlayback)
	}
	ctrl.Start()
	defer ctrl.Close()

	// Mirror selection changes to stream clients and metrics.
	sel.OnChange(func(st core.SelectionState) {
		key := ""
		if st.Vehicle != nil {
			key = st.Vehicle.Key()
		}
		if influxMgr != nil {
			influxMgr.RecordSelection("selection", key)
		}
		if streamSurface != nil {
			streamSurface.PublishSelection(streaming.SelectionPayload{
				Vehicle:   st.Vehicle,
				DateRange: st.DateRange,
				SplitMode: st.SplitMode,
			})
		}
	})

	mon := monitor.NewService(monitor.Dependencies{
		LogManager: logManager,
		Selection:  sel,
		Engine:     ctrl.Engine(),
		Cache:      cache,
		Hub:        hub,
		StatusDir:  logsDir,
	})
	if err := mon.Start(); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	defer mon.Stop()

	logger.Info("fleettrackd started",
		"store", config.GetString("store.backend"),
		"stream", config.GetBool("stream.enabled"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}
	return nil
}
