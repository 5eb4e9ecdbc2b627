// Package engine runs a job file: one task group per job.content entry.
package engine

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/longkeyy/go-dataflow/common/config"
	"github.com/longkeyy/go-dataflow/common/logger"
	"github.com/longkeyy/go-dataflow/common/statistics"
	"github.com/longkeyy/go-dataflow/core/channel"
	"github.com/longkeyy/go-dataflow/core/taskgroup"
	"github.com/longkeyy/go-dataflow/core/transport/websocket"
)

// Configuration keys read by the engine, relative to the job file.
const (
	KeySetting        = "job.setting"
	KeyContent        = "job.content"
	KeyReportInterval = "job.setting.reportInterval"
	KeyListen         = "job.setting.network.listen"
	KeyMetricsListen  = "job.setting.metrics.listen"
	KeyLogLevel       = "core.log.level"
	KeyLogOutput      = "core.log.outputPath"
	KeyLogDevelopment = "core.log.development"
)

// Engine runs jobs. The zero value is not usable; use NewEngine.
type Engine struct {
	logger       *zap.Logger
	communicator *statistics.Communicator
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger, communicator: statistics.NewCommunicator()}
}

// Communicator returns the statistics of every task group run so far.
func (e *Engine) Communicator() *statistics.Communicator { return e.communicator }

// Start runs every job.content entry as a task group and waits for all of
// them. The first failure cancels the others.
func (e *Engine) Start(ctx context.Context, allConf config.Configuration) error {
	if allConf == nil {
		return fmt.Errorf("configuration cannot be nil")
	}
	settings, err := channel.SettingsFromConfig(allConf.GetConfiguration(KeySetting))
	if err != nil {
		return fmt.Errorf("channel settings: %w", err)
	}
	contents := allConf.GetListConfiguration(KeyContent)
	if len(contents) == 0 {
		return fmt.Errorf("%s is empty", KeyContent)
	}

	stopMetrics, err := e.serveMetrics(allConf.GetString(KeyMetricsListen))
	if err != nil {
		return err
	}
	defer stopMetrics()

	reportInterval := allConf.GetDurationWithDefault(KeyReportInterval, 10*time.Second)
	listen := allConf.GetStringWithDefault(KeyListen, taskgroup.DefaultListenAddress)

	eg, gctx := errgroup.WithContext(ctx)
	containers := make([]*taskgroup.Container, len(contents))
	for i, content := range contents {
		containers[i] = taskgroup.NewContainer(i, settings,
			taskgroup.WithCommunicator(e.communicator),
			taskgroup.WithLogger(logger.TaskGroupLogger(i)),
			taskgroup.WithReportInterval(reportInterval),
			taskgroup.WithListenAddress(listen))
		eg.Go(func() error {
			return containers[i].Start(gctx, content.GetConfiguration("reader"), content.GetConfiguration("writer"))
		})
	}
	err = eg.Wait()

	total := e.communicator.Collect()
	snapshot := statistics.GetSnapshot(total)
	e.logger.Info("Job statistics",
		zap.Int("taskGroups", len(containers)),
		zap.String("total", snapshot.Total),
		zap.String("buffers", snapshot.Buffers),
		zap.String("error", snapshot.Error),
		zap.Stringer("state", total.GetState()))
	return err
}

// serveMetrics exposes the job statistics at /metrics on addr. An empty addr
// disables it.
func (e *Engine) serveMetrics(addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(statistics.NewPrometheusCollector("", e.communicator)); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: websocket.NewRouter(http.NotFoundHandler(), reg), ReadHeaderTimeout: 10 * time.Second}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	e.logger.Info("Serving metrics", zap.Stringer("addr", ln.Addr()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(ctx)
		if serr := <-served; !errors.Is(serr, http.ErrServerClosed) {
			err = multierr.Append(err, serr)
		}
		if err != nil {
			e.logger.Warn("Metrics server shutdown", zap.Error(err))
		}
	}, nil
}

// loggerConfig reads the core.log keys of a job file.
func loggerConfig(cfg config.Configuration) *logger.LoggerConfig {
	lc := logger.DefaultConfig()
	lc.Level = logger.LogLevel(cfg.GetStringWithDefault(KeyLogLevel, string(lc.Level)))
	lc.OutputPath = cfg.GetString(KeyLogOutput)
	lc.Development = cfg.GetBoolWithDefault(KeyLogDevelopment, lc.Development)
	return lc
}

// Main dataflow命令的入口
func Main(ver string) {
	var jobPath string
	flag.StringVar(&jobPath, "job", "", "Job configuration file path")
	flag.Parse()

	if jobPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: dataflow -job <config-file>")
		os.Exit(1)
	}

	configuration, err := config.FromFile(jobPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse configuration file: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(loggerConfig(configuration)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.App()
	appLogger.Info("Dataflow starting", zap.String("version", ver), zap.String("jobPath", jobPath))
	if jsonStr, err := configuration.ToJSON(); err == nil {
		appLogger.Debug("Job configuration loaded", zap.String("config", jsonStr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewEngine(appLogger).Start(ctx, configuration); err != nil {
		appLogger.Error("Dataflow execution failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	appLogger.Info("Dataflow execution completed successfully")
}
