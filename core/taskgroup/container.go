// Package taskgroup runs one reader task and one writer task connected by a
// channel.
package taskgroup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/longkeyy/go-dataflow/common/config"
	"github.com/longkeyy/go-dataflow/common/element"
	"github.com/longkeyy/go-dataflow/common/event"
	"github.com/longkeyy/go-dataflow/common/logger"
	"github.com/longkeyy/go-dataflow/common/plugin"
	"github.com/longkeyy/go-dataflow/common/serde"
	"github.com/longkeyy/go-dataflow/common/statistics"
	"github.com/longkeyy/go-dataflow/core/channel"
	"github.com/longkeyy/go-dataflow/core/gate"
	"github.com/longkeyy/go-dataflow/core/registry"
)

// DefaultListenAddress is used by network channels when none is configured.
const DefaultListenAddress = "127.0.0.1:0"

// Option configures a Container.
type Option func(*Container)

// WithCommunicator collects the channel statistics into c.
func WithCommunicator(c *statistics.Communicator) Option {
	return func(tgc *Container) {
		if c != nil {
			tgc.communicator = c
		}
	}
}

func WithRegistry(r *registry.PluginRegistry) Option {
	return func(tgc *Container) {
		if r != nil {
			tgc.registry = r
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(tgc *Container) {
		if l != nil {
			tgc.logger = l
		}
	}
}

// WithReportInterval sets how often progress is logged while running.
func WithReportInterval(d time.Duration) Option {
	return func(tgc *Container) {
		if d > 0 {
			tgc.reportInterval = d
		}
	}
}

// WithListenAddress sets the address network channels serve on.
func WithListenAddress(addr string) Option {
	return func(tgc *Container) {
		if addr != "" {
			tgc.listen = addr
		}
	}
}

// Container TaskGroup容器，运行一个Reader任务和一个Writer任务
type Container struct {
	taskGroupId    int
	settings       channel.Settings
	communicator   *statistics.Communicator
	communication  *statistics.Communication
	registry       *registry.PluginRegistry
	logger         *zap.Logger
	reportInterval time.Duration
	listen         string
}

func NewContainer(taskGroupId int, settings channel.Settings, opts ...Option) *Container {
	tgc := &Container{
		taskGroupId:    taskGroupId,
		settings:       settings,
		communicator:   statistics.NewCommunicator(),
		registry:       registry.GlobalRegistry,
		logger:         logger.TaskGroupLogger(taskGroupId),
		reportInterval: 10 * time.Second,
		listen:         DefaultListenAddress,
	}
	for _, opt := range opts {
		opt(tgc)
	}
	return tgc
}

// Start 启动TaskGroup，readerConfig和writerConfig的"name"为插件名称。
// Reader在Writer第一次读取后才开始发送数据。
func (tgc *Container) Start(ctx context.Context, readerConfig, writerConfig config.Configuration) (err error) {
	taskLogger := tgc.logger
	taskLogger.Info("TaskGroup starts",
		zap.Stringer("channelType", tgc.settings.Type),
		zap.Stringer("compression", tgc.settings.Compression))
	startTime := time.Now()

	readerTask, writerTask, err := tgc.createTasks(readerConfig, writerConfig)
	if err != nil {
		return err
	}
	defer func() {
		if derr := multierr.Append(readerTask.Destroy(), writerTask.Destroy()); derr != nil {
			taskLogger.Warn("Task destroy failed", zap.Error(derr))
		}
	}()

	id := channel.NewID()
	tgc.communication = tgc.communicator.Register(string(id))
	channelLogger := logger.ChannelLogger(string(id), 0)
	metrics := logger.NewTransferMetrics()
	metricsLogger := logger.Metrics("TaskGroup")
	metricsLogger.LogTransferStart(tgc.settings.Type.String(), string(id))

	l, err := openLink(ctx, id, tgc.settings, tgc.listen, channelLogger)
	if err != nil {
		return fmt.Errorf("open %s link: %w", tgc.settings.Type, err)
	}
	defer func() {
		if cerr := l.close(); cerr != nil {
			taskLogger.Warn("Close link failed", zap.Error(cerr))
		}
	}()

	opts := append(tgc.settings.Options(),
		channel.WithID(id),
		channel.WithLogger(channelLogger),
		channel.WithStatistics(tgc.communication))

	g := gate.New[element.Record](gate.WithPollInterval(tgc.settings.PollInterval), gate.WithLogger(channelLogger))
	g.Subscribe(func(e event.TaskEvent) {
		taskLogger.Info("Task event", zap.Stringer("event", e))
	})
	in, err := g.AddChannel(serde.Element{}, opts...)
	if err != nil {
		return err
	}
	defer g.ReleaseResources()
	out, err := channel.NewOutputChannel[element.Record](serde.Element{}, opts...)
	if err != nil {
		return err
	}
	defer out.ReleaseResources()

	in.SetBroker(l.consumer)
	l.consumer.Attach(in)
	out.SetBroker(l.producer)
	l.producer.Attach(out)

	reportCtx, stopReport := context.WithCancel(ctx)
	reported := make(chan *statistics.Communication, 1)
	go func() {
		reported <- statistics.NewReporter(tgc.communicator, tgc.reportInterval, taskLogger).Run(reportCtx)
	}()

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		receiver := plugin.NewRecordReceiver(gctx, g)
		if err := writerTask.StartWrite(gctx, receiver); err != nil {
			return fmt.Errorf("writer task failed: %w", err)
		}
		return receiver.Shutdown()
	})
	eg.Go(func() error {
		sender := newRecordSender(gctx, out, tgc.settings, taskLogger)
		var rerr error
		select {
		case <-out.Activated():
			rerr = readerTask.StartRead(gctx, sender)
		case <-out.ConsumerClosed():
			rerr = channel.ErrConsumerClosed
		case <-gctx.Done():
			return gctx.Err()
		}
		if errors.Is(rerr, channel.ErrConsumerClosed) {
			taskLogger.Warn("Consumer closed before the reader finished")
			rerr = nil
		}
		if rerr != nil {
			return fmt.Errorf("reader task failed: %w", rerr)
		}
		if err := sender.Terminate(); err != nil {
			return err
		}
		if tgc.settings.Type == channel.Network {
			select {
			case <-out.ConsumerClosed():
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		l.done()
		return nil
	})
	err = eg.Wait()
	stopReport()
	final := <-reported

	metrics.RecordsWritten = tgc.communication.GetLongCounter(statistics.ChannelRecordsWritten)
	metrics.RecordsRead = tgc.communication.GetLongCounter(statistics.ChannelRecordsRead)
	metrics.BytesRead = tgc.communication.GetLongCounter(statistics.ChannelBytesRead)
	metrics.BuffersConsumed = tgc.communication.GetLongCounter(statistics.ChannelBuffersReleased)
	if err != nil {
		tgc.communication.SetThrowable(err)
		tgc.communication.SetState(statistics.StateFailed)
		metricsLogger.LogTransferError(tgc.settings.Type.String(), string(id), err, metrics)
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			err = fmt.Errorf("tasks cancelled due to error in other task: %w", err)
		}
		return err
	}

	if perr := multierr.Append(readerTask.Post(), writerTask.Post()); perr != nil {
		taskLogger.Warn("Task post processing failed", zap.Error(perr))
	}

	tgc.communication.SetState(statistics.StateSucceeded)
	tgc.communication.SetTimestamp(time.Now().UnixMilli())
	metricsLogger.LogTransferComplete(tgc.settings.Type.String(), string(id), metrics)

	snapshot := statistics.GetSnapshot(final)
	taskLogger.Info("TaskGroup completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int64("totalRecords", metrics.RecordsRead),
		zap.String("total", snapshot.Total),
		zap.String("buffers", snapshot.Buffers))
	return nil
}

func (tgc *Container) createTasks(readerConfig, writerConfig config.Configuration) (plugin.ReaderTask, plugin.WriterTask, error) {
	readerFactory, err := tgc.registry.GetReaderTask(readerConfig.GetString("name"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create reader task: %w", err)
	}
	writerFactory, err := tgc.registry.GetWriterTask(writerConfig.GetString("name"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create writer task: %w", err)
	}
	readerTask := readerFactory.CreateReaderTask()
	writerTask := writerFactory.CreateWriterTask()

	if err := readerTask.Init(readerConfig); err != nil {
		return nil, nil, fmt.Errorf("reader task init failed: %w", err)
	}
	if err := writerTask.Init(writerConfig); err != nil {
		return nil, nil, fmt.Errorf("writer task init failed: %w", err)
	}
	if err := writerTask.Prepare(); err != nil {
		return nil, nil, fmt.Errorf("writer task prepare failed: %w", err)
	}
	return readerTask, writerTask, nil
}

// GetCommunication 获取最近一次Start的统计信息
func (tgc *Container) GetCommunication() *statistics.Communication {
	return tgc.communication
}

// Communicator returns the communicator the channel statistics are
// registered with.
func (tgc *Container) Communicator() *statistics.Communicator {
	return tgc.communicator
}
