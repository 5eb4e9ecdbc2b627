package logger

import (
	"time"

	"go.uber.org/zap"
)

// MetricsLogger 组件级的传输指标日志器
type MetricsLogger struct {
	logger *zap.Logger
}

func NewMetricsLogger(component string) *MetricsLogger {
	return &MetricsLogger{logger: ComponentWithName(component)}
}

// TransferMetrics 一次从生产者到消费者的传输指标
type TransferMetrics struct {
	StartTime       time.Time
	EndTime         time.Time
	RecordsWritten  int64
	RecordsRead     int64
	BytesRead       int64
	BuffersConsumed int64
	Throughput      float64 // records/second
	ErrorCount      int64
}

func NewTransferMetrics() *TransferMetrics {
	return &TransferMetrics{StartTime: time.Now()}
}

func (m *TransferMetrics) Duration() time.Duration {
	if m.EndTime.IsZero() {
		return time.Since(m.StartTime)
	}
	return m.EndTime.Sub(m.StartTime)
}

func (m *TransferMetrics) CalculateThroughput() {
	if seconds := m.Duration().Seconds(); seconds > 0 {
		m.Throughput = float64(m.RecordsRead) / seconds
	}
}

func (ml *MetricsLogger) LogTransferStart(channelType, channelID string) {
	ml.logger.Info("Transfer started",
		zap.String("channelType", channelType),
		zap.String("channelId", channelID))
}

func (ml *MetricsLogger) LogTransferComplete(channelType, channelID string, metrics *TransferMetrics) {
	metrics.EndTime = time.Now()
	metrics.CalculateThroughput()

	ml.logger.Info("Transfer completed",
		zap.String("channelType", channelType),
		zap.String("channelId", channelID),
		zap.Duration("duration", metrics.Duration()),
		zap.Int64("recordsWritten", metrics.RecordsWritten),
		zap.Int64("recordsRead", metrics.RecordsRead),
		zap.Int64("bytesRead", metrics.BytesRead),
		zap.Int64("buffersConsumed", metrics.BuffersConsumed),
		zap.Float64("throughput", metrics.Throughput),
		zap.Int64("errors", metrics.ErrorCount))
}

func (ml *MetricsLogger) LogTransferError(channelType, channelID string, err error, metrics *TransferMetrics) {
	metrics.ErrorCount++
	ml.logger.Error("Transfer error",
		zap.String("channelType", channelType),
		zap.String("channelId", channelID),
		zap.Error(err),
		zap.Int64("recordsRead", metrics.RecordsRead),
		zap.Int64("totalErrors", metrics.ErrorCount))
}

// Metrics 获取组件的指标日志器
func Metrics(component string) *MetricsLogger {
	return NewMetricsLogger(component)
}
