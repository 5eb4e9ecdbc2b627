package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *Logger
	once         sync.Once
	mu           sync.RWMutex
)

// LogLevel 日志级别
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      LogLevel `json:"level"`
	OutputPath string   `json:"output_path"`
	// Development 为true时使用console编码，否则输出JSON
	Development bool `json:"development"`
	Console     bool `json:"console"`
}

func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:       LevelInfo,
		Development: true,
		Console:     true,
	}
}

// Logger 全局日志管理器
type Logger struct {
	base      *zap.Logger
	app       *zap.Logger
	component *zap.Logger
	channel   *zap.Logger
	level     zap.AtomicLevel
	config    *LoggerConfig
}

// Initialize 初始化全局日志管理器，只有第一次调用生效
func Initialize(config *LoggerConfig) error {
	var err error
	once.Do(func() {
		if config == nil {
			config = DefaultConfig()
		}
		var l *Logger
		l, err = newLogger(config)
		if err != nil {
			return
		}
		mu.Lock()
		globalLogger = l
		mu.Unlock()
	})
	return err
}

func newLogger(config *LoggerConfig) (*Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapConfig.DisableStacktrace = false
	zapConfig.EncoderConfig.StacktraceKey = "stacktrace"
	zapConfig.Level = zap.NewAtomicLevelAt(parseLevel(config.Level))

	var outputPaths []string
	if config.Console {
		outputPaths = append(outputPaths, "stdout")
	}
	if config.OutputPath != "" {
		outputPaths = append(outputPaths, config.OutputPath)
	}
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}
	zapConfig.OutputPaths = outputPaths
	zapConfig.ErrorOutputPaths = outputPaths

	zapConfig.EncoderConfig.TimeKey = "timestamp"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.MessageKey = "message"
	zapConfig.EncoderConfig.LevelKey = "level"

	// Caller info always points into this package.
	zapConfig.DisableCaller = true

	base, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return fromZap(base, zapConfig.Level, config), nil
}

func fromZap(base *zap.Logger, level zap.AtomicLevel, config *LoggerConfig) *Logger {
	return &Logger{
		base:      base,
		app:       base.Named("APP"),
		component: base.Named("COMPONENT"),
		channel:   base.Named("CHANNEL"),
		level:     level,
		config:    config,
	}
}

func parseLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLogger 获取全局日志器，未初始化时使用默认配置
func GetLogger() *Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	if err := Initialize(DefaultConfig()); err != nil {
		return Replace(zap.NewNop())
	}
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger == nil {
		return fromZap(zap.NewNop(), zap.NewAtomicLevel(), DefaultConfig())
	}
	return globalLogger
}

// Replace 用base替换全局日志器，测试中配合zaptest/observer使用
func Replace(base *zap.Logger) *Logger {
	once.Do(func() {})
	l := fromZap(base, zap.NewAtomicLevelAt(base.Level()), DefaultConfig())
	mu.Lock()
	globalLogger = l
	mu.Unlock()
	return l
}

func (l *Logger) App() *zap.Logger { return l.app }

func (l *Logger) Component() *zap.Logger { return l.component }

func (l *Logger) Channel() *zap.Logger { return l.channel }

// SetLevel 动态调整日志级别
func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(parseLevel(level))
}

func (l *Logger) Sync() error {
	return l.base.Sync()
}

func App() *zap.Logger { return GetLogger().App() }

func Component() *zap.Logger { return GetLogger().Component() }

// ComponentWithName 获取指定名称的组件级日志器
func ComponentWithName(component string) *zap.Logger {
	return Component().Named(component)
}

// ChannelLogger 获取通道级日志器，附带channelId和在gate中的索引
func ChannelLogger(channelID string, gateIndex int) *zap.Logger {
	return GetLogger().Channel().With(
		zap.String("channelId", channelID),
		zap.Int("gateIndex", gateIndex),
	)
}

// TaskGroupLogger 获取附带taskGroup ID的应用级日志器
func TaskGroupLogger(taskGroupID int) *zap.Logger {
	return App().With(zap.Int("taskGroup", taskGroupID))
}

func SetLevel(level LogLevel) { GetLogger().SetLevel(level) }

func Sync() error { return GetLogger().Sync() }
