package streamreader

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/common/config"
	"github.com/longkeyy/go-dataflow/common/element"
	"github.com/longkeyy/go-dataflow/common/logger"
	"github.com/longkeyy/go-dataflow/common/plugin"
)

// StreamReaderTask 按列模板生成sliceRecordCount条记录。
// 配置了value的列重复该值，否则按类型生成随机值。
type StreamReaderTask struct {
	config           config.Configuration
	sliceRecordCount int64
	columns          []map[string]interface{}
	rand             *rand.Rand
	logger           *zap.Logger
}

func NewStreamReaderTask() *StreamReaderTask {
	return &StreamReaderTask{
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger.ComponentWithName("StreamReader"),
	}
}

func (task *StreamReaderTask) Init(config config.Configuration) error {
	task.config = config

	task.sliceRecordCount = config.GetLong("parameter.sliceRecordCount")
	if task.sliceRecordCount <= 0 {
		return fmt.Errorf("sliceRecordCount must be greater than 0")
	}

	columnsConfig := config.GetList("parameter.column")
	if len(columnsConfig) == 0 {
		return fmt.Errorf("column configuration is required")
	}
	for _, columnConfig := range columnsConfig {
		if column, ok := columnConfig.(map[string]interface{}); ok {
			if _, exists := column["type"]; !exists {
				column["type"] = "string"
			}
			task.columns = append(task.columns, column)
		}
	}
	if len(task.columns) == 0 {
		return fmt.Errorf("no valid columns configured")
	}

	task.logger.Info("StreamReader initialized",
		zap.Int64("sliceRecordCount", task.sliceRecordCount),
		zap.Int("columnCount", len(task.columns)))
	return nil
}

func (task *StreamReaderTask) StartRead(ctx context.Context, recordSender plugin.RecordSender) error {
	task.logger.Info("Starting to generate records", zap.Int64("recordCount", task.sliceRecordCount))

	for i := int64(0); i < task.sliceRecordCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		record := element.NewRecord()
		for _, columnConfig := range task.columns {
			record.AddColumn(task.generateColumnValue(columnConfig))
		}
		if err := recordSender.SendRecord(record); err != nil {
			return fmt.Errorf("failed to send record: %w", err)
		}

		if (i+1)%10000 == 0 {
			task.logger.Debug("Generation progress",
				zap.Int64("generated", i+1),
				zap.Int64("total", task.sliceRecordCount))
		}
	}

	task.logger.Info("Generation completed", zap.Int64("totalRecords", task.sliceRecordCount))
	return nil
}

func (task *StreamReaderTask) generateColumnValue(columnConfig map[string]interface{}) element.Column {
	columnType, _ := columnConfig["type"].(string)
	value, hasValue := columnConfig["value"]

	switch columnType {
	case "long":
		if hasValue {
			switch v := value.(type) {
			case string:
				if intVal, err := strconv.ParseInt(v, 10, 64); err == nil {
					return element.NewLongColumn(intVal)
				}
			case float64:
				return element.NewLongColumn(int64(v))
			case int64:
				return element.NewLongColumn(v)
			}
		}
		return element.NewLongColumn(task.rand.Int63n(1000000))

	case "double":
		if hasValue {
			switch v := value.(type) {
			case string:
				if floatVal, err := strconv.ParseFloat(v, 64); err == nil {
					return element.NewDoubleColumn(floatVal)
				}
			case float64:
				return element.NewDoubleColumn(v)
			}
		}
		return element.NewDoubleColumn(task.rand.Float64() * 1000)

	case "bool", "boolean":
		if hasValue {
			switch v := value.(type) {
			case string:
				if boolVal, err := strconv.ParseBool(v); err == nil {
					return element.NewBoolColumn(boolVal)
				}
			case bool:
				return element.NewBoolColumn(v)
			}
		}
		return element.NewBoolColumn(task.rand.Intn(2) == 1)

	case "date":
		if strVal, ok := value.(string); ok {
			if dateVal, err := time.Parse(time.DateTime, strVal); err == nil {
				return element.NewDateColumn(dateVal)
			}
		}
		return element.NewDateColumn(time.Now().AddDate(0, 0, -task.rand.Intn(365)).Truncate(time.Second))

	case "bytes":
		if strVal, ok := value.(string); ok {
			return element.NewBytesColumn([]byte(strVal))
		}
		bytes := make([]byte, task.rand.Intn(20)+5)
		task.rand.Read(bytes)
		return element.NewBytesColumn(bytes)

	default:
		if strVal, ok := value.(string); ok {
			return element.NewStringColumn(strVal)
		}
		return element.NewStringColumn(task.generateRandomString())
	}
}

func (task *StreamReaderTask) generateRandomString() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, task.rand.Intn(16)+5)
	for i := range result {
		result[i] = charset[task.rand.Intn(len(charset))]
	}
	return string(result)
}

func (task *StreamReaderTask) Post() error {
	return nil
}

func (task *StreamReaderTask) Destroy() error {
	return nil
}
