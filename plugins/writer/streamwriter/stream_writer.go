package streamwriter

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/common/config"
	"github.com/longkeyy/go-dataflow/common/element"
	"github.com/longkeyy/go-dataflow/common/logger"
	"github.com/longkeyy/go-dataflow/common/plugin"
)

const DefaultFieldDelimiter = "\t"

// StreamWriterTask 将记录输出到标准输出或文件，每条记录一行，列之间用fieldDelimiter分隔
type StreamWriterTask struct {
	config         config.Configuration
	print          bool
	path           string
	fileName       string
	fieldDelimiter string

	output      io.Writer
	writer      *bufio.Writer
	file        *os.File
	recordCount int64
	logger      *zap.Logger
}

func NewStreamWriterTask() *StreamWriterTask {
	return &StreamWriterTask{
		print:          true,
		fieldDelimiter: DefaultFieldDelimiter,
		logger:         logger.ComponentWithName("StreamWriter"),
	}
}

func (task *StreamWriterTask) Init(config config.Configuration) error {
	task.config = config
	task.print = config.GetBoolWithDefault("parameter.print", true)
	task.path = config.GetString("parameter.path")
	task.fileName = config.GetString("parameter.fileName")
	task.fieldDelimiter = config.GetStringWithDefault("parameter.fieldDelimiter", DefaultFieldDelimiter)

	task.logger.Info("StreamWriter initialized",
		zap.Bool("print", task.print),
		zap.String("path", task.path),
		zap.String("fileName", task.fileName))
	return nil
}

// Prepare 创建输出目录并清空输出文件
func (task *StreamWriterTask) Prepare() error {
	if task.output != nil {
		task.writer = bufio.NewWriter(task.output)
		return nil
	}
	if task.path == "" || task.fileName == "" {
		task.writer = bufio.NewWriter(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(task.path, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", task.path, err)
	}
	fullPath := filepath.Join(task.path, task.fileName)
	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", fullPath, err)
	}
	task.file = file
	task.writer = bufio.NewWriter(file)
	task.logger.Info("Writing to file", zap.String("file", fullPath))
	return nil
}

func (task *StreamWriterTask) StartWrite(ctx context.Context, recordReceiver plugin.RecordReceiver) error {
	for {
		record, err := recordReceiver.GetFromReader()
		if errors.Is(err, plugin.ErrChannelClosed) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to receive record: %w", err)
		}

		if task.print {
			if _, err := task.writer.WriteString(task.recordToString(record)); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
		}
		task.recordCount++
		if task.recordCount%10000 == 0 {
			task.logger.Debug("Write progress", zap.Int64("records", task.recordCount))
		}
	}

	task.logger.Info("Total records written", zap.Int64("records", task.recordCount))
	return task.writer.Flush()
}

func (task *StreamWriterTask) recordToString(record element.Record) string {
	columnCount := record.GetColumnNumber()
	values := make([]string, columnCount)
	for i := range columnCount {
		values[i] = columnToString(record.GetColumn(i))
	}
	return strings.Join(values, task.fieldDelimiter) + "\n"
}

func columnToString(column element.Column) string {
	if column == nil || column.IsNull() {
		return ""
	}

	switch column.GetType() {
	case element.TypeLong:
		if val, err := column.GetAsLong(); err == nil {
			return strconv.FormatInt(val, 10)
		}
	case element.TypeDouble:
		if val, err := column.GetAsDouble(); err == nil {
			return strconv.FormatFloat(val, 'f', 6, 64)
		}
	case element.TypeBool:
		if val, err := column.GetAsBool(); err == nil {
			return strconv.FormatBool(val)
		}
	case element.TypeDate:
		if val, err := column.GetAsDate(); err == nil {
			return val.Format(time.DateTime)
		}
	case element.TypeBytes:
		if val, err := column.GetAsBytes(); err == nil {
			return hex.EncodeToString(val)
		}
	}
	return column.GetAsString()
}

// RecordCount reports the records received so far.
func (task *StreamWriterTask) RecordCount() int64 { return task.recordCount }

func (task *StreamWriterTask) Post() error {
	return nil
}

func (task *StreamWriterTask) Destroy() error {
	var err error
	if task.writer != nil {
		err = multierr.Append(err, task.writer.Flush())
	}
	if task.file != nil {
		err = multierr.Append(err, task.file.Close())
		task.file = nil
	}
	return err
}
