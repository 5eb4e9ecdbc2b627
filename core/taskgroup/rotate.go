package taskgroup

import (
	"context"

	"go.uber.org/zap"

	"github.com/longkeyy/go-dataflow/common/element"
	"github.com/longkeyy/go-dataflow/common/plugin"
	"github.com/longkeyy/go-dataflow/core/channel"
	"github.com/longkeyy/go-dataflow/core/compression"
)

// rotatingSender moves a dynamic channel to the next registered compression
// library after every interval records.
type rotatingSender struct {
	plugin.RecordSender
	ctx       context.Context
	out       *channel.OutputChannel[element.Record]
	logger    *zap.Logger
	interval  int
	libraries []int
	next      int
	sent      int
}

// newRecordSender returns the sender handed to the reader task. Rotation is
// only applied to dynamic channels with a positive interval.
func newRecordSender(ctx context.Context, out *channel.OutputChannel[element.Record], s channel.Settings, logger *zap.Logger) plugin.RecordSender {
	sender := plugin.NewRecordSender(ctx, out)
	libraries := compression.Libraries()
	if s.Compression != compression.Dynamic || s.RotateRecords <= 0 || len(libraries) < 2 {
		return sender
	}
	// Dynamic channels start on the lowest registered index.
	return &rotatingSender{
		RecordSender: sender,
		ctx:          ctx,
		out:          out,
		logger:       logger,
		interval:     s.RotateRecords,
		libraries:    libraries,
		next:         1,
	}
}

func (r *rotatingSender) SendRecord(record element.Record) error {
	if r.sent > 0 && r.sent%r.interval == 0 && record != nil {
		index := r.libraries[r.next]
		if err := r.out.SwitchCompressionLibrary(r.ctx, index); err != nil {
			return err
		}
		r.next = (r.next + 1) % len(r.libraries)
		r.logger.Debug("Compression library switched",
			zap.String("library", compression.LibraryName(index)),
			zap.Int("records", r.sent))
	}
	if err := r.RecordSender.SendRecord(record); err != nil {
		return err
	}
	r.sent++
	return nil
}
