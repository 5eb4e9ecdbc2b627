package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/longkeyy/go-dataflow/common/element"
	"github.com/longkeyy/go-dataflow/core/channel"
	"github.com/longkeyy/go-dataflow/core/gate"
)

// ChannelRecordSender writes records to an output channel.
type ChannelRecordSender struct {
	ctx context.Context
	out *channel.OutputChannel[element.Record]
}

var _ RecordSender = (*ChannelRecordSender)(nil)

// NewRecordSender returns a sender whose blocking calls end with ctx.
func NewRecordSender(ctx context.Context, out *channel.OutputChannel[element.Record]) *ChannelRecordSender {
	return &ChannelRecordSender{ctx: ctx, out: out}
}

func (s *ChannelRecordSender) SendRecord(record element.Record) error {
	if record == nil {
		return ErrRecordNil
	}
	return s.out.WriteRecord(s.ctx, record)
}

func (s *ChannelRecordSender) Flush() error {
	return s.out.Flush(s.ctx)
}

func (s *ChannelRecordSender) Terminate() error {
	return s.out.Close(s.ctx)
}

func (s *ChannelRecordSender) Shutdown() error {
	s.out.ReleaseResources()
	return nil
}

// GateRecordReceiver reads records from an input gate. The producers are
// activated by the first read.
type GateRecordReceiver struct {
	ctx          context.Context
	gate         *gate.InputGate[element.Record]
	activateOnce sync.Once
	activateErr  error
}

var _ RecordReceiver = (*GateRecordReceiver)(nil)

// NewRecordReceiver returns a receiver whose reads end with ctx.
func NewRecordReceiver(ctx context.Context, g *gate.InputGate[element.Record]) *GateRecordReceiver {
	return &GateRecordReceiver{ctx: ctx, gate: g}
}

// GetFromReader returns a new record on every call, or ErrChannelClosed when
// every channel of the gate has ended.
func (r *GateRecordReceiver) GetFromReader() (element.Record, error) {
	if err := r.activate(); err != nil {
		return nil, err
	}
	record, err := r.gate.ReadRecord(r.ctx, nil)
	if errors.Is(err, channel.ErrEndOfStream) {
		return nil, ErrChannelClosed
	}
	return record, err
}

// Shutdown closes the gate. Producers that were never activated are
// activated first so that network channels can drain them.
func (r *GateRecordReceiver) Shutdown() error {
	return multierr.Append(r.activate(), r.gate.Close(r.ctx))
}

func (r *GateRecordReceiver) activate() error {
	r.activateOnce.Do(func() {
		if err := r.gate.Activate(r.ctx); err != nil {
			r.activateErr = fmt.Errorf("activate input channels: %w", err)
		}
	})
	return r.activateErr
}
