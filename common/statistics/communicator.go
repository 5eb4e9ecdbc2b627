package statistics

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Communicator collects the communications of the channels of one task
// group.
type Communicator struct {
	mu             sync.RWMutex
	communications map[string]*Communication
}

func NewCommunicator() *Communicator {
	return &Communicator{communications: make(map[string]*Communication)}
}

// Register returns the communication for id, creating it on first use.
func (c *Communicator) Register(id string) *Communication {
	c.mu.Lock()
	defer c.mu.Unlock()
	if comm, ok := c.communications[id]; ok {
		return comm
	}
	comm := NewCommunication()
	c.communications[id] = comm
	return comm
}

func (c *Communicator) Get(id string) *Communication {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.communications[id]
}

// IDs lists the registered ids in sorted order.
func (c *Communicator) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.communications))
	for id := range c.communications {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Collect merges all registered communications into a new one.
func (c *Communicator) Collect() *Communication {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := NewCommunication()
	if len(c.communications) > 0 {
		result.SetState(StateSucceeded)
	}
	for _, comm := range c.communications {
		result.MergeFrom(comm)
	}
	return result
}

// Reporter periodically logs the collected progress of a Communicator.
type Reporter struct {
	communicator *Communicator
	interval     time.Duration
	logger       *zap.Logger
}

func NewReporter(communicator *Communicator, interval time.Duration, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{communicator: communicator, interval: interval, logger: logger}
}

// Run reports until ctx is done, then reports once more and returns the final
// collected communication.
func (r *Reporter) Run(ctx context.Context) *Communication {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	last := r.communicator.Collect()
	for {
		select {
		case <-ctx.Done():
			final := r.report(last)
			return final
		case <-ticker.C:
			last = r.report(last)
		}
	}
}

func (r *Reporter) report(last *Communication) *Communication {
	now := r.communicator.Collect()
	now.SetTimestamp(time.Now().UnixMilli())
	Speed(now, last)

	snapshot := GetSnapshot(now)
	r.logger.Info("Channel progress",
		zap.String("total", snapshot.Total),
		zap.String("speed", snapshot.Speed),
		zap.String("buffers", snapshot.Buffers),
		zap.String("error", snapshot.Error),
		zap.String("state", now.GetState().String()),
		zap.Duration("interval", Elapsed(now, last)))
	return now
}
