package statistics

import (
	"encoding/json"
	"sync"
	"time"
)

// State 表示任务运行状态
type State int

const (
	StateRunning State = iota
	StateSucceeded
	StateFailed
)

func (s State) IsRunning() bool { return s == StateRunning }

func (s State) IsFinished() bool { return s == StateSucceeded || s == StateFailed }

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Communication 所有的状态及统计信息交互类，channel、taskGroup、job的计数、状态和
// 第一个异常都走该类。可并发使用。
type Communication struct {
	mu sync.RWMutex

	counter   map[string]int64
	state     State
	throwable error
	timestamp int64
}

func NewCommunication() *Communication {
	return &Communication{
		counter:   make(map[string]int64),
		state:     StateRunning,
		timestamp: time.Now().UnixMilli(),
	}
}

func (c *Communication) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter = make(map[string]int64)
	c.state = StateRunning
	c.throwable = nil
	c.timestamp = time.Now().UnixMilli()
}

// GetCounter 获取所有计数器的副本
func (c *Communication) GetCounter() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]int64, len(c.counter))
	for k, v := range c.counter {
		result[k] = v
	}
	return result
}

func (c *Communication) GetState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState 设置状态，已失败的状态不会被覆盖
func (c *Communication) SetState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateFailed {
		return
	}
	c.state = state
}

func (c *Communication) GetThrowable() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.throwable
}

func (c *Communication) GetThrowableMessage() string {
	if err := c.GetThrowable(); err != nil {
		return err.Error()
	}
	return ""
}

// SetThrowable 设置异常，只记录第一个
func (c *Communication) SetThrowable(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.throwable == nil {
		c.throwable = err
	}
}

func (c *Communication) GetTimestamp() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timestamp
}

func (c *Communication) SetTimestamp(timestamp int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timestamp = timestamp
}

func (c *Communication) GetLongCounter(key string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counter[key]
}

func (c *Communication) SetLongCounter(key string, value int64) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter[key] = value
}

func (c *Communication) IncreaseCounter(key string, delta int64) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter[key] += delta
}

func (c *Communication) Clone() *Communication {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := NewCommunication()
	for k, v := range c.counter {
		clone.counter[k] = v
	}
	clone.state = c.state
	clone.throwable = c.throwable
	clone.timestamp = c.timestamp
	return clone
}

// MergeFrom 合并other的计数器。状态优先级：失败 > 运行中 > 成功
func (c *Communication) MergeFrom(other *Communication) *Communication {
	if other == nil || other == c {
		return c
	}
	snapshot := other.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range snapshot.counter {
		c.counter[key] += value
	}
	switch {
	case c.state == StateFailed || snapshot.state == StateFailed:
		c.state = StateFailed
	case c.state.IsRunning() || snapshot.state.IsRunning():
		c.state = StateRunning
	}
	if c.throwable == nil {
		c.throwable = snapshot.throwable
	}
	return c
}

func (c *Communication) IsFinished() bool {
	return c.GetState().IsFinished()
}

func (c *Communication) ToJSON() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data := map[string]interface{}{
		"counter":   c.counter,
		"state":     c.state.String(),
		"timestamp": c.timestamp,
	}
	if c.throwable != nil {
		data["throwable"] = c.throwable.Error()
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
