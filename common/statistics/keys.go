package statistics

import (
	"fmt"
	"time"
)

// Counter keys maintained by input and output channels.
const (
	ChannelRecordsRead     = "channelRecordsRead"
	ChannelBytesRead       = "channelBytesRead"
	ChannelRecordsWritten  = "channelRecordsWritten"
	ChannelBytesWritten    = "channelBytesWritten"
	ChannelBuffersAcquired = "channelBuffersAcquired"
	ChannelBuffersReleased = "channelBuffersReleased"
	ChannelBuffersSent     = "channelBuffersSent"
	ChannelDecompressions  = "channelDecompressions"
	ChannelUnknownEvents   = "channelUnknownEvents"
	ChannelFaults          = "channelFaults"

	// Derived by Speed.
	ByteSpeed   = "byteSpeed"
	RecordSpeed = "recordSpeed"
)

// ChannelKeys lists the channel counter keys in a stable order.
var ChannelKeys = []string{
	ChannelRecordsRead,
	ChannelBytesRead,
	ChannelRecordsWritten,
	ChannelBytesWritten,
	ChannelBuffersAcquired,
	ChannelBuffersReleased,
	ChannelBuffersSent,
	ChannelDecompressions,
	ChannelUnknownEvents,
	ChannelFaults,
}

// Speed stores the per-second read rates between old and now into now.
func Speed(now, old *Communication) *Communication {
	interval := now.GetTimestamp() - old.GetTimestamp()
	var sec int64 = 1
	if interval > 1000 {
		sec = interval / 1000
	}

	byteSpeed := (now.GetLongCounter(ChannelBytesRead) - old.GetLongCounter(ChannelBytesRead)) / sec
	recordSpeed := (now.GetLongCounter(ChannelRecordsRead) - old.GetLongCounter(ChannelRecordsRead)) / sec
	now.SetLongCounter(ByteSpeed, max(byteSpeed, 0))
	now.SetLongCounter(RecordSpeed, max(recordSpeed, 0))

	if err := old.GetThrowable(); err != nil {
		now.SetThrowable(err)
	}
	return now
}

// Snapshot is a human-readable summary of a Communication.
type Snapshot struct {
	Total   string
	Speed   string
	Buffers string
	Error   string
}

func GetSnapshot(c *Communication) Snapshot {
	return Snapshot{
		Total: fmt.Sprintf("%d records, %s",
			c.GetLongCounter(ChannelRecordsRead), formatBytes(c.GetLongCounter(ChannelBytesRead))),
		Speed: fmt.Sprintf("%s/s, %d records/s",
			formatBytes(c.GetLongCounter(ByteSpeed)), c.GetLongCounter(RecordSpeed)),
		Buffers: fmt.Sprintf("%d sent, %d acquired, %d released",
			c.GetLongCounter(ChannelBuffersSent), c.GetLongCounter(ChannelBuffersAcquired), c.GetLongCounter(ChannelBuffersReleased)),
		Error: fmt.Sprintf("%d faults, %d unknown events",
			c.GetLongCounter(ChannelFaults), c.GetLongCounter(ChannelUnknownEvents)),
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Elapsed reports the time between the timestamps of two communications.
func Elapsed(now, old *Communication) time.Duration {
	return time.Duration(now.GetTimestamp()-old.GetTimestamp()) * time.Millisecond
}
