package statistics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports the channel counters of a Communicator, one
// time series per channel id.
type PrometheusCollector struct {
	communicator *Communicator
	descs        map[string]*prometheus.Desc
}

var metricNames = map[string]struct{ name, help string }{
	ChannelRecordsRead:     {"records_read_total", "Number of records read from input channels"},
	ChannelBytesRead:       {"bytes_read_total", "Number of record bytes read from input channels"},
	ChannelRecordsWritten:  {"records_written_total", "Number of records written to output channels"},
	ChannelBytesWritten:    {"bytes_written_total", "Number of record bytes written to output channels"},
	ChannelBuffersAcquired: {"buffers_acquired_total", "Number of buffers taken from brokers"},
	ChannelBuffersReleased: {"buffers_released_total", "Number of consumed buffers returned to brokers"},
	ChannelBuffersSent:     {"buffers_sent_total", "Number of filled buffers handed to brokers by output channels"},
	ChannelDecompressions:  {"decompressions_total", "Number of buffers decompressed"},
	ChannelUnknownEvents:   {"unknown_events_total", "Number of events of unknown kind"},
	ChannelFaults:          {"faults_total", "Number of reported I/O faults"},
}

// NewPrometheusCollector returns a collector for communicator. The caller
// registers it.
func NewPrometheusCollector(namespace string, communicator *Communicator) *PrometheusCollector {
	if namespace == "" {
		namespace = "dataflow"
	}
	c := &PrometheusCollector{communicator: communicator, descs: make(map[string]*prometheus.Desc)}
	for _, key := range ChannelKeys {
		m := metricNames[key]
		c.descs[key] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "channel", m.name),
			m.help,
			[]string{"channel_id"},
			prometheus.Labels{"component": "dataflow"},
		)
	}
	return c
}

func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, key := range ChannelKeys {
		ch <- c.descs[key]
	}
}

func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	for _, id := range c.communicator.IDs() {
		comm := c.communicator.Get(id)
		if comm == nil {
			continue
		}
		counters := comm.GetCounter()
		for _, key := range ChannelKeys {
			ch <- prometheus.MustNewConstMetric(c.descs[key], prometheus.CounterValue, float64(counters[key]), id)
		}
	}
}
