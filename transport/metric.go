package transport

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains atomic counters of one transport link.
type Metrics struct {
	// BytesSent indicates the number of framed bytes written.
	BytesSent atomic.Uint64
	// BytesReceived indicates the number of bytes read, terminators included.
	BytesReceived atomic.Uint64
	// CommandCount indicates the number of commands sent, queries included.
	CommandCount atomic.Uint64
	// QueryCount indicates the number of send-and-receive queries.
	QueryCount atomic.Uint64
	// ErrorCount indicates the number of link faults.
	ErrorCount atomic.Uint64
	// ReconnectCount indicates the number of reconnects.
	ReconnectCount atomic.Uint64
	// Connected is 1 while the link is up.
	Connected atomic.Int32
}

func (m *Metrics) addBytesSent(n int) {
	m.BytesSent.Add(uint64(n)) //nolint:gosec
}

func (m *Metrics) addBytesReceived(n int) {
	m.BytesReceived.Add(uint64(n)) //nolint:gosec
}

func (m *Metrics) incCommandCount() {
	m.CommandCount.Add(1)
}

func (m *Metrics) incQueryCount() {
	m.QueryCount.Add(1)
}

func (m *Metrics) incErrorCount() {
	m.ErrorCount.Add(1)
}

func (m *Metrics) incReconnectCount() {
	m.ReconnectCount.Add(1)
}

func (m *Metrics) setConnected(up bool) {
	if up {
		m.Connected.Store(1)
	} else {
		m.Connected.Store(0)
	}
}

// Collectors returns Prometheus collectors reading the counters.
// constLabels usually identify the instrument, e.g. {"instrument": "psu1"}.
func (m *Metrics) Collectors(namespace string, constLabels prometheus.Labels) []prometheus.Collector {
	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "transport",
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 { return float64(v.Load()) })
	}

	return []prometheus.Collector{
		counter("bytes_sent_total", "Framed bytes written to the link.", &m.BytesSent),
		counter("bytes_received_total", "Bytes read from the link.", &m.BytesReceived),
		counter("commands_total", "Commands sent over the link.", &m.CommandCount),
		counter("queries_total", "Queries exchanged over the link.", &m.QueryCount),
		counter("errors_total", "Link faults.", &m.ErrorCount),
		counter("reconnects_total", "Reconnects of the link.", &m.ReconnectCount),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "transport",
			Name:        "connected",
			Help:        "1 while the link is connected.",
			ConstLabels: constLabels,
		}, func() float64 { return float64(m.Connected.Load()) }),
	}
}
