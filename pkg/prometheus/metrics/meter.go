package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/Borislavv/presentation-gate/pkg/prometheus/metrics/keyword"
	"github.com/VictoriaMetrics/metrics"
)

type Meter interface {
	IncTotal(method string)
	IncStatus(method string, status int)
	NewResponseTimeTimer(method string) *Timer
	FlushResponseTimeTimer(t *Timer)
}

type Metrics struct{}

func New() *Metrics {
	return &Metrics{}
}

var statuses [600]string

func init() {
	for i := 100; i <= 599; i++ {
		statuses[i] = strconv.Itoa(i)
	}
}

func (m *Metrics) IncTotal(method string) {
	buf := getBuf()
	defer putBuf(buf)

	*buf = append(*buf, keyword.TotalHttpRequestsMetricName...)
	*buf = append(*buf, `{method="`...)
	*buf = append(*buf, sanitizeMethod(method)...)
	*buf = append(*buf, `"}`...)

	metrics.GetOrCreateCounter(string(*buf)).Inc()
}

func (m *Metrics) IncStatus(method string, status int) {
	if status < 100 || status >= len(statuses) {
		status = 500
	}

	buf := getBuf()
	defer putBuf(buf)

	*buf = append(*buf, keyword.TotalHttpResponsesMetricName...)
	*buf = append(*buf, `{method="`...)
	*buf = append(*buf, sanitizeMethod(method)...)
	*buf = append(*buf, `",status="`...)
	*buf = append(*buf, statuses[status]...)
	*buf = append(*buf, `"}`...)

	metrics.GetOrCreateCounter(string(*buf)).Inc()
}

// Timer tracks a single response time, pooled.
type Timer struct {
	start time.Time
	name  []byte
}

var timerPool = sync.Pool{
	New: func() any {
		return &Timer{name: make([]byte, 0, 96)}
	},
}

func (m *Metrics) NewResponseTimeTimer(method string) *Timer {
	t := timerPool.Get().(*Timer)
	t.start = time.Now()
	t.name = append(t.name[:0], keyword.HttpResponseTimeMsMetricName...)
	t.name = append(t.name, `{method="`...)
	t.name = append(t.name, sanitizeMethod(method)...)
	t.name = append(t.name, `"}`...)
	return t
}

func (m *Metrics) FlushResponseTimeTimer(t *Timer) {
	durationMs := float64(time.Since(t.start).Microseconds()) / 1000
	metrics.GetOrCreateHistogram(string(t.name)).Update(durationMs)
	timerPool.Put(t)
}

// sanitizeMethod keeps label cardinality bounded: unknown methods collapse into "OTHER".
func sanitizeMethod(method string) string {
	switch method {
	case "GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS":
		return method
	default:
		return "OTHER"
	}
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 128)
		return &b
	},
}

func getBuf() *[]byte {
	return bufPool.Get().(*[]byte)
}

func putBuf(b *[]byte) {
	*b = (*b)[:0]
	bufPool.Put(b)
}
