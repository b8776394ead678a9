package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/MrEthical07/goAuthClient/metrics/export/internaldefs"
	promclient "github.com/prometheus/client_golang/prometheus"
)

// MetricsSource is satisfied by *goAuthClient.Client.
type MetricsSource interface {
	MetricsSnapshot() goAuthClient.MetricsSnapshot
	DroppedEvents() uint64
}

// StateSource is an optional extension of MetricsSource. Sources that implement it also
// export the session state gauge. *goAuthClient.Client does.
type StateSource interface {
	State() goAuthClient.Snapshot
}

var sessionStates = [...]goAuthClient.SessionState{
	goAuthClient.StateLoading,
	goAuthClient.StateUnauthenticated,
	goAuthClient.StateAuthenticated,
	goAuthClient.StateMFAPending,
}

// PrometheusExporter renders client metrics in Prometheus text exposition format. It
// also implements prometheus.Collector for use with a registry.
type PrometheusExporter struct {
	source MetricsSource

	counterDescs   []*promclient.Desc
	histogramDescs []*promclient.Desc
	droppedDesc    *promclient.Desc
	stateDesc      *promclient.Desc
}

var _ promclient.Collector = (*PrometheusExporter)(nil)

// NewPrometheusExporter returns an exporter reading from client.
func NewPrometheusExporter(client *goAuthClient.Client) *PrometheusExporter {
	return NewPrometheusExporterFromSource(client)
}

// NewPrometheusExporterFromSource returns an exporter reading from source.
func NewPrometheusExporterFromSource(source MetricsSource) *PrometheusExporter {
	p := &PrometheusExporter{
		source:      source,
		droppedDesc: promclient.NewDesc(internaldefs.EventsDroppedName, internaldefs.EventsDroppedHelp, nil, nil),
	}
	if _, ok := source.(StateSource); ok {
		p.stateDesc = promclient.NewDesc(internaldefs.SessionStateName, internaldefs.SessionStateHelp, []string{"state"}, nil)
	}
	for _, def := range internaldefs.CounterDefs {
		p.counterDescs = append(p.counterDescs, promclient.NewDesc(def.Name, def.Help, nil, nil))
	}
	for _, def := range internaldefs.HistogramDefs {
		p.histogramDescs = append(p.histogramDescs, promclient.NewDesc(def.Name, def.Help, nil, nil))
	}
	return p
}

// Handler serves Render output.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current metrics, or "" when metrics are disabled and nothing was
// dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.DroppedEvents()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
	}

	for _, def := range internaldefs.HistogramDefs {
		nonCumulative := internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])
		cumulative := internaldefs.CumulativeBuckets(nonCumulative)
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	writeCounter(&b, internaldefs.EventsDroppedName, internaldefs.EventsDroppedHelp, dropped)

	if states, ok := p.source.(StateSource); ok {
		writeStateGauge(&b, states.State().State)
	}

	return b.String()
}

// Describe implements prometheus.Collector.
func (p *PrometheusExporter) Describe(ch chan<- *promclient.Desc) {
	for _, d := range p.counterDescs {
		ch <- d
	}
	for _, d := range p.histogramDescs {
		ch <- d
	}
	ch <- p.droppedDesc
	if p.stateDesc != nil {
		ch <- p.stateDesc
	}
}

// Collect implements prometheus.Collector.
func (p *PrometheusExporter) Collect(ch chan<- promclient.Metric) {
	if p.source == nil {
		return
	}
	snapshot := p.source.MetricsSnapshot()

	for i, def := range internaldefs.CounterDefs {
		ch <- promclient.MustNewConstMetric(p.counterDescs[i], promclient.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for j, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[j]
		}
		ch <- promclient.MustNewConstHistogram(p.histogramDescs[i], cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- promclient.MustNewConstMetric(p.droppedDesc, promclient.CounterValue, float64(p.source.DroppedEvents()))

	if states, ok := p.source.(StateSource); ok && p.stateDesc != nil {
		current := states.State().State
		for _, st := range sessionStates {
			ch <- promclient.MustNewConstMetric(p.stateDesc, promclient.GaugeValue, stateValue(st, current), st.String())
		}
	}
}

func stateValue(st, current goAuthClient.SessionState) float64 {
	if st == current {
		return 1
	}
	return 0
}

func writeStateGauge(b *strings.Builder, current goAuthClient.SessionState) {
	name := internaldefs.SessionStateName
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(internaldefs.SessionStateHelp))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" gauge\n")
	for _, st := range sessionStates {
		b.WriteString(name)
		b.WriteString("{state=\"")
		b.WriteString(st.String())
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatFloat(stateValue(st, current), 'f', -1, 64))
		b.WriteByte('\n')
	}
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" histogram\n")

	for i, le := range internaldefs.HistogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	b.WriteByte('\n')

	// Snapshots carry bucket counts only.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
