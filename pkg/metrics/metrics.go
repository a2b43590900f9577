package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

const (
	ResultHit     = "hit"
	ResultRender  = "render"
	ResultFailure = "failure"
)

var (
	// FrameReads counts ReadFrame calls by how the frame was produced.
	FrameReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framecache_frame_reads_total",
		Help: "Total frame reads by result (hit, render, failure)",
	}, []string{"result"})

	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framecache_render_duration_seconds",
		Help:    "Time taken to render a frame that missed the cache",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	CacheWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framecache_cache_write_failures_total",
		Help: "Rendered frames that could not be written back to the sequence store",
	})

	// Invalidations counts sequences dropped because their composition changed.
	Invalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framecache_invalidations_total",
		Help: "Sequence handles dropped after a composition content change",
	})

	EngineReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framecache_engine_releases_total",
		Help: "Rendering engines released once their sequence was complete",
	})
)

func ObserveRead(result string) {
	FrameReads.WithLabelValues(result).Inc()
}

func ObserveRender(d time.Duration) {
	RenderDuration.Observe(d.Seconds())
}

// Totals gathers the current value of every framecache counter, keyed by
// metric name with the result label appended for frame reads.
func Totals(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	totals := map[string]float64{}
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER || !strings.HasPrefix(mf.GetName(), "framecache_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, l := range m.GetLabel() {
				name += "." + l.GetValue()
			}
			totals[name] = m.GetCounter().GetValue()
		}
	}
	return totals, nil
}
