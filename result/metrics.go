package result

import (
	"sort"
	"sync"

	"github.com/swdee/go-yolobridge/wire"
	"gonum.org/v1/gonum/stat"
)

// Metrics are the per frame performance figures reported by the engine.
// Fields default to 0 when the wire map omits them or carries a non
// numeric value.
type Metrics struct {
	// ProcessingTimeMs is the engine side inference time for the frame
	ProcessingTimeMs float64
	// FPS is the engine reported throughput
	FPS float64
	// FrameNumber is the engine side frame counter
	FrameNumber int64
}

// DecodeMetrics reads the performance fields from a wire map.
func DecodeMetrics(m wire.Map) Metrics {
	return Metrics{
		ProcessingTimeMs: wire.Float(m, "processingTimeMs", 0),
		FPS:              wire.Float(m, "fps", 0),
		FrameNumber:      wire.Int(m, "frameNumber", 0),
	}
}

// MetricsSummary aggregates the per frame metrics observed over a
// sliding window.
type MetricsSummary struct {
	// Frames is the number of samples in the window
	Frames int
	// MeanFPS is the average engine reported FPS
	MeanFPS float64
	// MeanMs is the average processing time in milliseconds
	MeanMs float64
	// StdDevMs is the processing time standard deviation
	StdDevMs float64
	// P95Ms is the 95th percentile processing time
	P95Ms float64
}

// MetricsWindow keeps the most recent per frame metrics and computes
// rolling aggregate statistics over them. Safe for concurrent use.
type MetricsWindow struct {
	mu   sync.Mutex
	size int
	fps  []float64
	ms   []float64
	next int
	full bool
}

// NewMetricsWindow creates a window holding the last size samples. A
// size less than 1 defaults to 100.
func NewMetricsWindow(size int) *MetricsWindow {

	if size < 1 {
		size = 100
	}

	return &MetricsWindow{
		size: size,
		fps:  make([]float64, 0, size),
		ms:   make([]float64, 0, size),
	}
}

// Add records one frame's metrics, evicting the oldest sample once the
// window is full.
func (w *MetricsWindow) Add(m Metrics) {

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.full && len(w.fps) < w.size {
		w.fps = append(w.fps, m.FPS)
		w.ms = append(w.ms, m.ProcessingTimeMs)

		if len(w.fps) == w.size {
			w.full = true
		}

		return
	}

	w.fps[w.next] = m.FPS
	w.ms[w.next] = m.ProcessingTimeMs
	w.next = (w.next + 1) % w.size
}

// Len returns the number of samples currently held.
func (w *MetricsWindow) Len() int {

	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.fps)
}

// Summary computes aggregate statistics over the current window
// contents. An empty window yields the zero summary.
func (w *MetricsWindow) Summary() MetricsSummary {

	w.mu.Lock()
	fps := append([]float64(nil), w.fps...)
	ms := append([]float64(nil), w.ms...)
	w.mu.Unlock()

	if len(ms) == 0 {
		return MetricsSummary{}
	}

	s := MetricsSummary{
		Frames:  len(ms),
		MeanFPS: stat.Mean(fps, nil),
		MeanMs:  stat.Mean(ms, nil),
	}

	if len(ms) > 1 {
		s.StdDevMs = stat.StdDev(ms, nil)
	}

	sorted := append([]float64(nil), ms...)
	sort.Float64s(sorted)
	s.P95Ms = stat.Quantile(0.95, stat.Empirical, sorted, nil)

	return s
}
