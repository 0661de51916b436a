package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/swdee/go-yolobridge/wire"
)

func TestDecodeMetrics(t *testing.T) {

	tests := []struct {
		name string
		in   wire.Map
		want Metrics
	}{
		{
			name: "all fields",
			in: wire.Map{
				"processingTimeMs": 8.5,
				"fps":              int64(24),
				"frameNumber":      7,
			},
			want: Metrics{ProcessingTimeMs: 8.5, FPS: 24, FrameNumber: 7},
		},
		{
			name: "absent fields default to zero",
			in:   wire.Map{},
			want: Metrics{},
		},
		{
			name: "non numeric fields default to zero",
			in: wire.Map{
				"processingTimeMs": "fast",
				"fps":              nil,
				"frameNumber":      []any{},
			},
			want: Metrics{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeMetrics(tt.in))
		})
	}
}

func TestMetricsWindowRolling(t *testing.T) {

	w := NewMetricsWindow(3)

	assert.Equal(t, 0, w.Len())
	assert.Equal(t, MetricsSummary{}, w.Summary())

	w.Add(Metrics{FPS: 10, ProcessingTimeMs: 100})
	w.Add(Metrics{FPS: 20, ProcessingTimeMs: 200})

	s := w.Summary()
	assert.Equal(t, 2, s.Frames)
	assert.InDelta(t, 15.0, s.MeanFPS, 1e-9)
	assert.InDelta(t, 150.0, s.MeanMs, 1e-9)

	w.Add(Metrics{FPS: 30, ProcessingTimeMs: 300})
	// window full, oldest sample evicted
	w.Add(Metrics{FPS: 40, ProcessingTimeMs: 400})

	s = w.Summary()
	assert.Equal(t, 3, s.Frames)
	assert.InDelta(t, 30.0, s.MeanFPS, 1e-9)
	assert.InDelta(t, 300.0, s.MeanMs, 1e-9)
	assert.Greater(t, s.StdDevMs, 0.0)
	assert.InDelta(t, 400.0, s.P95Ms, 1e-9)
}

func TestMetricsWindowDefaultSize(t *testing.T) {

	w := NewMetricsWindow(0)

	for i := 0; i < 150; i++ {
		w.Add(Metrics{FPS: 1, ProcessingTimeMs: 1})
	}

	assert.Equal(t, 100, w.Len())
}
