package yolobridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/swdee/go-yolobridge/wire"
)

func TestStreamingConfigPresets(t *testing.T) {

	def := DefaultStreamingConfig()
	assert.True(t, def.IncludeDetections)
	assert.True(t, def.IncludeFPS)
	assert.False(t, def.IncludeMasks)
	assert.False(t, def.IncludeOriginalImage)

	masks := WithMasksStreamingConfig()
	assert.True(t, masks.IncludeMasks)
	assert.False(t, masks.IncludePoses)

	full := FullStreamingConfig()
	assert.True(t, full.IncludeMasks)
	assert.True(t, full.IncludePoses)
	assert.True(t, full.IncludeOBB)
	assert.False(t, full.IncludeOriginalImage)

	debug := DebugStreamingConfig()
	assert.True(t, debug.IncludeOriginalImage)

	throttled := ThrottledStreamingConfig(15)
	assert.Equal(t, 15, throttled.MaxFPS)

	saving := PowerSavingStreamingConfig()
	assert.Equal(t, 10, saving.InferenceFrequency)
	assert.Equal(t, 15, saving.MaxFPS)

	perf := HighPerformanceStreamingConfig()
	assert.Equal(t, 30, perf.InferenceFrequency)
}

func TestStreamingConfigToMap(t *testing.T) {

	m := DefaultStreamingConfig().ToMap()

	assert.True(t, wire.Bool(m, "includeDetections", false))
	assert.True(t, wire.Bool(m, "includeFps", false))
	assert.False(t, wire.Bool(m, "includeMasks", true))

	// unset frequency controls are omitted so the engine keeps its own
	// defaults
	for _, key := range []string{"maxFPS", "throttleIntervalMs", "inferenceFrequency", "skipFrames"} {
		_, has := m[key]
		assert.False(t, has, "key %s should be omitted", key)
	}

	m = PowerSavingStreamingConfig().ToMap()

	assert.EqualValues(t, 10, wire.Int(m, "inferenceFrequency", 0))
	assert.EqualValues(t, 15, wire.Int(m, "maxFPS", 0))
}
