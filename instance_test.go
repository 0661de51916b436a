package yolobridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceManagerLifecycle(t *testing.T) {

	m := NewInstanceManager()
	p1 := &Predictor{}
	p2 := &Predictor{}

	assert.Equal(t, 0, m.Count())
	assert.False(t, m.Has("yolo_a"))

	m.Register("yolo_a", p1)
	m.Register("yolo_b", p2)

	assert.Equal(t, 2, m.Count())
	assert.True(t, m.Has("yolo_a"))

	got, ok := m.Get("yolo_a")
	require.True(t, ok)
	assert.Same(t, p1, got)

	ids := m.ActiveIDs()
	assert.ElementsMatch(t, []string{"yolo_a", "yolo_b"}, ids)

	// registered then unregistered ids are fully gone
	m.Unregister("yolo_a")

	assert.False(t, m.Has("yolo_a"))
	assert.Equal(t, 1, m.Count())

	got, ok = m.Get("yolo_a")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestInstanceManagerUnregisterAbsent(t *testing.T) {

	m := NewInstanceManager()

	// removing an id that was never registered is not an error
	m.Unregister("yolo_missing")

	assert.Equal(t, 0, m.Count())
}

func TestInstanceManagerLastWriteWins(t *testing.T) {

	m := NewInstanceManager()
	p1 := &Predictor{}
	p2 := &Predictor{}

	m.Register("yolo_a", p1)
	m.Register("yolo_a", p2)

	assert.Equal(t, 1, m.Count())

	got, ok := m.Get("yolo_a")
	require.True(t, ok)
	assert.Same(t, p2, got)
}
