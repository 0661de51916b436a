package yolobridge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-yolobridge/wire"
)

func TestNewPool(t *testing.T) {

	fm := newFakeMessenger()
	base := Instances.Count()

	pool, err := NewPool(context.Background(), 3, Config{
		ModelPath: "yolo11n.tflite",
		Task:      Detect,
		Messenger: fm,
	})

	require.NoError(t, err)
	defer pool.Close(context.Background())

	assert.Equal(t, 3, pool.Size())

	// each pool slot registered and loaded its own engine instance
	assert.Len(t, fm.callsFor("createInstance"), 3)
	assert.Len(t, fm.callsFor("loadModel"), 3)
	assert.Equal(t, base+3, Instances.Count())

	seen := map[string]bool{}

	for i := 0; i < 3; i++ {
		pred := pool.Get()
		assert.True(t, pred.MultiInstance())
		seen[pred.InstanceID()] = true
	}

	assert.Len(t, seen, 3)
}

func TestNewPoolLoadFailure(t *testing.T) {

	fm := newFakeMessenger()
	fm.failWith("loadModel", wire.CodeModelNotFound, "no such model")
	base := Instances.Count()

	pool, err := NewPool(context.Background(), 2, Config{
		ModelPath: "missing.tflite",
		Task:      Detect,
		Messenger: fm,
	})

	require.Error(t, err)
	assert.Nil(t, pool)

	var mlErr *ModelLoadingError
	assert.ErrorAs(t, err, &mlErr)

	// the failed instance was disposed again
	assert.Equal(t, base, Instances.Count())
}

func TestPoolGetReturn(t *testing.T) {

	fm := newFakeMessenger()
	fm.reply("predictSingleImage", func(string, wire.Map) (any, error) {
		return wire.Map{"detections": []any{}, "processingTimeMs": 5.0}, nil
	})

	pool, err := NewPool(context.Background(), 2, Config{
		ModelPath: "yolo11n.tflite",
		Task:      Detect,
		Messenger: fm,
	})

	require.NoError(t, err)
	defer pool.Close(context.Background())

	// run predictions from several goroutines sharing the pool
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			pred := pool.Get()
			defer pool.Return(pred)

			_, err := pred.Predict(context.Background(), []byte{0xff, 0xd8})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Len(t, fm.callsFor("predictSingleImage"), 8)
}

func TestPoolCloseDisposesAll(t *testing.T) {

	fm := newFakeMessenger()
	base := Instances.Count()

	pool, err := NewPool(context.Background(), 2, Config{
		ModelPath: "yolo11n.tflite",
		Task:      Detect,
		Messenger: fm,
	})

	require.NoError(t, err)
	require.Equal(t, base+2, Instances.Count())

	pool.Close(context.Background())

	assert.Equal(t, base, Instances.Count())
	assert.Len(t, fm.callsFor("disposeInstance"), 2)

	// closing twice is safe
	pool.Close(context.Background())
}
