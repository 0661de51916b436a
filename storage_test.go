package yolobridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-yolobridge/wire"
)

func TestCheckModelExists(t *testing.T) {

	f := newFakeMessenger()
	f.reply("checkModelExists", func(_ string, args wire.Map) (any, error) {
		return wire.Map{
			"exists":   true,
			"path":     wire.String(args, "modelPath", ""),
			"location": "assets",
		}, nil
	})

	m := CheckModelExists(context.Background(), f, "yolo11n.tflite")

	assert.True(t, wire.Bool(m, "exists", false))
	assert.Equal(t, "yolo11n.tflite", wire.String(m, "path", ""))
	assert.Equal(t, "assets", wire.String(m, "location", ""))
}

func TestCheckModelExistsDegradesOnFailure(t *testing.T) {

	f := newFakeMessenger()
	f.reply("checkModelExists", func(string, wire.Map) (any, error) {
		return nil, errors.New("engine offline")
	})

	// failures are reported in band, never raised
	m := CheckModelExists(context.Background(), f, "missing.tflite")

	assert.False(t, wire.Bool(m, "exists", true))
	assert.Equal(t, "missing.tflite", wire.String(m, "path", ""))
	assert.Contains(t, wire.String(m, "error", ""), "engine offline")
}

func TestCheckModelExistsBadReply(t *testing.T) {

	f := newFakeMessenger()
	f.reply("checkModelExists", func(string, wire.Map) (any, error) {
		return "yes", nil
	})

	m := CheckModelExists(context.Background(), f, "m.tflite")

	assert.False(t, wire.Bool(m, "exists", true))
	assert.NotEmpty(t, wire.String(m, "error", ""))
}

func TestGetStoragePaths(t *testing.T) {

	f := newFakeMessenger()
	f.reply("getStoragePaths", func(string, wire.Map) (any, error) {
		return wire.Map{
			"internal":      "/data/app",
			"cache":         "/data/cache",
			"external":      "/sdcard/app",
			"externalCache": nil,
		}, nil
	})

	paths := GetStoragePaths(context.Background(), f)

	require.Len(t, paths, 3)
	assert.Equal(t, "/data/app", paths["internal"])
	assert.Equal(t, "/data/cache", paths["cache"])

	// null entries are dropped rather than kept as empty strings
	_, has := paths["externalCache"]
	assert.False(t, has)
}

func TestGetStoragePathsEmptyOnFailure(t *testing.T) {

	f := newFakeMessenger()
	f.reply("getStoragePaths", func(string, wire.Map) (any, error) {
		return nil, errors.New("engine offline")
	})

	paths := GetStoragePaths(context.Background(), f)

	assert.NotNil(t, paths)
	assert.Empty(t, paths)
}
