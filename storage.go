package yolobridge

import (
	"context"

	"github.com/swdee/go-yolobridge/wire"
)

// CheckModelExists asks the engine whether a model file is present at
// path. The reply carries exists, path, and location keys describing
// where the engine found it. Failures are reported in band, the returned
// map has exists false plus an error key and no error is raised.
func CheckModelExists(ctx context.Context, inv wire.Invoker, path string) wire.Map {

	res, err := inv.Invoke(ctx, wire.DefaultMethodChannel, "checkModelExists",
		wire.Map{"modelPath": path})

	if err != nil {
		return wire.Map{
			"exists": false,
			"path":   path,
			"error":  err.Error(),
		}
	}

	m, ok := wire.AsMap(res)

	if !ok {
		return wire.Map{
			"exists": false,
			"path":   path,
			"error":  "unexpected engine reply",
		}
	}

	return m
}

// GetStoragePaths returns the engine host's storage locations keyed by
// name (internal, cache, external, externalCache). An empty map is
// returned on failure.
func GetStoragePaths(ctx context.Context, inv wire.Invoker) map[string]string {

	res, err := inv.Invoke(ctx, wire.DefaultMethodChannel, "getStoragePaths", nil)

	if err != nil {
		return map[string]string{}
	}

	m, ok := wire.AsMap(res)

	if !ok {
		return map[string]string{}
	}

	paths := make(map[string]string, len(m))

	for k, val := range m {
		if s, sok := val.(string); sok {
			paths[k] = s
		}
	}

	return paths
}
