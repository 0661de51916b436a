package yolobridge

import (
	"context"
	"fmt"
	"sync"
)

// Pool is a simple predictor pool loading the same model onto multiple
// engine instances, for running single image predictions in parallel
type Pool struct {
	// pool of predictors
	predictors chan *Predictor
	// size of pool
	size  int
	close sync.Once
}

// NewPool creates a pool of size predictors from cfg, each on its own
// engine instance with the model loaded. cfg.MultiInstance is implied.
func NewPool(ctx context.Context, size int, cfg Config) (*Pool, error) {

	p := &Pool{
		predictors: make(chan *Predictor, size),
		size:       size,
	}

	cfg.MultiInstance = true

	for i := 0; i < size; i++ {
		pred, err := New(cfg)

		if err != nil {
			// dispose any instances that may have been created before
			// receiving the error
			p.Close(ctx)
			return nil, err
		}

		ok, err := pred.LoadModel(ctx)

		if err == nil && !ok {
			err = fmt.Errorf("engine declined to load model %s", cfg.ModelPath)
		}

		if err != nil {
			pred.Dispose(ctx)
			p.Close(ctx)
			return nil, err
		}

		// attach to pool
		p.Return(pred)
	}

	return p, nil
}

// Get a predictor from the pool, blocks until one is available
func (p *Pool) Get() *Predictor {
	return <-p.predictors
}

// Return a predictor to the pool
func (p *Pool) Return(pred *Predictor) {
	select {
	case p.predictors <- pred:
	default:
		// pool is full or closed
	}
}

// Size returns the number of predictors the pool was created with
func (p *Pool) Size() int {
	return p.size
}

// Close the pool and dispose all predictors in it
func (p *Pool) Close(ctx context.Context) {
	p.close.Do(func() {
		// close channel
		close(p.predictors)

		// dispose all predictors
		for next := range p.predictors {
			next.Dispose(ctx)
		}
	})
}
