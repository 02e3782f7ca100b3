package gdalprocess

import (
	"context"

	"github.com/deegree/ows/worker/rpc"
)

// LocalWorker runs warps in process. It serves the worker RPC in
// grpc-server and stands in for remote workers when none are
// configured.
type LocalWorker struct {
	pool  chan struct{}
	Debug bool
}

func NewLocalWorker(concurrency int, debug bool) *LocalWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &LocalWorker{pool: make(chan struct{}, concurrency), Debug: debug}
}

func (w *LocalWorker) acquire(ctx context.Context) error {
	select {
	case w.pool <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *LocalWorker) Warp(ctx context.Context, in *rpc.WarpRequest) (*rpc.WarpResult, error) {
	if err := w.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() { <-w.pool }()
	return WarpRaster(in, w.Debug)
}

func (w *LocalWorker) Info(ctx context.Context, in *rpc.InfoRequest) (*rpc.DatasetInfo, error) {
	if err := w.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() { <-w.pool }()
	return DatasetInfo(in.Path)
}
