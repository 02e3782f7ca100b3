package processor

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/deegree/ows/worker/gdalprocess"
	"github.com/deegree/ows/worker/rpc"
	"google.golang.org/grpc"
)

const DefaultMaxGrpcRecvMsgSize = 64 * 1024 * 1024

// Warper resamples a band of a source file into a destination grid.
type Warper interface {
	Warp(ctx context.Context, in *rpc.WarpRequest) (*rpc.WarpResult, error)
}

// WorkerPool spreads warps round robin over remote workers.
type WorkerPool struct {
	conns   []*grpc.ClientConn
	clients []*rpc.WorkerClient
	next    uint32
}

func DialWorkers(workerNodes []string, maxGrpcRecvMsgSize int) (*WorkerPool, error) {
	if maxGrpcRecvMsgSize <= 0 {
		maxGrpcRecvMsgSize = DefaultMaxGrpcRecvMsgSize
	}
	opts := []grpc.DialOption{
		grpc.WithInsecure(),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxGrpcRecvMsgSize)),
	}

	nodes := append([]string(nil), workerNodes...)
	rand.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

	pool := &WorkerPool{}
	for _, node := range nodes {
		conn, err := grpc.Dial(node, opts...)
		if err != nil {
			log.Printf("gRPC connection problem: %v", err)
			continue
		}
		pool.conns = append(pool.conns, conn)
		pool.clients = append(pool.clients, rpc.NewWorkerClient(conn))
	}
	if len(pool.clients) == 0 {
		return nil, fmt.Errorf("All gRPC servers offline")
	}
	return pool, nil
}

func (p *WorkerPool) client() *rpc.WorkerClient {
	n := atomic.AddUint32(&p.next, 1)
	return p.clients[int(n)%len(p.clients)]
}

func (p *WorkerPool) Warp(ctx context.Context, in *rpc.WarpRequest) (*rpc.WarpResult, error) {
	return p.client().Warp(ctx, in)
}

func (p *WorkerPool) Info(ctx context.Context, in *rpc.InfoRequest) (*rpc.DatasetInfo, error) {
	return p.client().Info(ctx, in)
}

func (p *WorkerPool) Close() {
	for _, conn := range p.conns {
		conn.Close()
	}
}

// NewWarper dials workerNodes, or warps in process when there are
// none.
func NewWarper(workerNodes []string, maxGrpcRecvMsgSize, concLimit int, debug bool) (Warper, error) {
	if len(workerNodes) == 0 {
		return gdalprocess.NewLocalWorker(concLimit, debug), nil
	}
	return DialWorkers(workerNodes, maxGrpcRecvMsgSize)
}

type GeoRasterGRPC struct {
	Context   context.Context
	In        chan *GeoTileGranule
	Out       chan *FlexRaster
	Error     chan error
	Warper    Warper
	ConcLimit int
}

func NewRasterGRPC(ctx context.Context, warper Warper, concLimit int, errChan chan error) *GeoRasterGRPC {
	return &GeoRasterGRPC{
		Context:   ctx,
		In:        make(chan *GeoTileGranule, 100),
		Out:       make(chan *FlexRaster, 100),
		Error:     errChan,
		Warper:    warper,
		ConcLimit: concLimit,
	}
}

func (gi *GeoRasterGRPC) Run(verbose bool) {
	if verbose {
		defer log.Printf("tile grpc done")
	}
	defer close(gi.Out)

	cLimiter := NewConcLimiter(gi.ConcLimit)
	var failed int32
	var wg sync.WaitGroup
	for gran := range gi.In {
		if atomic.LoadInt32(&failed) != 0 {
			continue
		}
		if err := cLimiter.IncreaseContext(gi.Context); err != nil {
			sendError(gi.Error, fmt.Errorf("tile grpc context has been cancel: %v", err))
			atomic.StoreInt32(&failed, 1)
			continue
		}
		wg.Add(1)
		go func(g *GeoTileGranule) {
			defer wg.Done()
			defer cLimiter.Decrease()
			r, err := getRPCRaster(gi.Context, g, gi.Warper)
			if err != nil {
				sendError(gi.Error, err)
				atomic.StoreInt32(&failed, 1)
				return
			}
			select {
			case gi.Out <- r:
			case <-gi.Context.Done():
			}
		}(gran)
	}
	wg.Wait()
}

func getRPCRaster(ctx context.Context, g *GeoTileGranule, warper Warper) (*FlexRaster, error) {
	geot := []float64{g.BBox.MinX, g.BBox.Width() / float64(g.Width), 0, g.BBox.MaxY, 0, -g.BBox.Height() / float64(g.Height)}
	req := &rpc.WarpRequest{Path: g.Path, Band: g.Band, Width: g.Width, Height: g.Height, Geot: geot, CRS: g.CRS, Resampling: g.Resampling}
	r, err := warper.Warp(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("warp %s band %d: %v", g.Path, g.Band, err)
	}
	dataSize, err := getDataSize(r.Type)
	if err != nil {
		return nil, err
	}
	if len(r.Data) != g.Width*g.Height*dataSize {
		return nil, fmt.Errorf("warp %s band %d: expected %d bytes, received %d", g.Path, g.Band, g.Width*g.Height*dataSize, len(r.Data))
	}
	return &FlexRaster{Data: r.Data, Height: g.Height, Width: g.Width, OffX: g.OffX, OffY: g.OffY,
		Type: r.Type, NoData: r.NoData, NameSpace: g.NameSpace, Level: g.Level, Seq: g.Seq}, nil
}

func getDataSize(dataType string) (int, error) {
	switch dataType {
	case "Byte":
		return 1, nil
	case "Int16":
		return 2, nil
	case "UInt16":
		return 2, nil
	case "Float32":
		return 4, nil
	default:
		return -1, fmt.Errorf("Unsupported raster type %s", dataType)

	}
}
