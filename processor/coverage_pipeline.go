package processor

import (
	"context"
	"fmt"

	"github.com/deegree/ows/utils"
)

type CoveragePipeline struct {
	Context   context.Context
	Error     chan error
	Warper    Warper
	ConcLimit int
	Verbose   bool
}

func InitCoveragePipeline(ctx context.Context, warper Warper, concLimit int, verbose bool, errChan chan error) *CoveragePipeline {
	if errChan == nil {
		errChan = make(chan error, 100)
	}
	return &CoveragePipeline{
		Context:   ctx,
		Error:     errChan,
		Warper:    warper,
		ConcLimit: concLimit,
		Verbose:   verbose,
	}
}

// Process fills the output grid of req. The result channel delivers
// one raster per band, or a single raster when a band expression is
// set, and is closed without a value when a stage fails.
func (dp *CoveragePipeline) Process(req *CoverageRequest) chan []utils.Raster {
	var expr *BandExpression
	if req.BandExpr != "" {
		var err error
		expr, err = ParseBandExpression(req.BandExpr, req.Coverage.Bands)
		if err != nil {
			sendError(dp.Error, err)
			out := make(chan []utils.Raster)
			close(out)
			return out
		}
	}

	s := NewTileSplitter(dp.Context, dp.Error)
	go func() {
		s.In <- req
		close(s.In)
	}()

	i := NewTileIndexer(dp.Context, dp.Error)
	grpcTiler := NewRasterGRPC(dp.Context, dp.Warper, dp.ConcLimit, dp.Error)
	st := NewRasterStitcher(dp.Error)
	re := NewRasterExpr(dp.Error)

	i.In = s.Out
	grpcTiler.In = i.Out
	st.In = grpcTiler.Out
	re.In = st.Out

	go s.Run()
	go i.Run()
	go grpcTiler.Run(dp.Verbose)
	go st.Run(req)
	go re.Run(expr, req.Coverage.Name)

	return re.Out
}

// Run processes req and waits for the result. Error must be buffered
// so that stage failures are not dropped.
func (dp *CoveragePipeline) Run(req *CoverageRequest) ([]utils.Raster, error) {
	out := dp.Process(req)
	select {
	case res, ok := <-out:
		select {
		case err := <-dp.Error:
			return nil, err
		default:
		}
		if !ok {
			return nil, fmt.Errorf("coverage %s produced no output", req.Coverage.Name)
		}
		return res, nil
	case err := <-dp.Error:
		return nil, err
	case <-dp.Context.Done():
		return nil, fmt.Errorf("context has been cancel: %v", dp.Context.Err())
	}
}
