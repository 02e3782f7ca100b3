package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
)

// TileIndexer expands each tile into one granule per source file and
// band, levels in request order.
type TileIndexer struct {
	Context context.Context
	In      chan *GeoTileRequest
	Out     chan *GeoTileGranule
	Error   chan error

	files map[string][]string
}

func NewTileIndexer(ctx context.Context, errChan chan error) *TileIndexer {
	return &TileIndexer{
		Context: ctx,
		In:      make(chan *GeoTileRequest, 100),
		Out:     make(chan *GeoTileGranule, 100),
		Error:   errChan,
		files:   make(map[string][]string),
	}
}

// LevelFiles lists the files of a level. Path may be a glob pattern.
func LevelFiles(path string) ([]string, error) {
	files, err := filepath.Glob(path)
	if err != nil {
		return nil, fmt.Errorf("invalid level path %s: %v", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files found for level path %s", path)
	}
	sort.Strings(files)
	return files, nil
}

func (p *TileIndexer) levelFiles(path string) ([]string, error) {
	if files, found := p.files[path]; found {
		return files, nil
	}
	files, err := LevelFiles(path)
	if err != nil {
		return nil, err
	}
	p.files[path] = files
	return files, nil
}

func (p *TileIndexer) Run() {
	defer close(p.Out)
	for tile := range p.In {
		for iLevel, level := range tile.Levels {
			files, err := p.levelFiles(level.Path)
			if err != nil {
				sendError(p.Error, err)
				return
			}
			for iFile, file := range files {
				for _, band := range tile.Bands {
					gran := &GeoTileGranule{
						Path:       file,
						Band:       tile.bandIndex(band),
						NameSpace:  band,
						Level:      iLevel,
						Seq:        iFile,
						CRS:        tile.CRS,
						BBox:       tile.BBox,
						Width:      tile.Width,
						Height:     tile.Height,
						OffX:       tile.OffX,
						OffY:       tile.OffY,
						Resampling: tile.Interpolation,
					}
					select {
					case <-p.Context.Done():
						sendError(p.Error, fmt.Errorf("Tile indexer context has been cancel: %v", p.Context.Err()))
						return
					case p.Out <- gran:
					}
				}
			}
		}
	}
}
