package rpc

// WarpRequest asks a worker to resample one band of a raster file
// into a destination grid.
type WarpRequest struct {
	Path       string    `json:"path"`
	Band       int       `json:"band"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Geot       []float64 `json:"geot"`
	CRS        string    `json:"crs"`
	Resampling string    `json:"resampling,omitempty"`
}

// WarpResult carries the destination buffer in the native data type
// of the source band, little endian.
type WarpResult struct {
	Data   []byte  `json:"data"`
	Type   string  `json:"type"`
	NoData float64 `json:"nodata"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

type InfoRequest struct {
	Path string `json:"path"`
}

type DatasetInfo struct {
	Path       string    `json:"path"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Bands      int       `json:"bands"`
	Type       string    `json:"type"`
	Geot       []float64 `json:"geot"`
	Projection string    `json:"projection"`
	NoData     float64   `json:"nodata"`
	HasNoData  bool      `json:"has_nodata"`
	Overviews  int       `json:"overviews"`
}
