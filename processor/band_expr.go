package processor

import (
	"fmt"
	"math"

	"github.com/deegree/ows/utils"
	goeval "github.com/edisonguo/govaluate"
)

// BandExpression computes one band from the named source bands.
type BandExpression struct {
	Text      string
	Expr      *goeval.EvaluableExpression
	Variables []string
}

func ParseBandExpression(text string, bands []string) (*BandExpression, error) {
	expr, err := goeval.NewEvaluableExpression(text)
	if err != nil {
		return nil, fmt.Errorf("band expression %q: %v", text, err)
	}

	valid := make(map[string]bool, len(bands))
	for _, b := range bands {
		valid[b] = true
	}
	seen := make(map[string]bool)
	var vars []string
	for _, token := range expr.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		varName, ok := token.Value.(string)
		if !ok {
			return nil, fmt.Errorf("variable token '%v' failed to cast string", token.Value)
		}
		if !valid[varName] {
			return nil, fmt.Errorf("band expression %q: unknown band %s", text, varName)
		}
		if !seen[varName] {
			seen[varName] = true
			vars = append(vars, varName)
		}
	}
	if len(vars) == 0 {
		return nil, fmt.Errorf("band expression %q references no band", text)
	}
	return &BandExpression{Text: text, Expr: expr, Variables: vars}, nil
}

func rasterValue(r utils.Raster, i int) (float64, bool) {
	switch t := r.(type) {
	case *utils.ByteRaster:
		v := t.Data[i]
		return float64(v), v != uint8(t.NoData)
	case *utils.Int16Raster:
		v := t.Data[i]
		return float64(v), v != int16(t.NoData)
	case *utils.UInt16Raster:
		v := t.Data[i]
		return float64(v), v != uint16(t.NoData)
	case *utils.Float32Raster:
		v := t.Data[i]
		return float64(v), v != float32(t.NoData) && !math.IsNaN(float64(v))
	}
	return 0, false
}

// Apply evaluates the expression pixel by pixel. A pixel that is
// nodata in any input is nodata in the output.
func (be *BandExpression) Apply(rs []utils.Raster, nameSpace string) (*utils.Float32Raster, error) {
	byName := make(map[string]utils.Raster, len(rs))
	for _, r := range rs {
		byName[rasterName(r)] = r
	}
	inputs := make([]utils.Raster, len(be.Variables))
	for i, v := range be.Variables {
		r, found := byName[v]
		if !found {
			return nil, fmt.Errorf("band '%v' not found", v)
		}
		inputs[i] = r
	}

	width, height, _, err := utils.ValidateRasterSlice(inputs)
	if err != nil {
		return nil, err
	}

	nodata := inputs[0].GetNoData()
	out := &utils.Float32Raster{NameSpace: nameSpace, NoData: nodata, Data: make([]float32, width*height), Width: width, Height: height}
	parameters := make(map[string]interface{}, len(be.Variables))
	for i := range out.Data {
		valid := true
		for iv, v := range be.Variables {
			val, ok := rasterValue(inputs[iv], i)
			if !ok {
				valid = false
				break
			}
			parameters[v] = val
		}
		if !valid {
			out.Data[i] = float32(nodata)
			continue
		}

		result, err := be.Expr.Evaluate(parameters)
		if err != nil {
			return nil, fmt.Errorf("Eval '%v' error: %v", be.Text, err)
		}
		switch val := result.(type) {
		case float32:
			out.Data[i] = val
		case float64:
			out.Data[i] = float32(val)
		case bool:
			if val {
				out.Data[i] = 1
			}
		default:
			return nil, fmt.Errorf("Failed to cast eval results '%v' to float32, %v", result, be.Text)
		}
	}
	return out, nil
}

func rasterName(r utils.Raster) string {
	switch t := r.(type) {
	case *utils.ByteRaster:
		return t.NameSpace
	case *utils.Int16Raster:
		return t.NameSpace
	case *utils.UInt16Raster:
		return t.NameSpace
	case *utils.Float32Raster:
		return t.NameSpace
	}
	return ""
}

// RasterExpr applies a band expression to stitched rasters.
type RasterExpr struct {
	In    chan []utils.Raster
	Out   chan []utils.Raster
	Error chan error
}

func NewRasterExpr(errChan chan error) *RasterExpr {
	return &RasterExpr{
		In:    make(chan []utils.Raster, 100),
		Out:   make(chan []utils.Raster, 100),
		Error: errChan,
	}
}

func (re *RasterExpr) Run(expr *BandExpression, nameSpace string) {
	defer close(re.Out)
	for rs := range re.In {
		if expr == nil {
			re.Out <- rs
			continue
		}
		r, err := expr.Apply(rs, nameSpace)
		if err != nil {
			sendError(re.Error, err)
			continue
		}
		re.Out <- []utils.Raster{r}
	}
}
