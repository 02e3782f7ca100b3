package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/deegree/ows/cache"
	"github.com/deegree/ows/geometry"
	"github.com/deegree/ows/metrics"
	proc "github.com/deegree/ows/processor"
	"github.com/deegree/ows/utils"
	"github.com/deegree/ows/wmsclient"
)

// mapLayer is a run of request layers rendered together: one local
// layer, or consecutive remote layers.
type mapLayer struct {
	local  *utils.Layer
	remote []string
}

func serveWMS(ctx context.Context, params utils.WMSParams, s *service, r *http.Request, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	version := "1.3.0"
	if params.Version != nil && utils.CheckWMSVersion(*params.Version) {
		version = *params.Version
	}

	if err := utils.CheckWMSRequired(params); err != nil {
		writeException(w, version, err, metricsCollector)
		return
	}
	metricsCollector.Info.Request.Operation = *params.Request

	switch *params.Request {
	case "GetCapabilities":
		if params.UpdateSequence != nil {
			if err := checkUpdateSequence(*params.UpdateSequence, s.conf.ServiceConfig.UpdateSequence); err != nil {
				writeException(w, version, err, metricsCollector)
				return
			}
		}
		contentType := "text/xml"
		if version == "1.1.1" {
			contentType = "application/vnd.ogc.wms_xml"
		}
		caps := utils.NewWMSCapabilities(s.conf, version, s.remote.Layers())
		renderTemplate(w, "WMS_GetCapabilities.tpl", caps, contentType, version, metricsCollector)

	case "GetMap":
		serveGetMap(ctx, params, version, s, w, metricsCollector)

	case "GetFeatureInfo":
		serveGetFeatureInfo(ctx, params, version, s, w, metricsCollector)

	case "GetLegendGraphic":
		serveLegendGraphic(params, version, s, r, w, metricsCollector)

	default:
		writeException(w, version, utils.NewOWSException(utils.OperationNotSupported, "REQUEST", "%s not recognised.", *params.Request), metricsCollector)
	}
}

func renderTemplate(w http.ResponseWriter, name string, data interface{}, contentType, version string, metricsCollector *metrics.MetricsCollector) {
	buf := new(bytes.Buffer)
	if err := templates.Execute(buf, name, data); err != nil {
		writeException(w, version, err, metricsCollector)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(buf.Bytes())
}

func requestEnvelope(bbox []float64) geometry.Envelope {
	return geometry.Envelope{MinX: bbox[0], MinY: bbox[1], MaxX: bbox[2], MaxY: bbox[3]}
}

// mapLayers resolves the requested layer names against the local
// layers of the namespace and the layers of its remote services.
func mapLayers(s *service, names []string, width, height int) ([]mapLayer, error) {
	var layers []mapLayer
	for _, name := range names {
		if layer, ok := s.conf.Layer(name); ok {
			if layer.MaxWidth > 0 && width > layer.MaxWidth || layer.MaxHeight > 0 && height > layer.MaxHeight {
				return nil, utils.NewOWSException(utils.InvalidParameterValue, "WIDTH", "layer %s is limited to %dx%d pixels", name, layer.MaxWidth, layer.MaxHeight)
			}
			layers = append(layers, mapLayer{local: layer})
			continue
		}
		if _, ok := s.remote.Layer(name); ok {
			if n := len(layers); n > 0 && layers[n-1].local == nil {
				layers[n-1].remote = append(layers[n-1].remote, name)
			} else {
				layers = append(layers, mapLayer{remote: []string{name}})
			}
			continue
		}
		return nil, utils.NewOWSException(utils.LayerNotDefined, "LAYERS", "layer %s is not defined", name)
	}
	return layers, nil
}

func serveGetMap(ctx context.Context, params utils.WMSParams, version string, s *service, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	crs := *params.CRS
	env := requestEnvelope(params.BBox)
	width, height := *params.Width, *params.Height
	format := *params.Format

	info := metricsCollector.Info.Request
	info.Layers = params.Layers
	info.CRS = crs
	info.BBox = env
	info.Width = width
	info.Height = height

	transparent := params.Transparent != nil && *params.Transparent
	bgcolor := ""
	if params.BGColor != nil {
		bgcolor = *params.BGColor
	}
	bg, err := utils.Background(transparent, bgcolor)
	if err != nil {
		writeException(w, version, utils.NewOWSException(utils.InvalidParameterValue, "BGCOLOR", "%v", err), metricsCollector)
		return
	}

	layers, err := mapLayers(s, params.Layers, width, height)
	if err != nil {
		writeException(w, version, err, metricsCollector)
		return
	}

	extra := fmt.Sprintf("%v|%s", transparent, bgcolor)
	if params.Offset != nil {
		extra += fmt.Sprintf("|offset=%g", *params.Offset)
	}
	if params.Clip != nil {
		extra += fmt.Sprintf("|clip=%g", *params.Clip)
	}
	area, err := utils.TransformEnvelope(env, crs, "EPSG:4326")
	if err != nil {
		area = geometry.EmptyEnvelope()
	}
	key := cache.Key(cache.Request{
		Namespace: s.conf.ServiceConfig.NameSpace,
		Layers:    params.Layers,
		Styles:    params.Styles,
		CRS:       crs,
		BBox:      env,
		Area:      area,
		Width:     width,
		Height:    height,
		Format:    format,
		Extra:     extra,
	})
	metricsCollector.Info.Cache.Key = key
	if out, err := s.cache.Get(key); err == nil {
		metricsCollector.Info.Cache.Hit = true
		metricsCollector.Info.Cache.Bytes = len(out)
		w.Header().Set("Content-Type", imageContentType(format))
		w.Write(out)
		return
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	drawn := false

	for _, ml := range layers {
		var img image.Image
		if ml.local != nil {
			img, err = renderLocalLayer(ctx, s, ml.local, params, crs, env, width, height, metricsCollector)
		} else {
			metricsCollector.Info.Pipeline.Remote = true
			img, err = s.remote.GetMap(ctx, ml.remote, wmsclient.MapRequest{
				Width:       width,
				Height:      height,
				BBox:        env,
				SRS:         utils.NormaliseCRS(crs),
				Format:      "image/png",
				Transparent: true,
			})
		}
		if err != nil {
			writeException(w, version, err, metricsCollector)
			return
		}
		if img != nil {
			draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Over)
			drawn = true
		}
	}

	var out []byte
	var contentType string
	if drawn {
		out, contentType, err = utils.EncodeImage(canvas, format)
	} else {
		out, contentType, err = utils.GetEmptyTile("", width, height, bg, format)
	}
	if err != nil {
		writeException(w, version, err, metricsCollector)
		return
	}

	if err := s.cache.Set(key, out, s.cacheTTL()); err != nil {
		Error.Printf("caching map %s: %v", key, err)
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(out)
}

func imageContentType(format string) string {
	if f := strings.ToLower(format); f == "image/jpeg" || f == "image/jpg" {
		return "image/jpeg"
	}
	return "image/png"
}

// noData reports the errors of a map request that leave a layer
// blank: no source level serves the requested resolution.
func noData(err error) bool {
	e, ok := err.(*utils.OWSException)
	return ok && e.Code == utils.InvalidParameterValue
}

func layerCoverage(s *service, layer *utils.Layer) (*utils.Coverage, error) {
	cov, ok := s.conf.Coverage(layer.Coverage)
	if !ok {
		return nil, utils.NewOWSException(utils.NoApplicableCode, "", "layer %s refers to undefined coverage %s", layer.Name, layer.Coverage)
	}
	return cov, nil
}

// runCoverage runs req through the coverage pipeline and records the
// pipeline metrics.
func runCoverage(ctx context.Context, s *service, req *proc.CoverageRequest, metricsCollector *metrics.MetricsCollector) ([]utils.Raster, error) {
	t0 := time.Now()
	pi := metricsCollector.Info.Pipeline
	pi.NumLevels += len(req.Levels)
	pi.NumTiles += len(proc.SplitRequest(req))
	cp := proc.InitCoveragePipeline(ctx, s.warper, s.concLimit(), *verbose, nil)
	rs, err := cp.Run(req)
	pi.Duration += time.Since(t0)
	return rs, err
}

// renderLocalLayer draws a coverage layer, or the features of a
// layer backed by a feature type. It returns a nil image when there
// is no data for the requested map.
func renderLocalLayer(ctx context.Context, s *service, layer *utils.Layer, params utils.WMSParams, crs string, env geometry.Envelope, width, height int, metricsCollector *metrics.MetricsCollector) (image.Image, error) {
	if layer.Coverage == "" && layer.FeatureType != "" {
		return renderFeatureLayer(ctx, s, layer, crs, env, width, height, metricsCollector)
	}
	cov, err := layerCoverage(s, layer)
	if err != nil {
		return nil, err
	}
	if !utils.CRSSupported(cov.SupportedCRS, crs) {
		return nil, utils.NewOWSException(utils.InvalidCRS, "CRS", "CRS %s is not supported by layer %s", crs, layer.Name)
	}
	if !proc.CoverageEnvelope(cov, crs).Intersects(env) {
		return nil, nil
	}

	req, err := proc.NewMapRequest(cov, crs, env, width, height)
	if err != nil {
		if noData(err) {
			if *verbose {
				Info.Printf("layer %s: %v", layer.Name, err)
			}
			return nil, nil
		}
		return nil, err
	}

	rs, err := runCoverage(ctx, s, req, metricsCollector)
	if err != nil {
		return nil, err
	}

	sp := utils.ScaleParams{Offset: layer.OffsetValue, Scale: layer.ScaleValue, Clip: layer.ClipValue}
	if params.Offset != nil {
		sp.Offset = *params.Offset
	}
	if params.Clip != nil {
		sp.Clip = *params.Clip
	}
	br, err := utils.Scale(rs, sp)
	if err != nil {
		return nil, err
	}
	return utils.RenderImage(br, layer.Palette)
}

func renderFeatureLayer(ctx context.Context, s *service, layer *utils.Layer, crs string, env geometry.Envelope, width, height int, metricsCollector *metrics.MetricsCollector) (image.Image, error) {
	if s.store == nil {
		return nil, utils.NewOWSException(utils.OperationNotSupported, "", "namespace %s has no data store", s.conf.ServiceConfig.NameSpace)
	}
	ft, ok := s.store.FeatureType(layer.FeatureType)
	if !ok {
		return nil, utils.NewOWSException(utils.NoApplicableCode, "", "layer %s refers to undefined feature type %s", layer.Name, layer.FeatureType)
	}

	native := fmt.Sprintf("EPSG:%d", ft.SRID)
	query := env
	var project func([][2]float64) [][2]float64
	if !utils.SameCRS(crs, native) {
		var err error
		if query, err = utils.TransformEnvelope(env, crs, native); err != nil {
			return nil, utils.NewOWSException(utils.InvalidCRS, "CRS", "%v", err)
		}
		ct, err := utils.NewCoordTransform(native, crs)
		if err != nil {
			return nil, utils.NewOWSException(utils.InvalidCRS, "CRS", "%v", err)
		}
		defer ct.Close()
		project = ct.Transform
	}

	q := s.store.NewSpatialQuery()
	if err := q.SetLayer(ft.Name); err != nil {
		return nil, err
	}
	if err := q.SetSpatialFilter(query.MinX, query.MinY, query.MaxX, query.MaxY); err != nil {
		return nil, err
	}
	t0 := time.Now()
	table, geoms, err := q.Run(ctx, []string{ft.IDColumn})
	si := metricsCollector.Info.Store
	si.Duration += time.Since(t0)
	si.FeatureType = ft.Name
	if err != nil {
		return nil, err
	}
	si.NumRows += table.RowCount()
	if len(geoms) == 0 {
		return nil, nil
	}
	return utils.RenderFeatures(geoms, env, width, height, layer.Style, project), nil
}

type featureCollection struct {
	Type     string        `json:"type"`
	Features []interface{} `json:"features"`
}

func writeFeatures(w http.ResponseWriter, features []interface{}) error {
	if features == nil {
		features = []interface{}{}
	}
	out, err := json.Marshal(featureCollection{Type: "FeatureCollection", Features: features})
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
	return nil
}

func serveGetFeatureInfo(ctx context.Context, params utils.WMSParams, version string, s *service, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	crs := *params.CRS
	env := requestEnvelope(params.BBox)
	width, height := *params.Width, *params.Height

	info := metricsCollector.Info.Request
	info.Layers = params.QueryLayers
	info.CRS = crs
	info.BBox = env
	info.Width = width
	info.Height = height

	x, y, err := utils.GetCoordinates(params)
	if err != nil {
		writeException(w, version, utils.NewOWSException(utils.InvalidParameterValue, "X/Y", "%v", err), metricsCollector)
		return
	}
	if !env.ContainsPoint(x, y) {
		writeException(w, version, utils.NewOWSException(utils.InvalidParameterValue, "X/Y", "pixel %d,%d is outside the %dx%d map", *params.X, *params.Y, width, height), metricsCollector)
		return
	}
	resx, resy := env.Width()/float64(width), env.Height()/float64(height)
	pixel := geometry.Envelope{MinX: x - resx/2, MinY: y - resy/2, MaxX: x + resx/2, MaxY: y + resy/2}

	featureCount := 1
	if params.FeatureCount != nil && *params.FeatureCount > 0 {
		featureCount = *params.FeatureCount
	}

	var features []interface{}
	var remote []string
	for _, name := range params.QueryLayers {
		layer, ok := s.conf.Layer(name)
		if !ok {
			if _, ok := s.remote.Layer(name); ok {
				remote = append(remote, name)
				continue
			}
			writeException(w, version, utils.NewOWSException(utils.LayerNotDefined, "QUERY_LAYERS", "layer %s is not defined", name), metricsCollector)
			return
		}

		var feats []interface{}
		switch {
		case layer.FeatureType != "":
			feats, err = storeFeatures(ctx, s, layer.FeatureType, crs, pixel, featureCount, nil, metricsCollector)
		case layer.Coverage != "":
			feats, err = coverageValues(ctx, s, layer, crs, pixel, x, y, metricsCollector)
		}
		if err != nil {
			writeException(w, version, err, metricsCollector)
			return
		}
		features = append(features, feats...)
	}

	if len(remote) > 0 {
		metricsCollector.Info.Pipeline.Remote = true
		infos, err := s.remote.GetFeatureInfo(ctx, remote, wmsclient.FeatureInfoRequest{
			QueryLayers:  remote,
			Width:        width,
			Height:       height,
			X:            *params.X,
			Y:            *params.Y,
			BBox:         env,
			SRS:          utils.NormaliseCRS(crs),
			FeatureCount: featureCount,
		})
		if err != nil {
			writeException(w, version, err, metricsCollector)
			return
		}
		for _, fi := range infos {
			props := fi.PropertyMap()
			props["layer"] = fi.Layer
			features = append(features, map[string]interface{}{
				"type":       "Feature",
				"id":         fi.ID,
				"properties": props,
				"geometry":   nil,
			})
		}
	}

	if err := writeFeatures(w, features); err != nil {
		writeException(w, version, err, metricsCollector)
	}
}

// storeFeatures queries a feature type of the data store within env,
// given in crs. Only the named properties are kept when properties
// is not empty.
func storeFeatures(ctx context.Context, s *service, featureType, crs string, env geometry.Envelope, maxFeatures int, properties []string, metricsCollector *metrics.MetricsCollector) ([]interface{}, error) {
	if s.store == nil {
		return nil, utils.NewOWSException(utils.OperationNotSupported, "", "namespace %s has no data store", s.conf.ServiceConfig.NameSpace)
	}
	ft, ok := s.store.FeatureType(featureType)
	if !ok {
		return nil, utils.NewOWSException(utils.InvalidParameterValue, "TYPENAME", "feature type %s is not defined", featureType)
	}
	if crs != "" {
		target := fmt.Sprintf("EPSG:%d", ft.SRID)
		if !utils.SameCRS(crs, target) {
			var err error
			env, err = utils.TransformEnvelope(env, crs, target)
			if err != nil {
				return nil, utils.NewOWSException(utils.InvalidCRS, "CRS", "%v", err)
			}
		}
	}

	t0 := time.Now()
	q, table, err := s.store.Query(ctx, featureType, env.MinX, env.MinY, env.MaxX, env.MaxY, maxFeatures)
	si := metricsCollector.Info.Store
	si.Duration += time.Since(t0)
	si.FeatureType = featureType
	if err != nil {
		return nil, err
	}
	si.NumRows += table.RowCount()

	var out []interface{}
	for _, f := range q.Features(table) {
		if len(properties) > 0 {
			kept := make(map[string]interface{}, len(properties))
			for _, p := range properties {
				if v, ok := f.Properties[p]; ok {
					kept[p] = v
				}
			}
			f.Properties = kept
		}
		out = append(out, f)
	}
	return out, nil
}

// coverageValues reads the band values of a coverage layer at the
// pixel env.
func coverageValues(ctx context.Context, s *service, layer *utils.Layer, crs string, env geometry.Envelope, x, y float64, metricsCollector *metrics.MetricsCollector) ([]interface{}, error) {
	cov, err := layerCoverage(s, layer)
	if err != nil {
		return nil, err
	}
	if !utils.CRSSupported(cov.SupportedCRS, crs) || !proc.CoverageEnvelope(cov, crs).Intersects(env) {
		return nil, nil
	}
	req, err := proc.NewMapRequest(cov, crs, env, 1, 1)
	if err != nil {
		if noData(err) {
			return nil, nil
		}
		return nil, err
	}
	if cov.BandExpr == "" {
		req.Bands = append([]string(nil), cov.Bands...)
	}

	rs, err := runCoverage(ctx, s, req, metricsCollector)
	if err != nil {
		return nil, err
	}

	props := map[string]interface{}{"layer": layer.Name, "x": x, "y": y}
	for i, r := range rs {
		name := cov.Name
		if cov.BandExpr == "" && i < len(req.Bands) {
			name = req.Bands[i]
		}
		props[name] = pixelValue(r)
	}
	return []interface{}{map[string]interface{}{
		"type":       "Feature",
		"properties": props,
		"geometry":   nil,
	}}, nil
}

// pixelValue returns the first value of r, or nil when it is nodata.
func pixelValue(r utils.Raster) interface{} {
	var v float64
	switch t := r.(type) {
	case *utils.ByteRaster:
		v = float64(t.Data[0])
	case *utils.Int16Raster:
		v = float64(t.Data[0])
	case *utils.UInt16Raster:
		v = float64(t.Data[0])
	case *utils.Float32Raster:
		v = float64(t.Data[0])
	default:
		return nil
	}
	if v == r.GetNoData() || math.IsNaN(v) {
		return nil
	}
	return v
}

const legendWidth, legendHeight = 256, 16

func serveLegendGraphic(params utils.WMSParams, version string, s *service, r *http.Request, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	name := params.Layers[0]
	metricsCollector.Info.Request.Layers = []string{name}
	layer, ok := s.conf.Layer(name)
	if !ok {
		writeException(w, version, utils.NewOWSException(utils.LayerNotDefined, "LAYER", "layer %s is not defined", name), metricsCollector)
		return
	}

	if layer.LegendPath != "" {
		legend := layer.LegendPath
		if !filepath.IsAbs(legend) {
			legend = filepath.Join(utils.DataDir, legend)
		}
		http.ServeFile(w, r, legend)
		return
	}

	ramp, err := utils.GradientRGBAPalette(layer.Palette)
	if err != nil {
		writeException(w, version, err, metricsCollector)
		return
	}
	if ramp == nil {
		writeException(w, version, utils.NewOWSException(utils.InvalidParameterValue, "LAYER", "layer %s has no legend", name), metricsCollector)
		return
	}

	width, height := legendWidth, legendHeight
	if params.Width != nil && *params.Width > 0 {
		width = *params.Width
	}
	if params.Height != nil && *params.Height > 0 {
		height = *params.Height
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		c := ramp[x*len(ramp)/width]
		for y := 0; y < height; y++ {
			img.SetRGBA(x, y, c)
		}
	}

	format := "image/png"
	if params.Format != nil {
		format = *params.Format
	}
	out, contentType, err := utils.EncodeImage(img, format)
	if err != nil {
		writeException(w, version, err, metricsCollector)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(out)
}
