package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/deegree/ows/metrics"
	proc "github.com/deegree/ows/processor"
	"github.com/deegree/ows/utils"
)

// checkUpdateSequence compares the update sequence of a capabilities
// request with the one of the server. Numeric sequences compare as
// numbers, others as strings, which orders ISO timestamps.
func checkUpdateSequence(requested, current string) error {
	if requested == "" || current == "" {
		return nil
	}
	cmp := strings.Compare(requested, current)
	if a, err := strconv.ParseFloat(requested, 64); err == nil {
		if b, err := strconv.ParseFloat(current, 64); err == nil {
			switch {
			case a < b:
				cmp = -1
			case a > b:
				cmp = 1
			default:
				cmp = 0
			}
		}
	}
	switch {
	case cmp == 0:
		return utils.NewOWSException(utils.CurrentUpdateSequence, "UPDATESEQUENCE", "update sequence %s is current", requested)
	case cmp > 0:
		return utils.NewOWSException(utils.InvalidUpdateSequence, "UPDATESEQUENCE", "update sequence %s is greater than the current one", requested)
	}
	return nil
}

func serveWCS(ctx context.Context, params utils.WCSParams, s *service, r *http.Request, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	if err := utils.CheckWCSRequired(params); err != nil {
		writeException(w, "", err, metricsCollector)
		return
	}
	metricsCollector.Info.Request.Operation = *params.Request

	switch *params.Request {
	case "GetCapabilities":
		if params.UpdateSequence != nil {
			if err := checkUpdateSequence(*params.UpdateSequence, s.conf.ServiceConfig.UpdateSequence); err != nil {
				writeException(w, "", err, metricsCollector)
				return
			}
		}
		section := ""
		if params.Section != nil {
			section = *params.Section
		}
		caps, err := utils.NewWCSCapabilities(s.conf, nil, section)
		if err != nil {
			writeException(w, "", err, metricsCollector)
			return
		}
		renderTemplate(w, "WCS_GetCapabilities.tpl", caps, "text/xml", "", metricsCollector)

	case "DescribeCoverage":
		metricsCollector.Info.Request.Layers = params.Coverages
		caps, err := utils.NewWCSCapabilities(s.conf, params.Coverages, "")
		if err != nil {
			writeException(w, "", err, metricsCollector)
			return
		}
		renderTemplate(w, "WCS_DescribeCoverage.tpl", caps, "text/xml", "", metricsCollector)

	case "GetCoverage":
		serveGetCoverage(ctx, params, s, w, metricsCollector)

	default:
		writeException(w, "", utils.NewOWSException(utils.OperationNotSupported, "REQUEST", "%s not recognised.", *params.Request), metricsCollector)
	}
}

// coverageScale returns the scaling of the first layer drawing cov,
// or an identity scaling of byte values.
func coverageScale(conf *utils.Config, cov *utils.Coverage) (utils.ScaleParams, *utils.Palette) {
	for i := range conf.Layers {
		if l := &conf.Layers[i]; l.Coverage == cov.Name {
			return utils.ScaleParams{Offset: l.OffsetValue, Scale: l.ScaleValue, Clip: l.ClipValue}, l.Palette
		}
	}
	return utils.ScaleParams{Clip: 254}, nil
}

func serveGetCoverage(ctx context.Context, params utils.WCSParams, s *service, w http.ResponseWriter, metricsCollector *metrics.MetricsCollector) {
	name := params.Coverages[0]
	cov, ok := s.conf.Coverage(name)
	if !ok {
		writeException(w, "", utils.NewOWSException(utils.CoverageNotDefined, "COVERAGE", "coverage %s is not defined", name), metricsCollector)
		return
	}

	req, err := proc.NewCoverageRequest(cov, params)
	if err != nil {
		writeException(w, "", err, metricsCollector)
		return
	}

	info := metricsCollector.Info.Request
	info.Layers = []string{name}
	info.CRS = req.CRS
	info.BBox = req.BBox
	info.Width = req.Width
	info.Height = req.Height

	rs, err := runCoverage(ctx, s, req, metricsCollector)
	if err != nil {
		writeException(w, "", err, metricsCollector)
		return
	}

	format, err := proc.OutputFormat(*params.Format)
	if err != nil {
		writeException(w, "", err, metricsCollector)
		return
	}

	var out []byte
	var contentType, ext string
	switch format {
	case "png":
		sp, palette := coverageScale(s.conf, cov)
		br, err := utils.Scale(rs, sp)
		if err != nil {
			writeException(w, "", err, metricsCollector)
			return
		}
		if len(br) != 1 && len(br) != 3 {
			br = br[:1]
		}
		out, err = utils.EncodePNG(br, palette)
		if err != nil {
			writeException(w, "", err, metricsCollector)
			return
		}
		contentType, ext = "image/png", "png"
	default:
		out, err = utils.EncodeGdal(s.conf.ServiceConfig.TempDir, format, req.Geot(), req.CRS, rs)
		if err != nil {
			writeException(w, "", err, metricsCollector)
			return
		}
		contentType, ext = "image/tiff", "tif"
		if format == "netCDF" {
			contentType, ext = "application/x-netcdf", "nc"
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.%s", name, ext))
	w.Write(out)
}
