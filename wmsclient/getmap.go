package wmsclient

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"github.com/deegree/ows/geometry"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"
)

const exceptionContentType = "application/vnd.ogc.se_xml"

// MapRequest holds the parameters of a GetMap request.
type MapRequest struct {
	Layers      []string
	Width       int
	Height      int
	BBox        geometry.Envelope
	SRS         string
	Format      string
	Transparent bool

	// ErrorsInImage turns service exceptions into an image of the
	// requested size showing the message.
	ErrorsInImage bool

	// Validate checks the request against the capabilities and
	// records every adjustment in ValidationErrors.
	Validate         bool
	ValidationErrors []string

	// HardParameters override preset request parameters.
	HardParameters map[string]string
}

// ServiceException is a service exception report returned by the
// remote server.
type ServiceException struct {
	Message string
}

func (e *ServiceException) Error() string {
	return "remote WMS exception: " + e.Message
}

// GetMap requests a map. It returns the image, or the text of the
// service exception when the server answered with one. Requests
// larger than the maximum map dimensions are fetched as tiles.
func (c *Client) GetMap(ctx context.Context, req *MapRequest) (image.Image, string, error) {
	if req.Width <= 0 || req.Height <= 0 {
		return nil, "", errors.Errorf("invalid map size %dx%d", req.Width, req.Height)
	}
	maxW, maxH := c.maxDimensions()
	if (maxW != -1 && req.Width > maxW) || (maxH != -1 && req.Height > maxH) {
		img, err := c.getTiledMap(ctx, req, maxW, maxH)
		return img, "", err
	}
	return c.getMap(ctx, req)
}

func (c *Client) getMap(ctx context.Context, req *MapRequest) (image.Image, string, error) {
	format := req.Format
	if req.Validate {
		formats := c.Formats(GetMap)
		if len(formats) > 0 && !contains(formats, format) {
			format = formats[0]
			req.ValidationErrors = append(req.ValidationErrors, "Using format "+format+" instead.")
		}
	}

	addr := c.Address(GetMap, true)
	if addr == "" {
		return nil, "", ErrNoGetMapURL
	}

	params := newKVP()
	params.set("request", "GetMap")
	params.set("version", "1.1.1")
	params.set("service", "WMS")
	params.set("layers", strings.Join(req.Layers, ","))
	params.set("styles", "")
	params.set("width", strconv.Itoa(req.Width))
	params.set("height", strconv.Itoa(req.Height))
	params.set("bbox", req.BBox.String())
	params.set("srs", req.SRS)
	params.set("format", format)
	params.set("transparent", strconv.FormatBool(req.Transparent))
	params.override(req.HardParameters)

	img, exception, err := c.fetchMap(ctx, withQuery(addr, params.encode()))
	if err != nil {
		return nil, "", err
	}

	if req.ErrorsInImage && img == nil {
		return errorImage(exception, req.Width, req.Height), "", nil
	}
	return img, exception, nil
}

func (c *Client) fetchMap(ctx context.Context, u string) (image.Image, string, error) {
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	body, err := readBody(resp.Body)
	if err != nil {
		return nil, "", err
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), exceptionContentType) {
		return nil, exceptionText(body), nil
	}

	// whatever the content type says, a body that is not a
	// decodable image is read as an exception
	if img, _, err := image.Decode(bytes.NewReader(body)); err == nil {
		return img, "", nil
	}
	return nil, exceptionText(body), nil
}

type serviceExceptionReport struct {
	Exceptions []struct {
		Code string `xml:"code,attr"`
		Text string `xml:",chardata"`
	} `xml:"ServiceException"`
}

// exceptionText extracts the messages of a service exception
// report, or returns the trimmed body when it is not one.
func exceptionText(body []byte) string {
	var report serviceExceptionReport
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	if err := dec.Decode(&report); err != nil || len(report.Exceptions) == 0 {
		return strings.TrimSpace(string(body))
	}
	msgs := make([]string, 0, len(report.Exceptions))
	for _, e := range report.Exceptions {
		msg := strings.TrimSpace(e.Text)
		if e.Code != "" {
			msg = e.Code + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "\n")
}

// errorImage renders msg on a black image of the given size.
func errorImage(msg string, width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(0, 12),
	}
	d.DrawString("Error: " + msg)
	return img
}

// mapTile is a pixel window of a tiled map.
type mapTile struct {
	x, y, w, h int
}

// splitSpan cuts size pixels into spans of at most limit pixels.
// limit -1 yields a single span.
func splitSpan(size, limit int) [][2]int {
	if limit == -1 || limit >= size {
		return [][2]int{{0, size}}
	}
	var spans [][2]int
	for off := 0; off < size; off += limit {
		n := limit
		if off+n > size {
			n = size - off
		}
		spans = append(spans, [2]int{off, n})
	}
	return spans
}

func mapTiles(width, height, maxW, maxH int) []mapTile {
	var tiles []mapTile
	for _, xs := range splitSpan(width, maxW) {
		for _, ys := range splitSpan(height, maxH) {
			tiles = append(tiles, mapTile{x: xs[0], w: xs[1], y: ys[0], h: ys[1]})
		}
	}
	return tiles
}

// tileBBox maps a pixel window of the full map to world
// coordinates. Pixel (0,0) is the upper left corner of bbox.
func tileBBox(bbox geometry.Envelope, width, height int, t mapTile) geometry.Envelope {
	resX := bbox.Width() / float64(width)
	resY := bbox.Height() / float64(height)
	return geometry.Envelope{
		MinX: bbox.MinX + float64(t.x)*resX,
		MinY: bbox.MaxY - float64(t.y+t.h)*resY,
		MaxX: bbox.MinX + float64(t.x+t.w)*resX,
		MaxY: bbox.MaxY - float64(t.y)*resY,
	}
}

func (c *Client) getTiledMap(ctx context.Context, req *MapRequest, maxW, maxH int) (image.Image, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	if !req.Transparent {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	}

	tiles := mapTiles(req.Width, req.Height, maxW, maxH)
	c.logger.Printf("splitting %dx%d map into %d tiles", req.Width, req.Height, len(tiles))

	g, gctx := errgroup.WithContext(ctx)
	limiter := make(chan struct{}, c.maxConcurrency)
	for _, t := range tiles {
		t := t
		g.Go(func() error {
			select {
			case limiter <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-limiter }()

			sub := &MapRequest{
				Layers:         req.Layers,
				Width:          t.w,
				Height:         t.h,
				BBox:           tileBBox(req.BBox, req.Width, req.Height, t),
				SRS:            req.SRS,
				Format:         req.Format,
				Transparent:    req.Transparent,
				ErrorsInImage:  req.ErrorsInImage,
				HardParameters: req.HardParameters,
			}
			img, exception, err := c.getMap(gctx, sub)
			if err != nil {
				return errors.Wrapf(err, "tile %s", t)
			}
			if img == nil {
				return &ServiceException{Message: exception}
			}
			// tiles never overlap, so concurrent draws touch disjoint pixels
			dst := image.Rect(t.x, t.y, t.x+t.w, t.y+t.h)
			draw.Draw(canvas, dst, img, img.Bounds().Min, draw.Src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return canvas, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (t mapTile) String() string {
	return fmt.Sprintf("%d,%d %dx%d", t.x, t.y, t.w, t.h)
}
