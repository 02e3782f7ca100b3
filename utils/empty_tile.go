package utils

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"strings"
)

const tSize = 256

// GetEmptyTile returns a width x height map filled with bg, or with
// the image of tileFile repeated every 256 pixels when tileFile is
// not empty.
func GetEmptyTile(tileFile string, width, height int, bg color.Color, format string) ([]byte, string, error) {
	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	if tileFile != "" {
		infile, err := os.Open(tileFile)
		if err != nil {
			return nil, "", err
		}
		defer infile.Close()

		tile, _, err := image.Decode(infile)
		if err != nil {
			return nil, "", err
		}

		for x := 0; x < width; x += tSize {
			for y := 0; y < height; y += tSize {
				draw.Draw(canvas, image.Rect(x, y, x+tSize, y+tSize), tile, image.Point{}, draw.Over)
			}
		}
	}

	return EncodeImage(canvas, format)
}

// EncodeImage writes img as PNG or JPEG according to the MIME type
// format, returning the content type written.
func EncodeImage(img image.Image, format string) ([]byte, string, error) {
	buf := new(bytes.Buffer)
	switch f := strings.ToLower(format); {
	case f == "" || strings.HasPrefix(f, "image/png"):
		if err := png.Encode(buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	case f == "image/jpeg" || f == "image/jpg":
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/jpeg", nil
	}
	return nil, "", NewOWSException(InvalidFormat, "FORMAT", "unsupported image format %s", format)
}

// Background returns the map background: transparent, or the
// BGCOLOR (white by default).
func Background(transparent bool, bgcolor string) (color.Color, error) {
	if transparent {
		return color.Transparent, nil
	}
	if bgcolor == "" {
		return color.White, nil
	}
	r, g, b, err := ParseBGColor(bgcolor)
	if err != nil {
		return nil, fmt.Errorf("invalid BGCOLOR %s: %v", bgcolor, err)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}
