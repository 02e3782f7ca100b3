package utils

import (
	"fmt"
	"image/color"
)

// InterpolateUint8 interpolates the value of a
// byte between two numbers 'a' and 'b' by
// especifying a length and a position 'i'
// along that length.
func InterpolateUint8(a, b uint8, i, sectionLength int) uint8 {
	return uint8(int(a) + i*(int(b)-int(a))/sectionLength)
}

// InterpolateColor returns an RGBA color where
// the R, G, B and A components have been
// interpolated from the 'a' and 'b' colors
func InterpolateColor(a, b color.RGBA, i, sectionLength int) color.RGBA {
	return color.RGBA{InterpolateUint8(a.R, b.R, i, sectionLength),
		InterpolateUint8(a.G, b.G, i, sectionLength),
		InterpolateUint8(a.B, b.B, i, sectionLength),
		InterpolateUint8(a.A, b.A, i, sectionLength)}
}

// GradientRGBAPalette returns a ramp of 256 colours going through
// the colours of palette, either blended or as discrete steps. A nil
// palette yields a nil ramp.
func GradientRGBAPalette(palette *Palette) ([]color.RGBA, error) {
	if palette == nil || len(palette.Colours) == 0 {
		return nil, nil
	}
	if len(palette.Colours) < 2 {
		return nil, fmt.Errorf("The colour palette must contain at least 2 colours.")
	}

	ramp := make([]color.RGBA, 256)

	bins := len(palette.Colours)
	if palette.Interpolate {
		bins--
	}
	sectionLength := 256 / bins
	bonus := 256 - (sectionLength * bins)
	bonusArr := make([]int, bins)
	for i := 0; i < bonus; i++ {
		bonusArr[i] = 1
	}

	index := 0
	for section := 0; section < bins; section++ {
		for i := 0; i < sectionLength+bonusArr[section]; i++ {
			if palette.Interpolate {
				ramp[index] = InterpolateColor(palette.Colours[section], palette.Colours[section+1], i, sectionLength)
			} else {
				ramp[index] = palette.Colours[section]
			}
			index++
		}
	}

	return ramp, nil
}
