package utils

import (
	"image/color"
	"testing"
)

func TestGradientRGBAPalette(t *testing.T) {
	ramp, err := GradientRGBAPalette(nil)
	if err != nil || ramp != nil {
		t.Errorf("nil palette: got %v, %v", ramp, err)
	}

	black := color.RGBA{0, 0, 0, 255}
	white := color.RGBA{255, 255, 255, 255}

	ramp, err = GradientRGBAPalette(&Palette{Interpolate: true, Colours: []color.RGBA{black, white}})
	if err != nil {
		t.Fatal(err)
	}
	if len(ramp) != 256 {
		t.Fatalf("ramp has %d colours", len(ramp))
	}
	if ramp[0] != black {
		t.Errorf("ramp starts at %v", ramp[0])
	}
	if ramp[128].R != 127 {
		t.Errorf("ramp midpoint is %v", ramp[128])
	}

	ramp, err = GradientRGBAPalette(&Palette{Colours: []color.RGBA{black, white}})
	if err != nil {
		t.Fatal(err)
	}
	if ramp[127] != black || ramp[128] != white || ramp[255] != white {
		t.Errorf("discrete ramp: %v %v %v", ramp[127], ramp[128], ramp[255])
	}

	if _, err = GradientRGBAPalette(&Palette{Colours: []color.RGBA{black}}); err == nil {
		t.Errorf("single colour palette accepted")
	}
}
