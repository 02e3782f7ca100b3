package utils

import "testing"

func TestInitGdalDriverOrder(t *testing.T) {
	InitGdal()
	names := DriverNames()
	if len(names) == 0 {
		t.Fatal("no GDAL drivers registered")
	}

	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}
	var lead []string
	for _, n := range leadingDrivers {
		if present[n] {
			lead = append(lead, n)
		}
	}
	for i, n := range lead {
		if names[i] != n {
			t.Errorf("driver %d: expecting %s, actual %s", i, n, names[i])
		}
	}

	InitGdal()
	if again := DriverNames(); len(again) != len(names) {
		t.Errorf("re-initialising changed the driver count from %d to %d", len(names), len(again))
	}
}
