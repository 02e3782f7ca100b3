package geometry

import (
	"testing"
)

func TestEnvelopeIntersection(t *testing.T) {
	tests := []struct {
		a, b     Envelope
		ok       bool
		expected Envelope
	}{
		{Envelope{0, 0, 10, 10}, Envelope{5, 5, 15, 15}, true, Envelope{5, 5, 10, 10}},
		{Envelope{0, 0, 10, 10}, Envelope{2, 2, 3, 3}, true, Envelope{2, 2, 3, 3}},
		{Envelope{0, 0, 10, 10}, Envelope{10, 0, 20, 10}, true, Envelope{10, 0, 10, 10}},
		{Envelope{0, 0, 10, 10}, Envelope{11, 11, 20, 20}, false, Envelope{}},
		{EmptyEnvelope(), Envelope{0, 0, 1, 1}, false, Envelope{}},
	}

	for i, tc := range tests {
		res, ok := tc.a.Intersection(tc.b)
		if ok != tc.ok {
			t.Errorf("case %d: expected ok=%v, actual %v", i, tc.ok, ok)
			continue
		}
		if ok && res != tc.expected {
			t.Errorf("case %d: expected %v, actual %v", i, tc.expected, res)
		}
		if !ok && !res.IsEmpty() {
			t.Errorf("case %d: disjoint intersection should be empty, got %v", i, res)
		}
	}
}

func TestEnvelopeMerge(t *testing.T) {
	a := Envelope{0, 0, 1, 1}
	b := Envelope{-1, 2, 0.5, 3}
	m := a.Merge(b)
	if m != (Envelope{-1, 0, 1, 3}) {
		t.Errorf("unexpected merge result: %v", m)
	}
	if EmptyEnvelope().Merge(a) != a {
		t.Errorf("merging into an empty envelope should return the other envelope")
	}
	if !m.Contains(a) || !m.Contains(b) {
		t.Errorf("merged envelope should contain both inputs")
	}
}

func TestParseBBox(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		env   Envelope
	}{
		{"-180,-90,180,90", true, Envelope{-180, -90, 180, 90}},
		{" 1.5, 2 ,3,4", true, Envelope{1.5, 2, 3, 4}},
		{"1,2,3", false, Envelope{}},
		{"1,2,a,4", false, Envelope{}},
		{"5,5,1,1", false, Envelope{}},
	}
	for _, tc := range tests {
		env, err := ParseBBox(tc.in)
		if tc.valid && err != nil {
			t.Errorf("%q: unexpected error %v", tc.in, err)
			continue
		}
		if !tc.valid {
			if err == nil {
				t.Errorf("%q: expected error", tc.in)
			}
			continue
		}
		if env != tc.env {
			t.Errorf("%q: expected %v, actual %v", tc.in, tc.env, env)
		}
	}
}

func TestEnvelopeSwapAxes(t *testing.T) {
	env := Envelope{MinX: -35, MinY: 110, MaxX: -10, MaxY: 155}
	sw := env.SwapAxes()
	if sw != (Envelope{MinX: 110, MinY: -35, MaxX: 155, MaxY: -10}) {
		t.Errorf("unexpected swapped envelope: %v", sw)
	}
	if env.String() != "-35,110,-10,155" {
		t.Errorf("unexpected string form: %s", env.String())
	}
}
