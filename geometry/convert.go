package geometry

import (
	"encoding/json"
	"fmt"

	geo "github.com/nci/geometry"
)

// Feature is a GeoJSON feature as accepted by the transaction
// endpoint. The geometry member is decoded by nci/geometry and
// converted through its WKT form.
type Feature struct {
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties"`
	Geometry   Geometry               `json:"-"`
}

// DecodeFeature decodes a single GeoJSON feature.
func DecodeFeature(data []byte, srid int) (*Feature, error) {
	var feat geo.Feature
	if err := json.Unmarshal(data, &feat); err != nil {
		return nil, fmt.Errorf("Problem unmarshalling GeoJSON feature: %v", err)
	}

	var aux struct {
		ID         interface{}            `json:"id"`
		Properties map[string]interface{} `json:"properties"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return nil, fmt.Errorf("Problem unmarshalling feature properties: %v", err)
	}

	out := &Feature{Properties: aux.Properties}
	if aux.ID != nil {
		out.ID = fmt.Sprint(aux.ID)
	}

	if feat.Geometry != nil {
		g, err := FromWKT(feat.Geometry.MarshalWKT(), srid)
		if err != nil {
			return nil, err
		}
		out.Geometry = g
	}
	return out, nil
}

// DecodeFeatureCollection decodes the features of a GeoJSON
// FeatureCollection in document order.
func DecodeFeatureCollection(data []byte, srid int) ([]*Feature, error) {
	var raw struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("Problem unmarshalling GeoJSON collection: %v", err)
	}
	if raw.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected a FeatureCollection, got %q", raw.Type)
	}

	feats := make([]*Feature, 0, len(raw.Features))
	for i, rf := range raw.Features {
		f, err := DecodeFeature(rf, srid)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %v", i, err)
		}
		feats = append(feats, f)
	}
	return feats, nil
}

// MarshalJSON writes the feature back as GeoJSON.
func (f *Feature) MarshalJSON() ([]byte, error) {
	var geomJSON json.RawMessage = []byte("null")
	if f.Geometry != nil {
		b, err := ToGeoJSON(f.Geometry)
		if err != nil {
			return nil, err
		}
		geomJSON = b
	}
	props := f.Properties
	if props == nil {
		props = map[string]interface{}{}
	}
	return json.Marshal(struct {
		Type       string                 `json:"type"`
		ID         string                 `json:"id,omitempty"`
		Properties map[string]interface{} `json:"properties"`
		Geometry   json.RawMessage        `json:"geometry"`
	}{"Feature", f.ID, props, geomJSON})
}
