package datastore

import (
	"io/ioutil"
	"strings"

	"github.com/deegree/ows/geometry"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type Property struct {
	Name   string     `yaml:"name"`
	Column string     `yaml:"column"`
	Type   ColumnType `yaml:"type"`
}

// FeatureType maps a published feature type onto a spatial table.
type FeatureType struct {
	Name           string     `yaml:"name"`
	Title          string     `yaml:"title"`
	Table          string     `yaml:"table"`
	IDColumn       string     `yaml:"id_column"`
	GeometryColumn string     `yaml:"geometry_column"`
	SRID           int        `yaml:"srid"`
	Extent         []float64  `yaml:"extent"`
	Properties     []Property `yaml:"properties"`
}

type featureTypeFile struct {
	FeatureTypes []FeatureType `yaml:"feature_types"`
}

// LoadFeatureTypes reads a YAML feature type mapping file.
func LoadFeatureTypes(path string) (map[string]*FeatureType, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading feature types file %s", path)
	}
	return ParseFeatureTypes(raw)
}

func ParseFeatureTypes(raw []byte) (map[string]*FeatureType, error) {
	var f featureTypeFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parsing feature types")
	}

	types := make(map[string]*FeatureType, len(f.FeatureTypes))
	for i := range f.FeatureTypes {
		ft := &f.FeatureTypes[i]
		if err := ft.validate(); err != nil {
			return nil, err
		}
		if _, dup := types[ft.Name]; dup {
			return nil, errors.Errorf("duplicate feature type %s", ft.Name)
		}
		types[ft.Name] = ft
	}
	return types, nil
}

func (ft *FeatureType) validate() error {
	if ft.Name == "" || ft.Table == "" {
		return errors.New("feature type needs a name and a table")
	}
	if ft.GeometryColumn == "" {
		ft.GeometryColumn = "geom"
	}
	if ft.IDColumn == "" {
		ft.IDColumn = "id"
	}
	if len(ft.Extent) != 0 && len(ft.Extent) != 4 {
		return errors.Errorf("feature type %s: extent needs 4 values", ft.Name)
	}
	for i := range ft.Properties {
		p := &ft.Properties[i]
		if p.Name == "" {
			return errors.Errorf("feature type %s: property %d has no name", ft.Name, i)
		}
		if p.Column == "" {
			p.Column = p.Name
		}
	}
	return nil
}

// Envelope returns the configured layer extent, empty when none
// is configured.
func (ft *FeatureType) Envelope() geometry.Envelope {
	if len(ft.Extent) != 4 {
		return geometry.EmptyEnvelope()
	}
	return geometry.Envelope{MinX: ft.Extent[0], MinY: ft.Extent[1], MaxX: ft.Extent[2], MaxY: ft.Extent[3]}
}

func (ft *FeatureType) Property(name string) (*Property, bool) {
	for i := range ft.Properties {
		if strings.EqualFold(ft.Properties[i].Name, name) {
			return &ft.Properties[i], true
		}
	}
	return nil, false
}

// PropertyByColumn looks a property up by its column name.
func (ft *FeatureType) PropertyByColumn(column string) (*Property, bool) {
	for i := range ft.Properties {
		if strings.EqualFold(ft.Properties[i].Column, column) {
			return &ft.Properties[i], true
		}
	}
	return nil, false
}
