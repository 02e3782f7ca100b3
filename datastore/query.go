package datastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/deegree/ows/geometry"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// SpatialQuery selects the rows of one feature type whose
// geometry intersects a bounding box.
type SpatialQuery struct {
	store       *Store
	featureType *FeatureType
	filter      *geometry.Envelope
	MaxFeatures int

	geometries []geometry.Geometry
}

func (s *Store) NewSpatialQuery() *SpatialQuery {
	return &SpatialQuery{store: s}
}

func (q *SpatialQuery) SetLayer(name string) error {
	ft, ok := q.store.FeatureType(name)
	if !ok {
		return errors.Errorf("unknown feature type %s", name)
	}
	q.featureType = ft
	q.filter = nil
	return nil
}

func (q *SpatialQuery) Layer() *FeatureType {
	return q.featureType
}

// SetSpatialFilter restricts the query to the part of the bbox
// inside the layer extent. A bbox outside the extent leaves the
// query without filter and Run returns an empty table.
func (q *SpatialQuery) SetSpatialFilter(minx, miny, maxx, maxy float64) error {
	if q.featureType == nil {
		return errors.New("no layer set")
	}
	query := geometry.Envelope{MinX: minx, MinY: miny, MaxX: maxx, MaxY: maxy}
	layerExt := q.featureType.Envelope()
	if layerExt.IsEmpty() {
		q.filter = &query
		return nil
	}
	if clipped, ok := query.Intersection(layerExt); ok {
		q.filter = &clipped
	} else {
		q.filter = nil
	}
	return nil
}

func (q *SpatialQuery) SpatialFilter() (geometry.Envelope, bool) {
	if q.filter == nil {
		return geometry.EmptyEnvelope(), false
	}
	return *q.filter, true
}

// Run executes the query selecting cols, or every column of the
// feature type when cols is empty. The geometries are returned
// one per row.
func (q *SpatialQuery) Run(ctx context.Context, cols []string) (*Table, []geometry.Geometry, error) {
	if q.featureType == nil {
		return nil, nil, errors.New("no layer set")
	}
	ft := q.featureType
	q.geometries = []geometry.Geometry{}
	if q.filter == nil {
		return emptyTable(ft.Name), q.geometries, nil
	}

	conn, err := q.store.Pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	if len(cols) == 0 {
		cols, err = q.store.describe(ctx, conn, ft)
		if err != nil {
			q.store.Pool.Release(conn, err)
			return nil, nil, err
		}
	}

	sqlStr, args := q.buildSQL(cols)
	if q.store.verbose {
		q.store.logger.Printf("spatial query: %s %v", sqlStr, args)
	}

	table, err := q.scan(ctx, conn, sqlStr, args, len(cols))
	q.store.Pool.Release(conn, err)
	if err != nil {
		return nil, nil, err
	}
	if table.RowCount() == 0 {
		return emptyTable(ft.Name), q.geometries, nil
	}
	return table, q.geometries, nil
}

func (q *SpatialQuery) buildSQL(cols []string) (string, []interface{}) {
	ft := q.featureType
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	geomCol := pq.QuoteIdentifier(ft.GeometryColumn)
	env := fmt.Sprintf("ST_MakeEnvelope($1, $2, $3, $4, %d)", ft.SRID)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(quoted) > 0 {
		sb.WriteString(strings.Join(quoted, ", "))
		sb.WriteString(", ")
	}
	fmt.Fprintf(&sb, "ST_AsBinary(%s) FROM %s WHERE %s && %s AND ST_Intersects(%s, %s)",
		geomCol, quoteTable(ft.Table), geomCol, env, geomCol, env)
	if q.MaxFeatures > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.MaxFeatures)
	}
	f := q.filter
	return sb.String(), []interface{}{f.MinX, f.MinY, f.MaxX, f.MaxY}
}

func (q *SpatialQuery) scan(ctx context.Context, conn Conn, sqlStr string, args []interface{}, ncols int) (*Table, error) {
	ft := q.featureType
	rows, err := conn.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", ft.Name)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, "reading column types")
	}
	names := make([]string, ncols)
	types := make([]ColumnType, ncols)
	for i := 0; i < ncols; i++ {
		names[i] = colTypes[i].Name()
		if p, ok := ft.PropertyByColumn(names[i]); ok && p.Type != Unknown {
			types[i] = p.Type
		} else {
			types[i] = columnTypeFromDB(colTypes[i].DatabaseTypeName())
		}
	}
	table, err := NewTable(ft.Name, names, types)
	if err != nil {
		return nil, err
	}

	for rows.Next() {
		vals := make([]interface{}, ncols+1)
		ptrs := make([]interface{}, ncols+1)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}

		var geom geometry.Geometry
		if wkb, ok := vals[ncols].([]byte); ok && len(wkb) > 0 {
			geom, err = geometry.FromWKB(wkb, ft.SRID)
			if err != nil {
				return nil, errors.Wrapf(err, "decoding %s geometry", ft.Name)
			}
		}
		q.geometries = append(q.geometries, geom)

		row := vals[:ncols]
		for i, v := range row {
			row[i] = normaliseValue(v, types[i])
		}
		if err := table.AppendRow(row); err != nil {
			return nil, err
		}
	}
	return table, errors.Wrap(rows.Err(), "iterating rows")
}

// normaliseValue converts driver values to the Go types bound
// to the column type. lib/pq returns numeric and text columns
// as []byte.
func normaliseValue(v interface{}, t ColumnType) interface{} {
	if b, ok := v.([]byte); ok && t != Blob {
		v = string(b)
	}
	if v == nil || t == Unknown {
		return v
	}
	out, err := Coerce(v, t)
	if err != nil {
		return v
	}
	return out
}

// Features converts the rows of table and the geometries of the
// last Run into GeoJSON features keyed by the id column.
func (q *SpatialQuery) Features(table *Table) []*geometry.Feature {
	ft := q.featureType
	if table == nil || table.ColumnIndex("NONE") == 0 && table.ColumnCount() == 1 {
		return nil
	}
	idIdx := table.ColumnIndex(ft.IDColumn)
	feats := make([]*geometry.Feature, 0, table.RowCount())
	for r, row := range table.Rows {
		f := &geometry.Feature{Properties: make(map[string]interface{})}
		for i, v := range row {
			if i == idIdx {
				f.ID = fmt.Sprintf("%s.%v", ft.Name, v)
				continue
			}
			name := strings.ToLower(table.ColumnNames[i])
			if p, ok := ft.PropertyByColumn(name); ok {
				name = p.Name
			}
			f.Properties[name] = v
		}
		if r < len(q.geometries) {
			f.Geometry = q.geometries[r]
		}
		feats = append(feats, f)
	}
	return feats
}

func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}
