package datastore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/deegree/ows/geometry"
)

const testFeatureTypes = `
feature_types:
  - name: roads
    title: Road network
    table: public.roads
    srid: 4326
    extent: [110, -45, 155, -10]
    properties:
      - name: name
        type: varchar
      - name: lanes
        column: lane_count
        type: smallint
      - name: opened
        type: date
  - name: parcels
    table: parcels
`

func testStore(t *testing.T) *Store {
	types, err := ParseFeatureTypes([]byte(testFeatureTypes))
	if err != nil {
		t.Fatalf("parsing feature types: %v", err)
	}
	pool := NewConnectionPool(1, func(ctx context.Context) (Conn, error) {
		return nil, errors.New("no database in unit tests")
	})
	return NewStore(pool, types, false)
}

func TestParseFeatureTypes(t *testing.T) {
	types, err := ParseFeatureTypes([]byte(testFeatureTypes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	roads, ok := types["roads"]
	if !ok {
		t.Fatalf("roads not loaded")
	}
	if roads.IDColumn != "id" || roads.GeometryColumn != "geom" {
		t.Errorf("defaults not applied: %+v", roads)
	}
	p, ok := roads.Property("LANES")
	if !ok || p.Column != "lane_count" || p.Type != SmallInt {
		t.Errorf("unexpected lanes property %+v", p)
	}
	if p, ok := roads.Property("name"); !ok || p.Column != "name" {
		t.Errorf("column should default to the property name")
	}
	if p, ok := roads.PropertyByColumn("lane_count"); !ok || p.Name != "lanes" {
		t.Errorf("lookup by column failed")
	}
	if env := roads.Envelope(); env.MinX != 110 || env.MaxY != -10 {
		t.Errorf("unexpected extent %v", env)
	}
	if !types["parcels"].Envelope().IsEmpty() {
		t.Errorf("parcels has no extent")
	}

	bad := []string{
		"feature_types:\n  - name: x\n",
		"feature_types:\n  - name: x\n    table: t\n    extent: [1, 2]\n",
		"feature_types:\n  - name: x\n    table: t\n    properties:\n      - name: a\n        type: wibble\n",
		"feature_types:\n  - name: x\n    table: t\n  - name: x\n    table: u\n",
	}
	for _, raw := range bad {
		if _, err := ParseFeatureTypes([]byte(raw)); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		in      interface{}
		typ     ColumnType
		want    interface{}
		wantErr bool
	}{
		{"12", SmallInt, int16(12), false},
		{"40000", SmallInt, nil, true},
		{float64(7), Integer, int32(7), false},
		{float64(7.5), Integer, nil, true},
		{"  9000000000 ", BigInt, int64(9000000000), false},
		{"abc", BigInt, nil, true},
		{"1.5", Double, 1.5, false},
		{3, Double, float64(3), false},
		{"2.25", Float, float32(2.25), false},
		{42, Varchar, "42", false},
		{2.5, Varchar, "2.5", false},
		{"raw", Blob, []byte("raw"), false},
		{7, Blob, nil, true},
		{"x", GeometryColumn, nil, true},
		{nil, Integer, nil, false},
		{int16(3), Unknown, int16(3), false},
	}
	for _, tc := range tests {
		got, err := Coerce(tc.in, tc.typ)
		if (err != nil) != tc.wantErr {
			t.Errorf("Coerce(%v, %v) error = %v", tc.in, tc.typ, err)
			continue
		}
		if tc.wantErr {
			continue
		}
		if b, ok := tc.want.([]byte); ok {
			if string(got.([]byte)) != string(b) {
				t.Errorf("Coerce(%v, %v) = %v", tc.in, tc.typ, got)
			}
			continue
		}
		if got != tc.want {
			t.Errorf("Coerce(%v, %v) = %#v, want %#v", tc.in, tc.typ, got, tc.want)
		}
	}

	for _, s := range []string{"2019-03-01", "2019-03-01 10:20:30", "2019-03-01T10:20:30Z"} {
		v, err := Coerce(s, Date)
		if err != nil {
			t.Errorf("parsing %s: %v", s, err)
			continue
		}
		if tm := v.(time.Time); tm.Year() != 2019 || tm.Month() != time.March {
			t.Errorf("wrong date for %s: %v", s, tm)
		}
	}
	if _, err := Coerce("March", Date); err == nil {
		t.Errorf("expected date parse error")
	}
}

func TestDetectType(t *testing.T) {
	pt := geometry.NewFactory(4326).NewPoint(1, 2)
	tests := []struct {
		in   interface{}
		want ColumnType
	}{
		{int16(1), SmallInt},
		{1, Integer},
		{int64(1), BigInt},
		{float32(1), Float},
		{1.0, Double},
		{"a", Varchar},
		{time.Now(), Date},
		{[]byte{1}, Blob},
		{pt, GeometryColumn},
		{struct{}{}, Unknown},
	}
	for _, tc := range tests {
		if got := DetectType(tc.in); got != tc.want {
			t.Errorf("DetectType(%T) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTable(t *testing.T) {
	tbl, err := NewTable("roads", []string{"id", "name"}, []ColumnType{Integer, Varchar})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.ColumnNames[1] != "NAME" {
		t.Errorf("column names should be upper case, got %v", tbl.ColumnNames)
	}
	if err := tbl.AppendRow([]interface{}{1}); err == nil {
		t.Errorf("short row should be rejected")
	}
	if err := tbl.AppendRow([]interface{}{int32(1), "Hume"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, ok := tbl.Value(0, "name"); !ok || v != "Hume" {
		t.Errorf("Value returned %v, %v", v, ok)
	}
	if _, ok := tbl.Value(1, "name"); ok {
		t.Errorf("row out of range should not be found")
	}
	if _, err := NewTable("x", []string{"a"}, nil); err == nil {
		t.Errorf("mismatched types should be rejected")
	}
}

func TestSpatialFilter(t *testing.T) {
	s := testStore(t)
	q := s.NewSpatialQuery()
	if err := q.SetSpatialFilter(0, 0, 1, 1); err == nil {
		t.Errorf("filter without layer should fail")
	}
	if err := q.SetLayer("rivers"); err == nil {
		t.Errorf("unknown layer should fail")
	}
	if err := q.SetLayer("roads"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q.SetSpatialFilter(100, -50, 120, -30)
	env, ok := q.SpatialFilter()
	if !ok {
		t.Fatalf("overlapping bbox should set a filter")
	}
	want := geometry.Envelope{MinX: 110, MinY: -45, MaxX: 120, MaxY: -30}
	if env != want {
		t.Errorf("filter not clipped to extent: got %v, want %v", env, want)
	}

	q.SetSpatialFilter(0, 0, 10, 10)
	if _, ok := q.SpatialFilter(); ok {
		t.Errorf("disjoint bbox should clear the filter")
	}

	// no filter: empty table without touching the pool
	table, geoms, err := q.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if geoms == nil || len(geoms) != 0 {
		t.Errorf("expected no geometries, got %v", geoms)
	}
	if table.ColumnCount() != 1 || table.ColumnNames[0] != "NONE" || table.RowCount() != 0 {
		t.Errorf("expected the empty NONE table, got %+v", table)
	}
	if q.Features(table) != nil {
		t.Errorf("empty table has no features")
	}

	pq := s.NewSpatialQuery()
	pq.SetLayer("parcels")
	pq.SetSpatialFilter(-1000, -1000, 1000, 1000)
	if env, ok := pq.SpatialFilter(); !ok || env.MinX != -1000 {
		t.Errorf("layers without extent keep the bbox as is")
	}
}

func TestBuildSQL(t *testing.T) {
	s := testStore(t)
	q := s.NewSpatialQuery()
	q.SetLayer("roads")
	q.MaxFeatures = 10
	q.SetSpatialFilter(120, -40, 130, -30)

	sqlStr, args := q.buildSQL([]string{"id", "name"})
	for _, frag := range []string{
		`SELECT "id", "name", ST_AsBinary("geom") FROM "public"."roads"`,
		`ST_MakeEnvelope($1, $2, $3, $4, 4326)`,
		`ST_Intersects("geom"`,
		`LIMIT 10`,
	} {
		if !strings.Contains(sqlStr, frag) {
			t.Errorf("sql %q missing %q", sqlStr, frag)
		}
	}
	if len(args) != 4 || args[0] != 120.0 || args[3] != -30.0 {
		t.Errorf("unexpected args %v", args)
	}
}

func TestRunPoolError(t *testing.T) {
	s := testStore(t)
	_, _, err := s.Query(context.Background(), "roads", 120, -40, 130, -30, 0)
	if err == nil {
		t.Errorf("expected the dial error to surface")
	}
	if s.Pool.Stats().InUse != 0 {
		t.Errorf("failed dial should not leave connections in use")
	}
}

func TestLocalID(t *testing.T) {
	if id := LocalID("roads", "roads.12"); id != "12" {
		t.Errorf("got %s", id)
	}
	if id := LocalID("roads", "12"); id != "12" {
		t.Errorf("got %s", id)
	}
}

// TestPostGIS runs against a live database named by OWS_TEST_PG_DSN
// holding a "roads" table with id, name, lane_count, opened and geom.
func TestPostGIS(t *testing.T) {
	dsn := os.Getenv("OWS_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("OWS_TEST_PG_DSN not set")
	}

	dir := t.TempDir()
	ftFile := dir + "/feature_types.yaml"
	if err := os.WriteFile(ftFile, []byte(testFeatureTypes), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(Config{DSN: dsn, PoolSize: 2, FeatureTypesFile: ftFile}, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	f := geometry.NewFactory(4326)
	line, _ := f.NewCurve([][2]float64{{149.1, -35.3}, {149.2, -35.2}})

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	id, err := tx.Insert(ctx, "roads", map[string]interface{}{"name": "Test Rd", "lanes": float64(2)}, line)
	if err != nil {
		tx.Rollback()
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	q, table, err := s.Query(ctx, "roads", 149, -35.4, 149.3, -35.1, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	found := false
	for _, feat := range q.Features(table) {
		if feat.ID == id {
			found = true
			if feat.Geometry == nil || feat.Geometry.Type() != geometry.CurveType {
				t.Errorf("unexpected geometry %v", feat.Geometry)
			}
		}
	}
	if !found {
		t.Errorf("inserted feature %s not returned", id)
	}

	tx, _ = s.Begin(ctx)
	if n, err := tx.Delete(ctx, "roads", id); err != nil || n != 1 {
		t.Errorf("delete: %d, %v", n, err)
	}
	tx.Commit()
}
