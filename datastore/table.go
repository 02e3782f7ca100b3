package datastore

import (
	"strings"

	"github.com/pkg/errors"
)

// ColumnType is the logical type of a table column.
type ColumnType int

const (
	Unknown ColumnType = iota
	SmallInt
	Integer
	BigInt
	Float
	Double
	Varchar
	Date
	Blob
	GeometryColumn
)

var columnTypeNames = map[string]ColumnType{
	"smallint": SmallInt,
	"integer":  Integer,
	"int":      Integer,
	"bigint":   BigInt,
	"float":    Float,
	"real":     Float,
	"double":   Double,
	"varchar":  Varchar,
	"string":   Varchar,
	"text":     Varchar,
	"date":     Date,
	"blob":     Blob,
	"bytea":    Blob,
	"geometry": GeometryColumn,
}

func ParseColumnType(s string) (ColumnType, error) {
	if t, ok := columnTypeNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return Unknown, errors.Errorf("unknown column type %q", s)
}

func (t ColumnType) String() string {
	switch t {
	case SmallInt:
		return "smallint"
	case Integer:
		return "integer"
	case BigInt:
		return "bigint"
	case Float:
		return "float"
	case Double:
		return "double"
	case Varchar:
		return "varchar"
	case Date:
		return "date"
	case Blob:
		return "blob"
	case GeometryColumn:
		return "geometry"
	}
	return "unknown"
}

// UnmarshalYAML lets feature type files name column types.
func (t *ColumnType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	ct, err := ParseColumnType(s)
	if err != nil {
		return err
	}
	*t = ct
	return nil
}

// columnTypeFromDB maps Postgres type names as reported by
// lib/pq to column types.
func columnTypeFromDB(name string) ColumnType {
	switch strings.ToUpper(name) {
	case "INT2":
		return SmallInt
	case "INT4":
		return Integer
	case "INT8":
		return BigInt
	case "FLOAT4":
		return Float
	case "FLOAT8", "NUMERIC":
		return Double
	case "VARCHAR", "TEXT", "BPCHAR", "CHAR", "NAME", "UUID":
		return Varchar
	case "DATE", "TIMESTAMP", "TIMESTAMPTZ":
		return Date
	case "BYTEA":
		return Blob
	}
	return Unknown
}

// Table is the tabular result of a spatial query. Column names
// are upper case.
type Table struct {
	Name        string
	ColumnNames []string
	ColumnTypes []ColumnType
	Rows        [][]interface{}
}

func NewTable(name string, names []string, types []ColumnType) (*Table, error) {
	if len(names) != len(types) {
		return nil, errors.Errorf("table %s: %d column names but %d types", name, len(names), len(types))
	}
	upper := make([]string, len(names))
	for i, n := range names {
		upper[i] = strings.ToUpper(n)
	}
	return &Table{Name: name, ColumnNames: upper, ColumnTypes: types}, nil
}

// emptyTable is returned for queries without matches.
func emptyTable(name string) *Table {
	t, _ := NewTable(name, []string{"NONE"}, []ColumnType{Varchar})
	return t
}

func (t *Table) ColumnCount() int { return len(t.ColumnNames) }
func (t *Table) RowCount() int    { return len(t.Rows) }

func (t *Table) AppendRow(row []interface{}) error {
	if len(row) != len(t.ColumnNames) {
		return errors.Errorf("table %s: row has %d values, expected %d", t.Name, len(row), len(t.ColumnNames))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// ColumnIndex returns the position of the named column or -1.
func (t *Table) ColumnIndex(name string) int {
	name = strings.ToUpper(name)
	for i, n := range t.ColumnNames {
		if n == name {
			return i
		}
	}
	return -1
}

func (t *Table) Value(row int, column string) (interface{}, bool) {
	i := t.ColumnIndex(column)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[row][i], true
}
