package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/deegree/ows/geometry"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Transaction groups inserts, updates and deletes on one pooled
// connection. It must end with Commit or Rollback, which return
// the connection to the pool.
type Transaction struct {
	store *Store
	conn  Conn
	tx    *sql.Tx
	done  bool

	Inserted []string
	Updated  int64
	Deleted  int64
}

func (s *Store) Begin(ctx context.Context) (*Transaction, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		s.Pool.Release(conn, err)
		return nil, errors.Wrap(err, "beginning transaction")
	}
	return &Transaction{store: s, conn: conn, tx: tx}, nil
}

// Insert stores a new feature and returns its id.
func (t *Transaction) Insert(ctx context.Context, featureType string, props map[string]interface{}, geom geometry.Geometry) (string, error) {
	ft, cols, args, err := t.bind(featureType, props)
	if err != nil {
		return "", err
	}
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	if geom != nil {
		wkb, err := geometry.ToWKB(geom)
		if err != nil {
			return "", errors.Wrap(err, "encoding geometry")
		}
		cols = append(cols, pq.QuoteIdentifier(ft.GeometryColumn))
		args = append(args, wkb)
		placeholders = append(placeholders, fmt.Sprintf("ST_GeomFromWKB($%d, %d)", len(args), ft.SRID))
	}
	if len(cols) == 0 {
		return "", errors.Errorf("insert into %s has no values", ft.Name)
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quoteTable(ft.Table), strings.Join(cols, ", "), strings.Join(placeholders, ", "), pq.QuoteIdentifier(ft.IDColumn))

	var id interface{}
	if err := t.tx.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return "", errors.Wrapf(err, "inserting into %s", ft.Name)
	}
	if b, ok := id.([]byte); ok {
		id = string(b)
	}
	fid := fmt.Sprintf("%s.%v", ft.Name, id)
	t.Inserted = append(t.Inserted, fid)
	return fid, nil
}

// Update changes the given properties, and the geometry when
// geom is not nil, of the feature with the given id.
func (t *Transaction) Update(ctx context.Context, featureType, id string, props map[string]interface{}, geom geometry.Geometry) (int64, error) {
	ft, cols, args, err := t.bind(featureType, props)
	if err != nil {
		return 0, err
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	if geom != nil {
		wkb, err := geometry.ToWKB(geom)
		if err != nil {
			return 0, errors.Wrap(err, "encoding geometry")
		}
		args = append(args, wkb)
		sets = append(sets, fmt.Sprintf("%s = ST_GeomFromWKB($%d, %d)", pq.QuoteIdentifier(ft.GeometryColumn), len(args), ft.SRID))
	}
	if len(sets) == 0 {
		return 0, nil
	}
	args = append(args, LocalID(ft.Name, id))

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		quoteTable(ft.Table), strings.Join(sets, ", "), pq.QuoteIdentifier(ft.IDColumn), len(args))
	res, err := t.tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "updating %s", ft.Name)
	}
	n, _ := res.RowsAffected()
	t.Updated += n
	return n, nil
}

func (t *Transaction) Delete(ctx context.Context, featureType, id string) (int64, error) {
	ft, ok := t.store.FeatureType(featureType)
	if !ok {
		return 0, errors.Errorf("unknown feature type %s", featureType)
	}
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", quoteTable(ft.Table), pq.QuoteIdentifier(ft.IDColumn))
	res, err := t.tx.ExecContext(ctx, sqlStr, LocalID(ft.Name, id))
	if err != nil {
		return 0, errors.Wrapf(err, "deleting from %s", ft.Name)
	}
	n, _ := res.RowsAffected()
	t.Deleted += n
	return n, nil
}

func (t *Transaction) Commit() error {
	if t.done {
		return errors.New("transaction already finished")
	}
	t.done = true
	err := t.tx.Commit()
	t.store.Pool.Release(t.conn, err)
	return errors.Wrap(err, "committing transaction")
}

// Rollback aborts the transaction; it is a no-op after Commit.
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.tx.Rollback()
	t.store.Pool.Release(t.conn, err)
	return errors.Wrap(err, "rolling back transaction")
}

// bind resolves property names to quoted columns and coerces the
// values to the declared column types. Properties not declared by
// the feature type are rejected unless it declares none.
func (t *Transaction) bind(featureType string, props map[string]interface{}) (*FeatureType, []string, []interface{}, error) {
	ft, ok := t.store.FeatureType(featureType)
	if !ok {
		return nil, nil, nil, errors.Errorf("unknown feature type %s", featureType)
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	// deterministic column order
	sort.Strings(names)

	var cols []string
	var args []interface{}
	for _, name := range names {
		column, colType := name, Unknown
		if p, ok := ft.Property(name); ok {
			column, colType = p.Column, p.Type
		} else if len(ft.Properties) > 0 {
			return nil, nil, nil, errors.Errorf("feature type %s has no property %s", ft.Name, name)
		}
		v, err := Coerce(props[name], colType)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "property %s", name)
		}
		cols = append(cols, pq.QuoteIdentifier(column))
		args = append(args, v)
	}
	return ft, cols, args, nil
}

// LocalID strips the "<feature type>." prefix of a feature id.
func LocalID(featureType, id string) string {
	return strings.TrimPrefix(id, featureType+".")
}
