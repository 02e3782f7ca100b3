package datastore

import (
	"context"
	"database/sql"
	"io/ioutil"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

type Config struct {
	DSN              string `json:"dsn"`
	PoolSize         int    `json:"pool_size"`
	WaitTimeoutSecs  int    `json:"wait_timeout"`
	FeatureTypesFile string `json:"feature_types_file"`
}

// Store publishes the feature types of a PostGIS database
// through a blocking connection pool.
type Store struct {
	Pool *ConnectionPool

	db           *sql.DB
	featureTypes map[string]*FeatureType
	logger       *log.Logger
	verbose      bool

	colMu    sync.Mutex
	colCache map[string][]string
}

// Open connects to the database described by cfg. Feature types
// are loaded from cfg.FeatureTypesFile.
func Open(cfg Config, verbose bool) (*Store, error) {
	types, err := LoadFeatureTypes(cfg.FeatureTypesFile)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 8
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	pool := NewConnectionPool(poolSize, func(ctx context.Context) (Conn, error) {
		return db.Conn(ctx)
	})
	if cfg.WaitTimeoutSecs > 0 {
		pool.WaitTimeout = time.Duration(cfg.WaitTimeoutSecs) * time.Second
	}

	s := NewStore(pool, types, verbose)
	s.db = db
	return s, nil
}

// NewStore builds a store over an existing pool.
func NewStore(pool *ConnectionPool, types map[string]*FeatureType, verbose bool) *Store {
	return &Store{
		Pool:         pool,
		featureTypes: types,
		logger:       log.New(ioutil.Discard, "", 0),
		verbose:      verbose,
		colCache:     make(map[string][]string),
	}
}

func (s *Store) SetLogger(l *log.Logger) {
	s.logger = l
}

func (s *Store) Close() error {
	err := s.Pool.Close()
	if s.db != nil {
		if e := s.db.Close(); err == nil {
			err = e
		}
	}
	return err
}

func (s *Store) FeatureType(name string) (*FeatureType, bool) {
	ft, ok := s.featureTypes[name]
	return ft, ok
}

// FeatureTypes returns the published feature types sorted by name.
func (s *Store) FeatureTypes() []*FeatureType {
	types := make([]*FeatureType, 0, len(s.featureTypes))
	for _, ft := range s.featureTypes {
		types = append(types, ft)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types
}

// Query runs a bbox query against one feature type.
func (s *Store) Query(ctx context.Context, featureType string, minx, miny, maxx, maxy float64, maxFeatures int) (*SpatialQuery, *Table, error) {
	q := s.NewSpatialQuery()
	if err := q.SetLayer(featureType); err != nil {
		return nil, nil, err
	}
	q.MaxFeatures = maxFeatures
	if err := q.SetSpatialFilter(minx, miny, maxx, maxy); err != nil {
		return nil, nil, err
	}
	table, _, err := q.Run(ctx, nil)
	return q, table, err
}

// describe lists the non geometry columns of a feature type:
// the id column followed by the configured properties, or every
// table column when no properties are configured.
func (s *Store) describe(ctx context.Context, conn Conn, ft *FeatureType) ([]string, error) {
	if len(ft.Properties) > 0 {
		cols := []string{ft.IDColumn}
		for _, p := range ft.Properties {
			if !strings.EqualFold(p.Column, ft.IDColumn) {
				cols = append(cols, p.Column)
			}
		}
		return cols, nil
	}

	s.colMu.Lock()
	cols, ok := s.colCache[ft.Name]
	s.colMu.Unlock()
	if ok {
		return cols, nil
	}

	schema, table := "public", ft.Table
	if i := strings.LastIndex(table, "."); i >= 0 {
		schema, table = table[:i], table[i+1:]
	}
	rows, err := conn.QueryContext(ctx,
		`select column_name from information_schema.columns
		 where table_schema = $1 and table_name = $2 and column_name <> $3
		 order by ordinal_position`, schema, table, ft.GeometryColumn)
	if err != nil {
		return nil, errors.Wrapf(err, "describing %s", ft.Table)
	}
	defer rows.Close()
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "scanning column name")
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "describing columns")
	}
	if len(cols) == 0 {
		return nil, errors.Errorf("table %s not found or has no columns", ft.Table)
	}

	s.colMu.Lock()
	s.colCache[ft.Name] = cols
	s.colMu.Unlock()
	return cols, nil
}
