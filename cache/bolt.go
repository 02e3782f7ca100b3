package cache

import (
	"encoding/binary"
	"time"

	"github.com/boltdb/bolt"
	"github.com/deegree/ows/geometry"
	"github.com/pkg/errors"
)

var tileBucket = []byte("tiles")

// BoltCache is an embedded tile cache. Values are stored with
// an 8 byte big endian expiry (unix nanoseconds, 0 for none)
// in front of the payload.
type BoltCache struct {
	Db  *bolt.DB
	now func() time.Time
}

func NewBoltCache(filename string) (*BoltCache, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening cache file '%v'", filename)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tileBucket)
		return errors.Wrap(err, "creating tiles bucket")
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltCache{Db: db, now: time.Now}, nil
}

func (c *BoltCache) Close() error {
	return c.Db.Close()
}

func (c *BoltCache) Get(key string) ([]byte, error) {
	var val []byte
	expired := false
	err := c.Db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(tileBucket).Get([]byte(key))
		if len(raw) < 8 {
			return nil
		}
		if c.isExpired(raw) {
			expired = true
			return nil
		}
		// bolt values are only valid during the transaction
		val = append([]byte(nil), raw[8:]...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "reading cache entry")
	}
	if expired {
		c.Delete(key)
		return nil, ErrCacheMiss
	}
	if val == nil {
		return nil, ErrCacheMiss
	}
	return val, nil
}

func (c *BoltCache) Set(key string, value []byte, ttl time.Duration) error {
	raw := make([]byte, 8+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(raw, uint64(c.now().Add(ttl).UnixNano()))
	}
	copy(raw[8:], value)
	err := c.Db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tileBucket).Put([]byte(key), raw)
	})
	return errors.Wrap(err, "writing cache entry")
}

func (c *BoltCache) Delete(key string) error {
	err := c.Db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tileBucket).Delete([]byte(key))
	})
	return errors.Wrap(err, "deleting cache entry")
}

func (c *BoltCache) isExpired(raw []byte) bool {
	exp := binary.BigEndian.Uint64(raw[:8])
	return exp != 0 && int64(exp) < c.now().UnixNano()
}

// InvalidateArea removes every entry whose area intersects env
// (longitude/latitude) and every entry without a known area, which
// may show env as well. It returns the number of removed entries.
func (c *BoltCache) InvalidateArea(env geometry.Envelope) (int, error) {
	if env.IsEmpty() {
		return 0, nil
	}

	removed := 0
	err := c.Db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tileBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if area, ok := keyArea(string(k)); !ok || area.Intersects(env) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, errors.Wrap(err, "invalidating cache area")
}

// Sweep removes expired entries and returns how many were removed.
func (c *BoltCache) Sweep() (int, error) {
	removed := 0
	err := c.Db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tileBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if len(v) < 8 || c.isExpired(v) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, errors.Wrap(err, "sweeping cache")
}
