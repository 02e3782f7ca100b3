package cache

import (
	"time"

	"github.com/nci/gomemcache/memcache"
	"github.com/pkg/errors"
)

// MemcacheCache stores entries in a memcached cluster.
// Connections are lazy; errors surface on Get and Set.
type MemcacheCache struct {
	mc *memcache.Client
}

func NewMemcacheCache(servers ...string) *MemcacheCache {
	return &MemcacheCache{mc: memcache.New(servers...)}
}

func (c *MemcacheCache) Get(key string) ([]byte, error) {
	item, err := c.mc.Get(key)
	if err == memcache.ErrCacheMiss {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrapf(err, "memcache get %s", key)
	}
	return item.Value, nil
}

// Set stores value; ttl values of a second or less are
// treated as no expiry.
func (c *MemcacheCache) Set(key string, value []byte, ttl time.Duration) error {
	item := &memcache.Item{Key: key, Value: value}
	if ttl > time.Second {
		item.Expiration = int32(ttl / time.Second)
	}
	return errors.Wrapf(c.mc.Set(item), "memcache set %s", key)
}

func (c *MemcacheCache) Delete(key string) error {
	err := c.mc.Delete(key)
	if err == memcache.ErrCacheMiss {
		return nil
	}
	return errors.Wrapf(err, "memcache delete %s", key)
}
