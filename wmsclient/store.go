package wmsclient

import (
	"bytes"
	"context"
	"image"
	"image/draw"
	"image/png"
	"io/ioutil"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deegree/ows/cache"
	"github.com/deegree/ows/geometry"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig describes a cascaded remote WMS.
type ServiceConfig struct {
	Name                  string   `json:"name"`
	URL                   string   `json:"url"`
	Layers                []string `json:"layers"`
	MaxWidth              int      `json:"max_width"`
	MaxHeight             int      `json:"max_height"`
	ConnectionTimeoutSecs int      `json:"connection_timeout"`
	RequestTimeoutSecs    int      `json:"request_timeout"`
	MaxConcurrency        int      `json:"max_concurrency"`
	User                  string   `json:"user"`
	Password              string   `json:"password"`
	CacheTTLSecs          int      `json:"cache_ttl"`
}

func (sc *ServiceConfig) options(logger *log.Logger) *Options {
	return &Options{
		ConnectionTimeout: time.Duration(sc.ConnectionTimeoutSecs) * time.Second,
		RequestTimeout:    time.Duration(sc.RequestTimeoutSecs) * time.Second,
		User:              sc.User,
		Password:          sc.Password,
		MaxConcurrency:    sc.MaxConcurrency,
		Logger:            logger,
	}
}

func (sc *ServiceConfig) maxDimensions() (int, int) {
	w, h := sc.MaxWidth, sc.MaxHeight
	if w <= 0 {
		w = -1
	}
	if h <= 0 {
		h = -1
	}
	return w, h
}

// RemoteLayer is a layer served by a remote WMS.
type RemoteLayer struct {
	Name    string
	Title   string
	Service string
	LatLon  geometry.Envelope
	SRS     []string

	client   *Client
	cacheTTL time.Duration
}

func (l *RemoteLayer) Client() *Client { return l.client }

// RemoteWMSStore serves named layers of remote WMS servers.
type RemoteWMSStore struct {
	cache  cache.TileCache
	logger *log.Logger

	mu     sync.RWMutex
	layers map[string]*RemoteLayer
	order  []string
	index  *geometry.Index

	flight singleflight.Group

	hits   int64
	misses int64
}

func NewRemoteWMSStore(tc cache.TileCache, logger *log.Logger) *RemoteWMSStore {
	if tc == nil {
		tc = cache.NopCache{}
	}
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	return &RemoteWMSStore{
		cache:  tc,
		logger: logger,
		layers: make(map[string]*RemoteLayer),
		index:  geometry.NewIndex(),
	}
}

// Connect loads the capabilities of every configured service and
// registers their layers. Services that fail to load are logged
// and skipped.
func (s *RemoteWMSStore) Connect(ctx context.Context, services []ServiceConfig) error {
	var firstErr error
	for i := range services {
		sc := &services[i]
		client, err := NewClient(ctx, sc.URL, sc.options(s.logger))
		if err != nil {
			s.logger.Printf("remote WMS %s: %v", sc.Name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.AddService(sc, client); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AddService registers the layers of client configured by sc. All
// named layers are registered when sc lists none. A layer name
// already registered by another service is skipped.
func (s *RemoteWMSStore) AddService(sc *ServiceConfig, client *Client) error {
	client.SetMaxMapDimensions(sc.maxDimensions())
	caps := client.Capabilities()
	names := sc.Layers
	if len(names) == 0 {
		names = caps.NamedLayers()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		capLayer, ok := caps.Layer(name)
		if !ok {
			return errors.Errorf("remote WMS %s has no layer %s", sc.Name, name)
		}
		if _, dup := s.layers[name]; dup {
			s.logger.Printf("layer %s of %s already registered, skipping", name, sc.Name)
			continue
		}
		latLon, _ := caps.LatLonBoundingBox(name)
		l := &RemoteLayer{
			Name:     name,
			Title:    capLayer.Title,
			Service:  sc.Name,
			LatLon:   latLon,
			SRS:      caps.CoordinateSystems(name),
			client:   client,
			cacheTTL: time.Duration(sc.CacheTTLSecs) * time.Second,
		}
		s.layers[name] = l
		s.order = append(s.order, name)
		s.index.Insert(name, latLon)
	}
	return nil
}

func (s *RemoteWMSStore) Layer(name string) (*RemoteLayer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[name]
	return l, ok
}

// Layers lists the registered layers in registration order.
func (s *RemoteWMSStore) Layers() []*RemoteLayer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	layers := make([]*RemoteLayer, 0, len(s.order))
	for _, name := range s.order {
		layers = append(layers, s.layers[name])
	}
	return layers
}

// LayersIn lists the layers whose geographic extent intersects env.
func (s *RemoteWMSStore) LayersIn(env geometry.Envelope) []string {
	names := s.index.Search(env)
	sort.Strings(names)
	return names
}

// layerGroup is a run of consecutive layers served by one client.
type layerGroup struct {
	client *Client
	layers []string
	ttl    time.Duration
}

func (s *RemoteWMSStore) group(names []string) ([]layerGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var groups []layerGroup
	for _, name := range names {
		l, ok := s.layers[name]
		if !ok {
			return nil, errors.Errorf("layer %s is not defined", name)
		}
		if n := len(groups); n > 0 && groups[n-1].client == l.client {
			groups[n-1].layers = append(groups[n-1].layers, name)
			continue
		}
		groups = append(groups, layerGroup{client: l.client, layers: []string{name}, ttl: l.cacheTTL})
	}
	return groups, nil
}

// GetMap renders layers, which may come from several servers, into
// one image. Layers of one server next to each other in the request
// are fetched with one request, and the results are drawn in request
// order. req.Layers is ignored.
func (s *RemoteWMSStore) GetMap(ctx context.Context, layers []string, req MapRequest) (image.Image, error) {
	groups, err := s.group(layers)
	if err != nil {
		return nil, err
	}

	images := make([]image.Image, len(groups))
	for i, g := range groups {
		img, err := s.groupMap(ctx, g, req)
		if err != nil {
			return nil, err
		}
		images[i] = img
	}
	if len(images) == 1 {
		return images[0], nil
	}

	canvas := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	for _, img := range images {
		draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Over)
	}
	return canvas, nil
}

// groupMap fetches the map of one layer group through the cache.
// Concurrent requests for the same map share one remote request.
func (s *RemoteWMSStore) groupMap(ctx context.Context, g layerGroup, req MapRequest) (image.Image, error) {
	key := cache.Key(cache.Request{
		Namespace: "remote",
		Layers:    g.layers,
		CRS:       req.SRS,
		BBox:      req.BBox,
		Width:     req.Width,
		Height:    req.Height,
		Format:    req.Format,
		Extra:     transparentFlag(req.Transparent),
	})

	if raw, err := s.cache.Get(key); err == nil {
		if img, err := png.Decode(bytes.NewReader(raw)); err == nil {
			atomic.AddInt64(&s.hits, 1)
			return img, nil
		}
	}
	atomic.AddInt64(&s.misses, 1)

	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		sub := req
		sub.Layers = g.layers
		sub.ValidationErrors = nil
		img, exception, err := g.client.GetMap(ctx, &sub)
		if err != nil {
			return nil, err
		}
		if img == nil {
			return nil, &ServiceException{Message: exception}
		}
		for _, msg := range sub.ValidationErrors {
			s.logger.Printf("remote GetMap %v: %s", g.layers, msg)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			s.logger.Printf("encoding map for cache: %v", err)
			return img, nil
		}
		if err := s.cache.Set(key, buf.Bytes(), g.ttl); err != nil {
			s.logger.Printf("caching map %s: %v", key, err)
		}
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// GetFeatureInfo forwards a feature info request to the servers of
// the queried layers and concatenates their answers.
func (s *RemoteWMSStore) GetFeatureInfo(ctx context.Context, layers []string, req FeatureInfoRequest) ([]*FeatureInfo, error) {
	groups, err := s.group(layers)
	if err != nil {
		return nil, err
	}
	var all []*FeatureInfo
	for _, g := range groups {
		sub := req
		sub.QueryLayers = g.layers
		feats, err := g.client.GetFeatureInfo(ctx, &sub)
		if err != nil {
			return nil, err
		}
		all = append(all, feats...)
	}
	return all, nil
}

// CacheStats returns the number of maps served from the cache and
// fetched from remote servers.
func (s *RemoteWMSStore) CacheStats() (hits, misses int64) {
	return atomic.LoadInt64(&s.hits), atomic.LoadInt64(&s.misses)
}

func transparentFlag(t bool) string {
	if t {
		return "transparent"
	}
	return "opaque"
}
