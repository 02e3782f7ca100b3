package wmsclient

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"log"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultConnectionTimeout = 5 * time.Second
	DefaultRequestTimeout    = 60 * time.Second
)

var ErrNoGetMapURL = errors.New("wmsclient: server advertises no GetMap URL")

type Options struct {
	ConnectionTimeout time.Duration
	RequestTimeout    time.Duration

	// HTTP basic credentials, unused when User is empty.
	User     string
	Password string

	// MaxConcurrency bounds the tile requests of one tiled GetMap.
	MaxConcurrency int

	Logger *log.Logger
}

// Client talks to a remote WMS 1.1.1 server.
type Client struct {
	capsURL    string
	httpClient *http.Client
	user       string
	pass       string
	logger     *log.Logger

	maxConcurrency int

	mu        sync.RWMutex
	caps      *Capabilities
	maxWidth  int
	maxHeight int
}

func newClient(opts *Options) *Client {
	if opts == nil {
		opts = &Options{}
	}
	connTimeout := opts.ConnectionTimeout
	if connTimeout <= 0 {
		connTimeout = DefaultConnectionTimeout
	}
	reqTimeout := opts.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = DefaultRequestTimeout
	}
	maxConc := opts.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: connTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout: connTimeout,
		MaxIdleConnsPerHost: maxConc,
	}
	return &Client{
		httpClient:     &http.Client{Transport: transport, Timeout: reqTimeout},
		user:           opts.User,
		pass:           opts.Password,
		logger:         logger,
		maxConcurrency: maxConc,
		maxWidth:       -1,
		maxHeight:      -1,
	}
}

// NewClient loads the capabilities document at capsURL.
func NewClient(ctx context.Context, capsURL string, opts *Options) (*Client, error) {
	c := newClient(opts)
	c.capsURL = capsURL
	caps, err := c.loadCapabilities(ctx, capsURL)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read from URL %s", capsURL)
	}
	c.caps = caps
	return c, nil
}

// NewClientFromCapabilities builds a client over an already
// parsed capabilities document.
func NewClientFromCapabilities(caps *Capabilities, opts *Options) *Client {
	c := newClient(opts)
	c.caps = caps
	return c
}

// SetMaxMapDimensions sets the largest map the server renders.
// Larger GetMap requests are split into tiles. -1 leaves a
// dimension unrestricted.
func (c *Client) SetMaxMapDimensions(maxWidth, maxHeight int) {
	c.mu.Lock()
	c.maxWidth, c.maxHeight = maxWidth, maxHeight
	c.mu.Unlock()
}

func (c *Client) maxDimensions() (int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxWidth, c.maxHeight
}

func (c *Client) Capabilities() *Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caps
}

// RefreshCapabilities reloads the capabilities from the advertised
// GetCapabilities address. The current document is kept on error.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	addr := c.Capabilities().Address(GetCapabilities, true)
	if addr == "" {
		addr = c.capsURL
	}
	if addr == "" {
		return errors.New("no GetCapabilities address")
	}
	u := withQuery(addr, "request=GetCapabilities&version=1.1.1&service=WMS")
	caps, err := c.loadCapabilities(ctx, u)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.caps = caps
	c.mu.Unlock()
	return nil
}

func (c *Client) loadCapabilities(ctx context.Context, u string) (*Capabilities, error) {
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("GetCapabilities returned HTTP %d", resp.StatusCode)
	}
	return ParseCapabilities(resp.Body)
}

func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid URL %s", u)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}
	c.logger.Printf("Connecting to URL %s", u)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "requesting remote WMS")
	}
	return resp, nil
}

func (c *Client) NamedLayers() []string { return c.Capabilities().NamedLayers() }

func (c *Client) HasLayer(name string) bool { return c.Capabilities().HasLayer(name) }

func (c *Client) Formats(op Operation) []string { return c.Capabilities().Formats(op) }

func (c *Client) Address(op Operation, get bool) string { return c.Capabilities().Address(op, get) }

func (c *Client) CoordinateSystems(layer string) []string {
	return c.Capabilities().CoordinateSystems(layer)
}

// withQuery appends a query string to a base address, adding
// the separator the address lacks.
func withQuery(base, query string) string {
	if !strings.HasSuffix(base, "?") && !strings.HasSuffix(base, "&") {
		if strings.Contains(base, "?") {
			base += "&"
		} else {
			base += "?"
		}
	}
	return base + query
}

// kvp holds request parameters in insertion order.
type kvp struct {
	keys   []string
	values map[string]string
}

func newKVP() *kvp {
	return &kvp{values: make(map[string]string)}
}

func (p *kvp) set(k, v string) {
	if _, ok := p.values[k]; !ok {
		p.keys = append(p.keys, k)
	}
	p.values[k] = v
}

// override applies hard parameters: preset keys are replaced
// case-insensitively, others are added as given.
func (p *kvp) override(hard map[string]string) {
	names := make([]string, 0, len(hard))
	for k := range hard {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if _, ok := p.values[strings.ToLower(k)]; ok {
			p.set(strings.ToLower(k), hard[k])
		} else {
			p.set(k, hard[k])
		}
	}
}

func (p *kvp) encode() string {
	var sb strings.Builder
	for i, k := range p.keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.values[k]))
	}
	return sb.String()
}

func readBody(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r)
	return buf.Bytes(), errors.Wrap(err, "reading response")
}
