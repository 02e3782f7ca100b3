package wmsclient

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/deegree/ows/geometry"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
)

type Operation string

const (
	GetCapabilities Operation = "GetCapabilities"
	GetMap          Operation = "GetMap"
	GetFeatureInfo  Operation = "GetFeatureInfo"
)

const capabilitiesRoot = "WMT_MS_Capabilities"

type onlineResource struct {
	Href string `xml:"http://www.w3.org/1999/xlink href,attr"`
}

type httpMethods struct {
	Get  *onlineResource `xml:"Get>OnlineResource"`
	Post *onlineResource `xml:"Post>OnlineResource"`
}

type operationType struct {
	Formats []string     `xml:"Format"`
	HTTP    *httpMethods `xml:"DCPType>HTTP"`
}

type bbox struct {
	SRS  string `xml:"SRS,attr"`
	MinX string `xml:"minx,attr"`
	MinY string `xml:"miny,attr"`
	MaxX string `xml:"maxx,attr"`
	MaxY string `xml:"maxy,attr"`
}

func (b *bbox) envelope() (geometry.Envelope, error) {
	var vals [4]float64
	for i, s := range []string{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return geometry.Envelope{}, errors.Wrapf(err, "invalid numeric value %q", s)
		}
		vals[i] = v
	}
	return geometry.Envelope{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}, nil
}

// Layer is a layer element of a capabilities document. Parent
// is nil for the root layer.
type Layer struct {
	Name              string   `xml:"Name"`
	Title             string   `xml:"Title"`
	Abstract          string   `xml:"Abstract"`
	Queryable         string   `xml:"queryable,attr"`
	SRS               []string `xml:"SRS"`
	LatLonBoundingBox *bbox    `xml:"LatLonBoundingBox"`
	BoundingBoxes     []bbox   `xml:"BoundingBox"`
	Layers            []*Layer `xml:"Layer"`

	Parent *Layer `xml:"-"`
}

// Capabilities is a parsed WMS 1.1.1 capabilities document.
type Capabilities struct {
	XMLName        xml.Name `xml:"WMT_MS_Capabilities"`
	Version        string   `xml:"version,attr"`
	UpdateSequence string   `xml:"updateSequence,attr"`
	Title          string   `xml:"Service>Title"`
	Abstract       string   `xml:"Service>Abstract"`

	Request struct {
		GetCapabilities *operationType `xml:"GetCapabilities"`
		GetMap          *operationType `xml:"GetMap"`
		GetFeatureInfo  *operationType `xml:"GetFeatureInfo"`
	} `xml:"Capability>Request"`
	Root *Layer `xml:"Capability>Layer"`

	named map[string]*Layer
	order []string
}

// ParseCapabilities decodes and checks a WMS 1.1.1 capabilities
// document. Documents in other versions or of other services are
// rejected.
func ParseCapabilities(r io.Reader) (*Capabilities, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading capabilities")
	}
	root, version, err := rootElement(raw)
	if err != nil {
		return nil, err
	}
	if version != "1.1.1" {
		return nil, errors.Errorf("capabilities version is %q, expected 1.1.1", version)
	}
	if root != capabilitiesRoot {
		return nil, errors.Errorf("root element is %s, expected %s", root, capabilitiesRoot)
	}

	caps := &Capabilities{}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	if err := dec.Decode(caps); err != nil {
		return nil, errors.Wrap(err, "decoding capabilities")
	}
	caps.index()
	return caps, nil
}

func rootElement(raw []byte) (string, string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", "", errors.Wrap(err, "no root element in capabilities")
		}
		if se, ok := tok.(xml.StartElement); ok {
			version := ""
			for _, a := range se.Attr {
				if a.Name.Local == "version" {
					version = a.Value
				}
			}
			return se.Name.Local, version, nil
		}
	}
}

func (c *Capabilities) index() {
	c.named = make(map[string]*Layer)
	c.order = nil
	var walk func(l, parent *Layer)
	walk = func(l, parent *Layer) {
		l.Parent = parent
		if l.Name != "" {
			if _, dup := c.named[l.Name]; !dup {
				c.named[l.Name] = l
			}
			c.order = append(c.order, l.Name)
		}
		for _, child := range l.Layers {
			walk(child, l)
		}
	}
	if c.Root != nil {
		walk(c.Root, nil)
	}
}

func (c *Capabilities) operation(op Operation) *operationType {
	switch op {
	case GetCapabilities:
		return c.Request.GetCapabilities
	case GetMap:
		return c.Request.GetMap
	case GetFeatureInfo:
		return c.Request.GetFeatureInfo
	}
	return nil
}

func (c *Capabilities) IsOperationSupported(op Operation) bool {
	return c.operation(op) != nil
}

// Formats returns the formats advertised for op, nil when op is
// not supported.
func (c *Capabilities) Formats(op Operation) []string {
	o := c.operation(op)
	if o == nil {
		return nil
	}
	formats := make([]string, 0, len(o.Formats))
	for _, f := range o.Formats {
		formats = append(formats, strings.TrimSpace(f))
	}
	return formats
}

// Address returns the online resource of op for HTTP GET or POST,
// empty when not advertised.
func (c *Capabilities) Address(op Operation, get bool) string {
	o := c.operation(op)
	if o == nil || o.HTTP == nil {
		return ""
	}
	res := o.HTTP.Post
	if get {
		res = o.HTTP.Get
	}
	if res == nil {
		return ""
	}
	return res.Href
}

// NamedLayers lists the names of all named layers in document order.
func (c *Capabilities) NamedLayers() []string {
	return append([]string(nil), c.order...)
}

func (c *Capabilities) HasLayer(name string) bool {
	_, ok := c.named[name]
	return ok
}

func (c *Capabilities) Layer(name string) (*Layer, bool) {
	l, ok := c.named[name]
	return l, ok
}

// CoordinateSystems returns the SRS of a layer including the ones
// inherited from its parents, without duplicates.
func (c *Capabilities) CoordinateSystems(name string) []string {
	l, ok := c.named[name]
	if !ok {
		return []string{}
	}
	seen := make(map[string]bool)
	var list []string
	for ; l != nil; l = l.Parent {
		for _, srs := range l.SRS {
			// some servers list several codes in one element
			for _, s := range strings.Fields(srs) {
				if !seen[s] {
					seen[s] = true
					list = append(list, s)
				}
			}
		}
	}
	return list
}

// LatLonBoundingBox returns the geographic extent of a layer,
// inherited from the nearest parent declaring one.
func (c *Capabilities) LatLonBoundingBox(name string) (geometry.Envelope, bool) {
	for l := c.named[name]; l != nil; l = l.Parent {
		if l.LatLonBoundingBox == nil {
			continue
		}
		env, err := l.LatLonBoundingBox.envelope()
		if err != nil {
			continue
		}
		return env, true
	}
	return geometry.EmptyEnvelope(), false
}

// BoundingBox returns the extent of a layer in srs, inherited from
// the nearest parent declaring one.
func (c *Capabilities) BoundingBox(srs, name string) (geometry.Envelope, bool) {
	for l := c.named[name]; l != nil; l = l.Parent {
		for i := range l.BoundingBoxes {
			b := &l.BoundingBoxes[i]
			if b.SRS != srs {
				continue
			}
			if env, err := b.envelope(); err == nil {
				return env, true
			}
		}
	}
	return geometry.EmptyEnvelope(), false
}

// LatLonBoundingBoxes merges the geographic extents of layers.
func (c *Capabilities) LatLonBoundingBoxes(names []string) (geometry.Envelope, bool) {
	return c.merged(names, c.LatLonBoundingBox)
}

// BoundingBoxes merges the extents of layers in srs.
func (c *Capabilities) BoundingBoxes(srs string, names []string) (geometry.Envelope, bool) {
	return c.merged(names, func(name string) (geometry.Envelope, bool) {
		return c.BoundingBox(srs, name)
	})
}

func (c *Capabilities) merged(names []string, get func(string) (geometry.Envelope, bool)) (geometry.Envelope, bool) {
	res := geometry.EmptyEnvelope()
	found := false
	for _, name := range names {
		if env, ok := get(name); ok {
			res = res.Merge(env)
			found = true
		}
	}
	return res, found
}
