package wmsclient

import (
	"bytes"
	"context"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/deegree/ows/geometry"
	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
)

const gmlInfoFormat = "application/vnd.ogc.gml"

type FeatureInfoRequest struct {
	QueryLayers    []string
	Width          int
	Height         int
	X, Y           int
	BBox           geometry.Envelope
	SRS            string
	FeatureCount   int
	HardParameters map[string]string
}

type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FeatureInfo is one feature of a GetFeatureInfo response.
// Properties keep the order of the response.
type FeatureInfo struct {
	Layer      string     `json:"layer"`
	ID         string     `json:"id"`
	Properties []Property `json:"properties"`
}

// PropertyMap returns the properties keyed by name.
func (f *FeatureInfo) PropertyMap() map[string]interface{} {
	m := make(map[string]interface{}, len(f.Properties))
	for _, p := range f.Properties {
		m[p.Name] = p.Value
	}
	return m
}

// GetFeatureInfo queries the features at pixel (X, Y) of a map.
// The GML response of the server is read, as are the responses of
// servers answering in the ESRI and myWMS formats.
func (c *Client) GetFeatureInfo(ctx context.Context, req *FeatureInfoRequest) ([]*FeatureInfo, error) {
	addr := c.Address(GetFeatureInfo, true)
	if addr == "" {
		return nil, errors.New("server advertises no GetFeatureInfo URL")
	}
	format := ""
	if formats := c.Formats(GetMap); len(formats) > 0 {
		format = formats[0]
	}
	layers := strings.Join(req.QueryLayers, ",")
	count := req.FeatureCount
	if count <= 0 {
		count = 1
	}

	params := newKVP()
	params.set("request", "GetFeatureInfo")
	params.set("version", "1.1.1")
	params.set("service", "WMS")
	params.set("layers", layers)
	params.set("query_layers", layers)
	params.set("styles", "")
	params.set("width", strconv.Itoa(req.Width))
	params.set("height", strconv.Itoa(req.Height))
	params.set("bbox", req.BBox.String())
	params.set("srs", req.SRS)
	params.set("format", format)
	params.set("info_format", gmlInfoFormat)
	params.set("x", strconv.Itoa(req.X))
	params.set("y", strconv.Itoa(req.Y))
	params.set("feature_count", strconv.Itoa(count))
	params.override(req.HardParameters)

	resp, err := c.get(ctx, withQuery(addr, params.encode()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), exceptionContentType) {
		return nil, &ServiceException{Message: exceptionText(body)}
	}
	return ParseFeatureInfo(body)
}

// xmlNode is a generic element tree.
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

func (n *xmlNode) attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// ParseFeatureInfo reads a GetFeatureInfo response.
func ParseFeatureInfo(body []byte) ([]*FeatureInfo, error) {
	var root xmlNode
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Strict = false
	if err := dec.Decode(&root); err != nil {
		return nil, errors.Wrap(err, "decoding feature info")
	}

	switch {
	case root.XMLName.Space == "" && root.XMLName.Local == "FeatureInfoResponse":
		return readESRI(&root), nil
	case root.XMLName.Space == "" && root.XMLName.Local == "featureInfo":
		return readMyWMS(&root), nil
	case root.XMLName.Local == "ServiceExceptionReport":
		return nil, &ServiceException{Message: exceptionText(body)}
	}
	return readGML2(&root), nil
}

// readESRI reads FIELDS elements whose attributes are the feature
// properties, qualified with the table name.
func readESRI(root *xmlNode) []*FeatureInfo {
	var feats []*FeatureInfo
	for _, n := range root.Nodes {
		if n.XMLName.Local != "FIELDS" {
			continue
		}
		f := &FeatureInfo{Layer: "feature", ID: "esri_" + strconv.Itoa(len(feats)+1)}
		for _, a := range n.Attrs {
			name := a.Name.Local
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
			f.Properties = append(f.Properties, Property{Name: name, Value: a.Value})
		}
		feats = append(feats, f)
	}
	return feats
}

func readMyWMS(root *xmlNode) []*FeatureInfo {
	var feats []*FeatureInfo
	for _, layer := range root.Nodes {
		if layer.XMLName.Local != "query_layer" {
			continue
		}
		name := layer.attr("name")
		count := 0
		for _, obj := range layer.Nodes {
			if obj.XMLName.Local != "object" {
				continue
			}
			count++
			f := &FeatureInfo{Layer: name, ID: name + "_" + strconv.Itoa(count)}
			for _, p := range obj.Nodes {
				f.Properties = append(f.Properties, Property{Name: p.XMLName.Local, Value: strings.TrimSpace(p.Text)})
			}
			feats = append(feats, f)
		}
	}
	return feats
}

// readGML2 reads the simple properties of the members of a GML2
// feature collection. Geometry properties are skipped.
func readGML2(root *xmlNode) []*FeatureInfo {
	var feats []*FeatureInfo
	for _, member := range root.Nodes {
		if member.XMLName.Local != "featureMember" {
			continue
		}
		for _, feat := range member.Nodes {
			f := &FeatureInfo{Layer: feat.XMLName.Local, ID: feat.attr("fid")}
			if f.ID == "" {
				f.ID = feat.attr("id")
			}
			for _, p := range feat.Nodes {
				if len(p.Nodes) > 0 || p.XMLName.Local == "boundedBy" {
					continue
				}
				f.Properties = append(f.Properties, Property{Name: p.XMLName.Local, Value: strings.TrimSpace(p.Text)})
			}
			feats = append(feats, f)
		}
	}
	return feats
}
