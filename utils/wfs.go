package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/deegree/ows/geometry"
)

// WFSParams contains the serialised version of the parameters of a
// GetFeature request.
type WFSParams struct {
	Service       *string   `json:"service,omitempty"`
	Version       *string   `json:"version,omitempty"`
	Request       *string   `json:"request,omitempty"`
	TypeNames     []string  `json:"typename,omitempty"`
	BBox          []float64 `json:"bbox,omitempty"`
	MaxFeatures   *int      `json:"maxfeatures,omitempty"`
	PropertyNames []string  `json:"propertyname,omitempty"`
}

var WFSRegexpMap = map[string]string{"service": `^(?i)WFS$`,
	"request":      `^(?i)(GetFeature|Transaction)$`,
	"version":      `^\d+\.\d+\.\d+$`,
	"typename":     `^[A-Za-z_][A-Za-z0-9_.:-]*(,[A-Za-z_][A-Za-z0-9_.:-]*)*$`,
	"bbox":         `^[-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?(,[-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?){3}(,[A-Za-z0-9:]+)?$`,
	"maxfeatures":  `^[0-9]+$`,
	"propertyname": `^[A-Za-z_][A-Za-z0-9_]*(,[A-Za-z_][A-Za-z0-9_]*)*$`}

func CompileWFSRegexMap() map[string]*regexp.Regexp {
	REMap := make(map[string]*regexp.Regexp)
	for key, re := range WFSRegexpMap {
		REMap[key] = regexp.MustCompile(re)
	}

	return REMap
}

func quoteList(s string) string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strconv.Quote(strings.TrimSpace(p))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// WFSParamsChecker checks and marshals the content of the parameters
// of a WFS request into a WFSParams struct.
func WFSParamsChecker(params map[string][]string, compREMap map[string]*regexp.Regexp) (WFSParams, error) {
	var wfsParams WFSParams
	jsonFields := []string{}

	if typeNames, ok := params["typenames"]; ok {
		params["typename"] = typeNames
	}
	if count, ok := params["count"]; ok {
		params["maxfeatures"] = count
	}

	for _, key := range []string{"service", "version", "request", "typename", "bbox", "maxfeatures", "propertyname"} {
		val, ok := params[key]
		if !ok {
			continue
		}
		if !compREMap[key].MatchString(val[0]) {
			if key == "request" {
				return wfsParams, NewOWSException(OperationNotSupported, "REQUEST", "request %q is not supported", val[0])
			}
			return wfsParams, NewOWSException(InvalidParameterValue, strings.ToUpper(key), "invalid value for %s: %q", strings.ToUpper(key), val[0])
		}

		switch key {
		case "typename", "propertyname":
			jsonFields = append(jsonFields, fmt.Sprintf(`"%s":%s`, key, quoteList(val[0])))
		case "bbox":
			// a trailing CRS name is accepted and ignored; the bbox is
			// taken in the feature type's CRS
			parts := strings.Split(val[0], ",")
			env, err := geometry.ParseBBox(strings.Join(parts[:4], ","))
			if err != nil {
				return wfsParams, NewOWSException(InvalidParameterValue, "BBOX", "%v", err)
			}
			jsonFields = append(jsonFields, fmt.Sprintf(`"bbox":[%s]`, env.String()))
		case "maxfeatures":
			n, err := strconv.Atoi(val[0])
			if err != nil {
				return wfsParams, NewOWSException(InvalidParameterValue, "MAXFEATURES", "invalid value for MAXFEATURES: %q", val[0])
			}
			jsonFields = append(jsonFields, fmt.Sprintf(`"maxfeatures":%d`, n))
		default:
			jsonFields = append(jsonFields, fmt.Sprintf(`"%s":%s`, key, strconv.Quote(val[0])))
		}
	}

	jsonParams := fmt.Sprintf("{%s}", strings.Join(jsonFields, ","))
	if err := json.Unmarshal([]byte(jsonParams), &wfsParams); err != nil {
		return wfsParams, NewOWSException(InvalidParameterValue, "", "malformed request parameters: %v", err)
	}
	if wfsParams.Request != nil {
		if strings.EqualFold(*wfsParams.Request, "GetFeature") {
			*wfsParams.Request = "GetFeature"
		} else {
			*wfsParams.Request = "Transaction"
		}
	}
	return wfsParams, nil
}

// TransactionOp is one insert, update or delete of a transaction.
// Feature holds a GeoJSON feature for inserts and updates.
type TransactionOp struct {
	TypeName string          `json:"type_name"`
	ID       string          `json:"id,omitempty"`
	Feature  json.RawMessage `json:"feature,omitempty"`
}

// TransactionRequest is the JSON body of a Transaction request.
type TransactionRequest struct {
	Insert []TransactionOp `json:"insert"`
	Update []TransactionOp `json:"update"`
	Delete []TransactionOp `json:"delete"`
}

// TransactionResponse reports the outcome of a transaction.
type TransactionResponse struct {
	InsertedIDs  []string `json:"inserted_ids"`
	TotalUpdated int64    `json:"total_updated"`
	TotalDeleted int64    `json:"total_deleted"`
}

// ParseTransaction decodes and checks a transaction body.
func ParseTransaction(r io.Reader) (*TransactionRequest, error) {
	var tr TransactionRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tr); err != nil {
		return nil, NewOWSException(InvalidParameterValue, "", "malformed transaction: %v", err)
	}
	if len(tr.Insert)+len(tr.Update)+len(tr.Delete) == 0 {
		return nil, NewOWSException(MissingParameterValue, "", "transaction contains no operation")
	}

	for _, op := range tr.Insert {
		if op.TypeName == "" || len(op.Feature) == 0 {
			return nil, NewOWSException(MissingParameterValue, "insert", "insert needs a type_name and a feature")
		}
	}
	for _, op := range tr.Update {
		if op.TypeName == "" || op.ID == "" || len(op.Feature) == 0 {
			return nil, NewOWSException(MissingParameterValue, "update", "update needs a type_name, an id and a feature")
		}
	}
	for _, op := range tr.Delete {
		if op.TypeName == "" || op.ID == "" {
			return nil, NewOWSException(MissingParameterValue, "delete", "delete needs a type_name and an id")
		}
	}
	return &tr, nil
}
