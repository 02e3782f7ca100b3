package utils

import (
	"encoding/xml"
	"fmt"
	"net/http"
)

// OGC exception codes.
const (
	InvalidParameterValue    = "InvalidParameterValue"
	MissingParameterValue    = "MissingParameterValue"
	OperationNotSupported    = "OperationNotSupported"
	VersionNegotiationFailed = "VersionNegotiationFailed"
	CoverageNotDefined       = "CoverageNotDefined"
	LayerNotDefined          = "LayerNotDefined"
	InvalidFormat            = "InvalidFormat"
	InvalidCRS               = "InvalidCRS"
	CurrentUpdateSequence    = "CurrentUpdateSequence"
	InvalidUpdateSequence    = "InvalidUpdateSequence"
	NoApplicableCode         = "NoApplicableCode"
)

// OWSException is an error reported to clients as a
// ServiceExceptionReport.
type OWSException struct {
	Code    string
	Locator string
	Message string
}

func NewOWSException(code, locator, format string, args ...interface{}) *OWSException {
	return &OWSException{Code: code, Locator: locator, Message: fmt.Sprintf(format, args...)}
}

func (e *OWSException) Error() string {
	if e.Locator != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Locator, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus maps the exception code to a response status.
func (e *OWSException) HTTPStatus() int {
	switch e.Code {
	case NoApplicableCode:
		return http.StatusInternalServerError
	case CoverageNotDefined, LayerNotDefined:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

type serviceExceptionXML struct {
	Code    string `xml:"code,attr,omitempty"`
	Locator string `xml:"locator,attr,omitempty"`
	Text    string `xml:",chardata"`
}

type serviceExceptionReport struct {
	XMLName    xml.Name              `xml:"ServiceExceptionReport"`
	Version    string                `xml:"version,attr"`
	Xmlns      string                `xml:"xmlns,attr,omitempty"`
	Exceptions []serviceExceptionXML `xml:"ServiceException"`
}

// WriteServiceException writes err as a ServiceExceptionReport of
// the given version. Errors other than *OWSException are reported
// as NoApplicableCode. It returns the HTTP status written.
func WriteServiceException(w http.ResponseWriter, version string, err error) int {
	e, ok := err.(*OWSException)
	if !ok {
		e = &OWSException{Code: NoApplicableCode, Message: err.Error()}
	}
	if version == "" {
		version = "1.2.0"
	}

	report := serviceExceptionReport{
		Version:    version,
		Exceptions: []serviceExceptionXML{{Code: e.Code, Locator: e.Locator, Text: e.Message}},
	}
	contentType := "application/vnd.ogc.se_xml"
	if version == "1.3.0" {
		report.Xmlns = "http://www.opengis.net/ogc"
		contentType = "text/xml"
	}

	status := e.HTTPStatus()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	fmt.Fprint(w, xml.Header)
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	enc.Encode(report)
	return status
}
