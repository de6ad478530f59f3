package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies upstream failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindMethodNotAllowed
	KindUnsupportedMediaType
	KindUnprocessable
	KindRateLimited
	KindServerError
	KindBadGateway
	KindServiceUnavailable
	KindGatewayTimeout
	KindNetworkFailure
	KindUnexpectedStatus
	KindMalformedResponse
)

var kindNames = map[ErrorKind]string{
	KindUnknown:              "unknown",
	KindBadRequest:           "bad_request",
	KindUnauthorized:         "unauthorized",
	KindForbidden:            "forbidden",
	KindNotFound:             "not_found",
	KindMethodNotAllowed:     "method_not_allowed",
	KindUnsupportedMediaType: "unsupported_media_type",
	KindUnprocessable:        "unprocessable",
	KindRateLimited:          "rate_limited",
	KindServerError:          "server_error",
	KindBadGateway:           "bad_gateway",
	KindServiceUnavailable:   "service_unavailable",
	KindGatewayTimeout:       "gateway_timeout",
	KindNetworkFailure:       "network_failure",
	KindUnexpectedStatus:     "unexpected_status",
	KindMalformedResponse:    "malformed_response",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindForStatus maps an upstream status code to its kind.
func KindForStatus(status int) ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusMethodNotAllowed:
		return KindMethodNotAllowed
	case http.StatusUnsupportedMediaType:
		return KindUnsupportedMediaType
	case http.StatusUnprocessableEntity:
		return KindUnprocessable
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusInternalServerError:
		return KindServerError
	case http.StatusBadGateway:
		return KindBadGateway
	case http.StatusServiceUnavailable:
		return KindServiceUnavailable
	case http.StatusGatewayTimeout:
		return KindGatewayTimeout
	default:
		return KindUnexpectedStatus
	}
}

// UpstreamError is the typed failure returned by the upstream client and the
// coordinator. Local is set when the rate gate blocked the call before any
// request was sent.
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	Endpoint   string
	Local      bool
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Kind.String()
	if e.Endpoint != "" {
		msg = e.Endpoint + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Local {
		msg += " (blocked locally)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewLocalRateLimited returns the error used when the gate blocks a call.
func NewLocalRateLimited(endpoint string) *UpstreamError {
	return &UpstreamError{Kind: KindRateLimited, Endpoint: endpoint, Local: true}
}

// KindOf extracts the error kind, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
