package errutil

// CoreStatus is a transport-agnostic error classification. Services return
// these and the edges (HTTP handlers) map them to wire status codes.
type CoreStatus string

const (
	StatusBadRequest       CoreStatus = "bad_request"
	StatusValidationFailed CoreStatus = "validation_failed"
	StatusUnauthorized     CoreStatus = "unauthorized"
	StatusForbidden        CoreStatus = "forbidden"
	StatusNotFound         CoreStatus = "not_found"
	StatusConflict         CoreStatus = "conflict"
	StatusTimeout          CoreStatus = "timeout"
	StatusTooManyRequests  CoreStatus = "too_many_requests"
	StatusInternal         CoreStatus = "internal"
	StatusUnknown          CoreStatus = "unknown"
)

// HTTPCode converts the CoreStatus to its closest HTTP status code equivalent.
func (s CoreStatus) HTTPCode() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed:
		return 400
	case StatusUnauthorized:
		return 401
	case StatusForbidden:
		return 403
	case StatusNotFound:
		return 404
	case StatusConflict:
		return 409
	case StatusTimeout:
		return 408
	case StatusTooManyRequests:
		return 429
	case StatusInternal, StatusUnknown:
		return 500
	default:
		return 500
	}
}
