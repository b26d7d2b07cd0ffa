package httpretry

// Classification is the HTTP Retry Engine's own status classification
// and is more granular than the error taxonomy
// providers surface to the rest of the system. Provider
// adapters push a Classification (or a raw status code) through
// their own narrower mapping table to reach a final
// orcherr.Code.
type Classification string

const (
	BadRequest         Classification = "bad_request"
	Unauthorized       Classification = "unauthorized"
	Forbidden          Classification = "forbidden"
	NotFound           Classification = "not_found"
	RateLimited        Classification = "rate_limited"
	ServerErrorStatus  Classification = "server_error"
	BadGateway         Classification = "bad_gateway"
	ServiceUnavailStat Classification = "service_unavailable"
	NetworkErrorStatus Classification = "network_error"
	UnclassifiedStatus Classification = "unclassified"
)

// ClassifyStatus maps an HTTP status code to its Classification.
func ClassifyStatus(status int) Classification {
	switch status {
	case 400:
		return BadRequest
	case 401:
		return Unauthorized
	case 403:
		return Forbidden
	case 404:
		return NotFound
	case 429:
		return RateLimited
	case 500:
		return ServerErrorStatus
	case 502:
		return BadGateway
	case 503:
		return ServiceUnavailStat
	default:
		return UnclassifiedStatus
	}
}

// StatusOf extracts the raw HTTP status code that produced err, or 0
// if err did not originate from an HTTP response (e.g. a transport
// failure classified as NetworkErrorStatus).
func StatusOf(err error) int {
	if se, ok := err.(*statusError); ok {
		return se.status
	}
	return 0
}
