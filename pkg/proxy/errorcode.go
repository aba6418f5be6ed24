package proxy

// Code classifies every terminal failure of a proxied prediction. The code
// is both the machine-readable "error" field of the response envelope and
// the error_code column of the usage log.
type Code string

const (
	CodeValidation       Code = "validation_error"
	CodeRateLimit        Code = "rate_limit_exceeded"
	CodePrivateRateLimit Code = "private_rate_limit"
	CodeConfiguration    Code = "configuration_error"
	CodeSigning          Code = "signing_error"
	CodeConnection       Code = "connection_error"
	CodeTimeout          Code = "timeout"
	CodeServer           Code = "server_error"
	CodeClient           Code = "client_error"
	CodeInternal         Code = "internal_error"
)

// WireName is the machine code carried in the response envelope. Timeouts
// are logged as "timeout" but reported to the caller as "request_timeout".
func (c Code) WireName() string {
	if c == CodeTimeout {
		return "request_timeout"
	}
	return string(c)
}

// HTTPStatus maps a failure code to the response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeClient:
		return 400
	case CodeRateLimit, CodePrivateRateLimit:
		return 429
	case CodeConfiguration, CodeConnection:
		return 503
	case CodeTimeout:
		return 504
	case CodeServer:
		return 502
	default:
		return 500
	}
}
