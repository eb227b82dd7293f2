package audit

import (
	"strconv"
	"strings"
)

// History statuses written to the print log.
const (
	StatusSuccess       = "SUCCESS"
	StatusDenied        = "DENIED"
	StatusLimitExceeded = "LIMIT_EXCEEDED"
	StatusConnFail      = "CONN_FAIL"
	StatusRateLimited   = "RATE_LIMITED"
	// statusRelayPrefix prefixes the relay's status code, e.g. HA_ERR_500.
	statusRelayPrefix = "HA_ERR_"
)

// Failure kinds. Every non-success outcome maps to exactly one kind.
const (
	KindNone          = ""
	KindAuthDenied    = "AUTH_DENIED"
	KindLimitExceeded = "LIMIT_EXCEEDED"
	KindRateLimited   = "RATE_LIMITED"
	KindRelayRejected = "RELAY_REJECTED"
	KindConnFail      = "CONN_FAIL"
	KindLookupFail    = "LOOKUP_FAIL"
	KindUnknown       = "UNKNOWN"
)

// RelayStatus returns the history status for a non-success relay response code.
func RelayStatus(code int) string {
	return statusRelayPrefix + strconv.Itoa(code)
}

// RelayCode extracts the code from an HA_ERR_<code> status. ok is false for other statuses.
func RelayCode(status string) (int, bool) {
	if !strings.HasPrefix(status, statusRelayPrefix) {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimPrefix(status, statusRelayPrefix))
	if err != nil {
		return 0, false
	}
	return code, true
}

// KindOf maps a history status to its failure kind. SUCCESS maps to KindNone.
func KindOf(status string) string {
	switch status {
	case StatusSuccess:
		return KindNone
	case StatusDenied:
		return KindAuthDenied
	case StatusLimitExceeded:
		return KindLimitExceeded
	case StatusRateLimited:
		return KindRateLimited
	case StatusConnFail:
		return KindConnFail
	}
	if _, ok := RelayCode(status); ok {
		return KindRelayRejected
	}
	return KindUnknown
}
