package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Classifier maps a raw vendor error to a failure Kind. Vendor adapters
// supply their own classifier; ClassifyMessage is the shared heuristic
// fallback used when the vendor gives no structured status.
type Classifier func(err error) Kind

// transientMarkers are substrings that identify retryable failures in
// unstructured error messages.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection",
	"rate limit",
	"too many requests",
	"429",
	"503",
	"502",
	"throttled",
	"overloaded",
	"temporarily unavailable",
	"service unavailable",
	"server error",
	"eof",
}

// ClassifyMessage applies the common string heuristics.
func ClassifyMessage(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "authentication"),
		strings.Contains(msg, "401"):
		return KindAuthFailed
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "throttled"),
		strings.Contains(msg, "429"):
		return KindRateLimit
	case strings.Contains(msg, "context length"),
		strings.Contains(msg, "maximum context"),
		strings.Contains(msg, "too large"),
		strings.Contains(msg, "413"):
		return KindSizeExceeded
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline") {
				return KindTimeout
			}
			if strings.Contains(msg, "connection") || msg == "eof" || strings.HasSuffix(msg, ": eof") {
				return KindNetwork
			}
			if strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "throttled") {
				return KindRateLimit
			}
			return KindUnavailable
		}
	}
	return KindUnknown
}

// classifyStatus maps an HTTP status code to a Kind; 0 means no status.
func classifyStatus(status int) (Kind, bool) {
	switch {
	case status == 0:
		return KindUnknown, false
	case status == 401 || status == 403:
		return KindAuthFailed, true
	case status == 408:
		return KindTimeout, true
	case status == 413:
		return KindSizeExceeded, true
	case status == 429:
		return KindRateLimit, true
	case status >= 500:
		return KindUnavailable, true
	case status >= 400:
		return KindInvalidRequest, true
	default:
		return KindUnknown, false
	}
}
