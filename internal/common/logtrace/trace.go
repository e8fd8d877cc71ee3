package logtrace

import "os"

// IsTraceEnabled reports whether verbose startup tracing is on. Controlled
// by the MERCHANTRY_TRACE environment variable.
func IsTraceEnabled() bool {
	return os.Getenv("MERCHANTRY_TRACE") != ""
}
