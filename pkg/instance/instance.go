package instance

import "os"

// ID names this process in lock owners and logs. TENDERFLOW_INSTANCE_ID wins,
// then the hostname, then a fixed fallback.
func ID() string {
	if id := os.Getenv("TENDERFLOW_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "tenderflow-0"
}
