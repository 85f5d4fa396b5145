package instance

import (
	"os"
	"strings"
)

const defaultID = "local"

// GetID names this process in logs. WORKER_ID wins, then the platform dyno
// name, then the host name.
func GetID() string {
	for _, key := range []string{"WORKER_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
