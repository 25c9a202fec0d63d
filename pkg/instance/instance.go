package instance

import (
	"os"
	"strings"
)

// ID identifies the running replica in logs. WORKER_ID wins over the
// platform's DYNO name; fallback is used when neither is set.
func ID(fallback string) string {
	for _, key := range []string{"WORKER_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return fallback
}
