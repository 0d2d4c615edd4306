package httpHelpers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

type Timings map[string]time.Duration

// WriteTimings sets a Server-Timing header; must be called before the body is written
func WriteTimings(w http.ResponseWriter, timings Timings) {
	timingEntries := make([]string, 0, len(timings))
	for k, v := range timings {
		timingEntries = append(timingEntries, fmt.Sprintf("%s;dur=%.2f", k, v.Seconds()*1000.0))
	}
	sort.Strings(timingEntries)
	w.Header().Set("Server-Timing", strings.Join(timingEntries, ","))
}
