/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// logRequests records one line per request once the handler returns. For
// websocket upgrades that is when the device disconnects.
func logRequests(cfg *Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		logf(cfg, "SERVE: %s %s %d (%s) to %s in %s",
			r.Method,
			r.URL.Path,
			m.Code,
			humanReadableSize(m.Written),
			realIP(r),
			m.Duration.Round(time.Microsecond),
		)
	})
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}
