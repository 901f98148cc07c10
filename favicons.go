/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

const favicon = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100">` +
	`<polygon points="50,4 90,27 90,73 50,96 10,73 10,27" fill="#f5c518"/>` +
	`<text x="50" y="66" font-family="sans-serif" font-size="48" font-weight="bold" text-anchor="middle" fill="#1a1a1a">P</text>` +
	`</svg>`

func getFavicon(cfg *Config) string {
	return `<link rel="icon" type="image/svg+xml" href="` + cfg.prefix + `/favicon.svg">
	<meta name="theme-color" content="#f5c518">`
}

func serveFavicon(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Header().Set("Expires", time.Now().Add(24*time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Content-Length", strconv.Itoa(len(favicon)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(favicon))
		if err != nil {
			errs <- err
		}
	}
}
