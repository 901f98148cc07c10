/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielroe/pangrum/joincode"
	"github.com/danielroe/pangrum/room"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

// joinLink is the address another device opens to join the room for code.
func joinLink(cfg *Config, r *http.Request, code string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	switch proto := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto"))); proto {
	case "http", "https":
		scheme = proto
	}

	return scheme + "://" + r.Host + cfg.prefix + "/?sync=" + url.QueryEscape(code)
}

func codeParam(w http.ResponseWriter, p httprouter.Params) (string, bool) {
	code := joincode.Normalize(p.ByName("code"))
	if !joincode.Valid(code) {
		http.Error(w, "invalid join code", http.StatusBadRequest)

		return "", false
	}

	return code, true
}

func serveNewCode(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code, err := joincode.Generate()
		if err != nil {
			errs <- err
			http.Error(w, "code generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		_, err = w.Write([]byte(code + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SYNC: Issued code %s to %s", code, realIP(r))
	}
}

func serveSyncSocket(cfg *Config, m *room.Manager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code, ok := codeParam(w, p)
		if !ok {
			return
		}

		m.Serve(w, r, code, realIP(r))
	}
}

func serveSyncQR(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code, ok := codeParam(w, p)
		if !ok {
			return
		}

		png, err := qrcode.Encode(joinLink(cfg, r, code), qrcode.Medium, qrSize)
		if err != nil {
			errs <- err
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, err = w.Write(png)
		if err != nil {
			errs <- err
		}
	}
}

// registerSync sets up routes so that:
//   - $path            → a fresh join code, as plain text
//   - $path/:code/ws   → websocket for that room
//   - $path/:code/qr   → PNG QR code of the join link for that room
func registerSync(cfg *Config, path string, mux *httprouter.Router, m *room.Manager, errs chan<- error) {
	mux.GET(cfg.prefix+path, serveNewCode(cfg, errs))

	mux.GET(cfg.prefix+path+"/:code/ws", serveSyncSocket(cfg, m))

	mux.GET(cfg.prefix+path+"/:code/qr", serveSyncQR(cfg, errs))
}
