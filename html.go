/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"embed"
	"fmt"
	"html"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/logJustin/the-game-table/library"
)

const recentLogs = 10

//go:embed table/app.css table/app.js
var assets embed.FS

func serveHomePage(cfg *Config, store *library.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		games, err := store.ListGames(r.Context())
		if err != nil {
			logErr(err, "SERVE: Failed to list games for home page")
			http.Error(w, "library unavailable", http.StatusServiceUnavailable)

			return
		}

		logs, err := store.ListLogs(r.Context())
		if err != nil {
			logErr(err, "SERVE: Failed to list logs for home page")
			http.Error(w, "library unavailable", http.StatusServiceUnavailable)

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := w.Write([]byte(homePage(cfg, games, logs, startTime)))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func homePage(cfg *Config, games []library.Game, logs []library.Log, now time.Time) string {
	var b strings.Builder

	b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	b.WriteString(getFavicon())
	b.WriteString(fmt.Sprintf(`<link rel="stylesheet" href="%s/assets/table/app.css">`, cfg.prefix))
	b.WriteString(`<title>The Game Table</title></head><body><main class="home">`)
	b.WriteString(`<h1>The Game Table</h1>`)

	switch len(games) {
	case 0:
		b.WriteString(`<p>The library is empty. Open a table to add some games.</p>`)
	case 1:
		b.WriteString(`<p>1 game in the library.</p>`)
	default:
		b.WriteString(fmt.Sprintf(`<p>%d games in the library.</p>`, len(games)))
	}

	b.WriteString(fmt.Sprintf(`<p><a class="button" href="%s/table">Open a new table</a></p>`, cfg.prefix))

	b.WriteString(`<h2>Recent plays</h2>`)
	if len(logs) == 0 {
		b.WriteString(`<p class="muted">Nothing logged yet.</p>`)
	} else {
		b.WriteString(`<ul class="logs">`)
		for i, l := range logs {
			if i == recentLogs {
				break
			}
			b.WriteString(fmt.Sprintf(
				`<li><strong>%s</strong> won by %s<br><span class="muted">%s · %s · %s</span></li>`,
				html.EscapeString(l.GameName),
				html.EscapeString(l.Winner),
				html.EscapeString(library.FormatPlayers(l.Players)),
				html.EscapeString(library.FormatDuration(l.DurationMinutes)),
				html.EscapeString(library.FormatPlayed(l.PlayedAt, now)),
			))
		}
		b.WriteString(`</ul>`)
	}

	b.WriteString(`</main></body></html>`)

	return b.String()
}

func serveHealthCheck(cfg *Config, store *library.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		body := "Ok\n"
		if err := store.Ping(r.Context()); err != nil {
			logErr(err, "SERVE: Health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			body = "Unavailable\n"
		}

		_, err := w.Write([]byte(body))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveAssets(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fname := "table" + p.ByName("asset")

		data, err := assets.ReadFile(fname)
		if err != nil {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		switch strings.ToLower(filepath.Ext(fname)) {
		case ".css":
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
		case ".js":
			w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		}

		_, err = w.Write(data)
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /table/
Disallow: /api/

User-agent: GPTBot
Disallow: /

User-agent: CCBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
