package main

import (
	"context"
	"crypto/rand"
	_ "embed"
	"net/http"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/logJustin/the-game-table/library"
)

const (
	tableIDLength = 8
	tableIDChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// TableManager holds a set of hubs keyed by table ID, so each $path/$tableid
// is its own isolated session. All tables share one library.
type TableManager struct {
	cfg   *Config
	store *library.Store

	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newTableManager(ctx context.Context, cfg *Config, store *library.Store) *TableManager {
	tm := &TableManager{
		cfg:         cfg,
		store:       store,
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
	}
	if tm.idleTimeout > 0 {
		go tm.reaperLoop(ctx)
	}
	return tm
}

func (tm *TableManager) getHub(tableID string) *Hub {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if hub, ok := tm.hubs[tableID]; ok {
		return hub
	}

	hub := newHub(tm.cfg, tableID, tm.store, tm)
	tm.hubs[tableID] = hub
	go hub.run()

	logf(tm.cfg, "TABLES: Opened table %s", tableID)

	return hub
}

func (tm *TableManager) snapshot() []*Hub {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	hubs := make([]*Hub, 0, len(tm.hubs))
	for _, hub := range tm.hubs {
		hubs = append(hubs, hub)
	}
	return hubs
}

// libraryChanged reloads the library and hands the new list to every open
// table.
func (tm *TableManager) libraryChanged(ctx context.Context) error {
	games, err := tm.store.ListGames(ctx)
	if err != nil {
		return err
	}

	for _, hub := range tm.snapshot() {
		hub.post(func() {
			hub.refresh(games)
		})
	}

	return nil
}

// newTableID generates a crypto-random table ID and ensures it doesn't
// collide with open tables.
func (tm *TableManager) newTableID() string {
	for {
		buf := make([]byte, tableIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, tableIDLength)
		for i := range out {
			out[i] = tableIDChars[int(buf[i])%len(tableIDChars)]
		}
		id := string(out)

		tm.mu.Lock()
		_, exists := tm.hubs[id]
		tm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

func validTableID(id string) bool {
	if len(id) != tableIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// reap closes every hub idle for longer than idleTimeout.
func (tm *TableManager) reap(now time.Time) int {
	cutoff := now.Add(-tm.idleTimeout)
	reaped := 0

	tm.mu.Lock()
	for id, hub := range tm.hubs {
		if hub.idleSince().Before(cutoff) {
			delete(tm.hubs, id)
			hub.close()
			reaped++
		}
	}
	tm.mu.Unlock()

	return reaped
}

// reaperLoop periodically removes tables that have been idle longer than
// idleTimeout.
func (tm *TableManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(tm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := tm.reap(now); n > 0 {
				logf(tm.cfg, "TABLES: Reaped %d idle tables", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// closeAll closes every table and waits for their loops to exit.
func (tm *TableManager) closeAll() {
	tm.mu.Lock()
	hubs := tm.hubs
	tm.hubs = make(map[string]*Hub)
	tm.mu.Unlock()

	for _, hub := range hubs {
		hub.close()
	}
	for _, hub := range hubs {
		<-hub.stopped
	}
}

//go:embed table/index.html
var indexHTML []byte

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validTableID(ps.ByName("tableid")) {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		securityHeaders(cfg, w)

		_ = getOrSetPlayerID(w, r)

		_, _ = w.Write(indexHTML)
	}
}

// redirectNewTable handles GET /path by generating a new random table ID
// (with server-side collision detection) and redirecting to /path/:tableid.
func redirectNewTable(cfg *Config, path string, tm *TableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		tableID := tm.newTableID()
		logf(cfg, "TABLES: Created table %s%s/%s", cfg.prefix, path, tableID)
		http.Redirect(w, r, cfg.prefix+path+"/"+tableID, http.StatusTemporaryRedirect)
	}
}

// registerTable sets up routes so that:
//   - $path                  → redirects to new random table (8-char ID)
//   - $path/:tableid         → HTML client
//   - $path/:tableid/ws      → WebSocket for that table
//   - $path/:tableid/qr      → PNG QR code for that table URL
func registerTable(cfg *Config, path string, mux *httprouter.Router, tm *TableManager, errs chan<- error) {
	mux.GET(cfg.prefix+path, redirectNewTable(cfg, path, tm))

	mux.GET(cfg.prefix+path+"/:tableid", getIndexHandler(cfg))

	mux.GET(cfg.prefix+"/assets/table/*asset", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+path+"/:tableid/ws", serveWSForManager(cfg, tm))

	mux.GET(cfg.prefix+path+"/:tableid/qr", qrHandler(cfg))
}
