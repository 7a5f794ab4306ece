// Game Table
//
// Players open a shared table, curate the board game library together, spin
// a wheel to pick what to play next and log the result once they're done.
//
// Features:
// - WebSockets per table ID: /path/:tableid and /path/:tableid/ws
// - Players identified by cookie (playerID) and joined under a unique username
// - The wheel runs on the server; every client sees the same frames and result
// - A spin always lands on a game from the list as it was when the spin began
// - Library changes from any table (or the JSON API) reach every open table
// - The current pick is kept per table, and cleared once a play is logged
// - Tables auto-reaped after configurable idle timeout
// - In-browser QR button to share the current table, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/logJustin/the-game-table/library"
	"github.com/logJustin/the-game-table/wheel"
)

const (
	inboxSize    = 64
	storeTimeout = 5 * time.Second
)

// Player holds the data we store server-side
type Player struct {
	PlayerID string
	Username string
}

// Messages coming from clients
type ClientMessage struct {
	Type            string   `json:"type"`                       // "join", "spin", "add_game", "remove_game", "clear_games", "clear_selection", "log_game"
	Username        string   `json:"username,omitempty"`         // join
	GameName        string   `json:"game_name,omitempty"`        // add_game / log_game
	GameImage       string   `json:"game_image,omitempty"`       // add_game
	BGGID           string   `json:"bgg_id,omitempty"`           // add_game
	GameID          string   `json:"game_id,omitempty"`          // remove_game
	Winner          string   `json:"winner,omitempty"`           // log_game
	Players         []string `json:"players,omitempty"`          // log_game
	DurationMinutes *int     `json:"duration_minutes,omitempty"` // log_game
	Notes           string   `json:"notes,omitempty"`            // log_game
}

// SessionInfoMessage is sent immediately on connect, and again after a
// successful join.
type SessionInfoMessage struct {
	Type         string  `json:"type"` // "session_info"
	TableID      string  `json:"table_id"`
	IsExisting   bool    `json:"is_existing"`
	Username     string  `json:"username,omitempty"`
	PointerAngle float64 `json:"pointer_angle"`
}

type PlayersMessage struct {
	Type    string   `json:"type"` // "players"
	Players []string `json:"players"`
}

type GamesMessage struct {
	Type  string         `json:"type"` // "games"
	Games []library.Game `json:"games"`
}

// WheelMessage carries one animation frame.
type WheelMessage struct {
	Type     string  `json:"type"` // "wheel"
	Rotation float64 `json:"rotation"`
	Progress float64 `json:"progress"`
	Spinning bool    `json:"spinning"`
}

// SpinStartedMessage lists the games the spin will resolve against, which
// clients should draw until it lands.
type SpinStartedMessage struct {
	Type   string         `json:"type"` // "spin_started"
	SpunBy string         `json:"spun_by"`
	Games  []library.Game `json:"games"`
}

// SelectionMessage announces the current pick. Game is nil once cleared.
type SelectionMessage struct {
	Type       string        `json:"type"` // "selection"
	Game       *library.Game `json:"game"`
	SpunBy     string        `json:"spun_by,omitempty"`
	SelectedAt *time.Time    `json:"selected_at,omitempty"`
}

type LoggedMessage struct {
	Type string      `json:"type"` // "logged"
	Log  library.Log `json:"log"`
}

// Sent to a single client when there's a username/game name collision
type CollisionMessage struct {
	Type    string `json:"type"`    // "collision"
	Field   string `json:"field"`   // "username" or "game_name"
	Message string `json:"message"` // user-facing text
}

// SimpleMessage is for generic notifications ("error")
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type command struct {
	client *Client
	msg    ClientMessage
}

// Hub is one table. Its run loop is the only goroutine that touches
// clients, players, games, selection and the wheel; everything else posts
// work to it through the inbox.
type Hub struct {
	id     string
	cfg    *Config
	store  *library.Store
	tables *TableManager

	clients   map[*Client]bool
	players   []Player
	games     []library.Game
	selection *library.Selection
	spinner   string
	wheel     *wheel.Wheel

	register chan *Client
	unreg    chan *Client
	commands chan command
	inbox    chan func()
	writes   chan func(ctx context.Context)
	quit     chan struct{}
	stopped  chan struct{}
	once     sync.Once

	mu         sync.RWMutex
	createdAt  time.Time
	lastActive time.Time
}

func newHub(cfg *Config, tableID string, store *library.Store, tables *TableManager) *Hub {
	now := time.Now()

	h := &Hub{
		id:         tableID,
		cfg:        cfg,
		store:      store,
		tables:     tables,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		inbox:      make(chan func(), inboxSize),
		writes:     make(chan func(ctx context.Context), inboxSize),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}

	opts := cfg.wheelOptions()
	opts.Scheduler = wheel.NewFrameScheduler(cfg.frameInterval, h.post)
	opts.OnFrame = h.onFrame
	opts.OnResolved = h.onResolved
	h.wheel = wheel.New(opts)

	return h
}

// post queues fn to run on the hub loop. It reports false once the hub has
// been closed.
func (h *Hub) post(fn func()) bool {
	select {
	case <-h.quit:
		return false
	default:
	}

	select {
	case h.inbox <- fn:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) close() {
	h.once.Do(func() {
		close(h.quit)
	})
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

func (h *Hub) run() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writer()
	}()

	defer close(h.stopped)
	defer func() { <-writerDone }()
	defer h.shutdown()

	h.load()

	for {
		select {
		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unreg:
			h.handleUnregister(c)

		case cmd := <-h.commands:
			h.handleCommand(cmd)

		case fn := <-h.inbox:
			fn()

		case <-h.quit:
			return
		}
	}
}

// load fills the hub from the store before it accepts any client.
func (h *Hub) load() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	games, err := h.store.ListGames(ctx)
	if err != nil {
		logErr(err, "TABLES: Failed to load library for %s", h.id)
	} else {
		h.setGames(games)
	}

	sel, err := h.store.Selection(ctx, h.id)
	switch {
	case err == nil:
		h.selection = &sel
	case !errors.Is(err, library.ErrNotFound):
		logErr(err, "TABLES: Failed to load selection for %s", h.id)
	}
}

func (h *Hub) shutdown() {
	h.wheel.Close()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}

	logf(h.cfg, "TABLES: Closed table %s after %s", h.id, time.Since(h.createdAt).Round(time.Second))
}

// persist queues a store write. Writes run one at a time, in the order they
// were queued.
func (h *Hub) persist(action string, fn func(ctx context.Context) error) {
	job := func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			logErr(err, "TABLES: Failed to %s for %s", action, h.id)
		}
	}

	select {
	case h.writes <- job:
	default:
		logf(h.cfg, "TABLES: Write queue for %s is full", h.id)
		go h.write(job)
	}
}

// writer runs queued writes until the hub closes, then flushes what is left.
func (h *Hub) writer() {
	for {
		select {
		case job := <-h.writes:
			h.write(job)
		case <-h.quit:
			for {
				select {
				case job := <-h.writes:
					h.write(job)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) write(job func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	job(ctx)
}

func (h *Hub) handleRegister(c *Client) {
	h.touch()

	h.clients[c] = true

	p := h.player(c.playerID)

	info := SessionInfoMessage{
		Type:         "session_info",
		TableID:      h.id,
		IsExisting:   p != nil,
		PointerAngle: h.wheel.PointerAngle(),
	}
	if p != nil {
		info.Username = p.Username
	}

	h.sendTo(c, info)
	h.sendTo(c, h.playersMessage())
	h.sendTo(c, GamesMessage{Type: "games", Games: h.games})

	if h.wheel.Phase() == wheel.Spinning {
		h.sendTo(c, SpinStartedMessage{
			Type:   "spin_started",
			SpunBy: h.spinner,
			Games:  h.drawnGames(),
		})
	}

	h.sendTo(c, h.wheelMessage(wheel.Frame{
		Rotation: h.wheel.Rotation(),
		Progress: h.wheel.Progress(),
		Phase:    h.wheel.Phase(),
	}))
	h.sendTo(c, h.selectionMessage())
}

func (h *Hub) handleUnregister(c *Client) {
	h.touch()

	h.drop(c)

	if c.playerID == "" || h.player(c.playerID) == nil || h.connected(c.playerID) {
		return
	}

	playerID := c.playerID
	time.AfterFunc(h.cfg.playerTimeout, func() {
		h.post(func() {
			h.removePlayer(playerID)
		})
	})
}

// removePlayer drops a player who has not come back since disconnecting.
func (h *Hub) removePlayer(playerID string) {
	if h.connected(playerID) {
		return
	}

	idx := slices.IndexFunc(h.players, func(p Player) bool {
		return p.PlayerID == playerID
	})
	if idx < 0 {
		return
	}

	logf(h.cfg, "TABLES: Player %q timed out of %s", h.players[idx].Username, h.id)

	h.players = slices.Delete(h.players, idx, idx+1)

	h.broadcast(h.playersMessage())
}

func (h *Hub) handleCommand(cmd command) {
	h.touch()

	c, msg := cmd.client, cmd.msg

	if !h.clients[c] {
		return
	}

	if msg.Type == "join" {
		h.handleJoin(c, msg)

		return
	}

	p := h.player(c.playerID)
	if p == nil {
		h.sendError(c, "Join the table before doing that.")

		return
	}
	username := p.Username

	switch msg.Type {
	case "spin":
		h.handleSpin(c, username)

	case "add_game":
		h.mutate(c, "add game", func(ctx context.Context) error {
			g, err := h.store.AddGame(ctx, library.NewGame{
				Name:  msg.GameName,
				Image: msg.GameImage,
				BGGID: msg.BGGID,
			})
			if err == nil {
				logf(h.cfg, "TABLES: %q added %q from %s", username, g.Name, h.id)
			}
			return err
		})

	case "remove_game":
		h.mutate(c, "remove game", func(ctx context.Context) error {
			return h.store.RemoveGame(ctx, msg.GameID)
		})

	case "clear_games":
		h.mutate(c, "clear games", func(ctx context.Context) error {
			n, err := h.store.ClearGames(ctx)
			if err == nil {
				logf(h.cfg, "TABLES: %q cleared %d games from %s", username, n, h.id)
			}
			return err
		})

	case "clear_selection":
		h.clearSelection()

	case "log_game":
		h.handleLog(c, msg)
	}
}

// handleJoin processes "join" messages.
func (h *Hub) handleJoin(c *Client, msg ClientMessage) {
	username := strings.TrimSpace(msg.Username)
	if username == "" || c.playerID == "" {
		h.sendError(c, "Please enter a username.")

		return
	}

	for _, p := range h.players {
		if p.PlayerID != c.playerID && strings.EqualFold(p.Username, username) {
			h.sendTo(c, CollisionMessage{
				Type:    "collision",
				Field:   "username",
				Message: "That username is already taken. Please choose a different username.",
			})

			return
		}
	}

	if p := h.player(c.playerID); p != nil {
		p.Username = username
	} else {
		h.players = append(h.players, Player{
			PlayerID: c.playerID,
			Username: username,
		})
		logf(h.cfg, "TABLES: Player %q joined %s", username, h.id)
	}

	h.sendTo(c, SessionInfoMessage{
		Type:         "session_info",
		TableID:      h.id,
		IsExisting:   true,
		Username:     username,
		PointerAngle: h.wheel.PointerAngle(),
	})
	h.broadcast(h.playersMessage())
}

func (h *Hub) handleSpin(c *Client, username string) {
	if len(h.games) == 0 {
		h.sendError(c, "Add a game to the library before spinning.")

		return
	}

	if !h.wheel.Spin() {
		return
	}

	h.spinner = username

	logf(h.cfg, "TABLES: %q spun the wheel at %s with %d games", username, h.id, len(h.games))

	h.broadcast(SpinStartedMessage{
		Type:   "spin_started",
		SpunBy: username,
		Games:  h.drawnGames(),
	})
}

func (h *Hub) handleLog(c *Client, msg ClientMessage) {
	name := strings.TrimSpace(msg.GameName)
	if name == "" && h.selection != nil {
		name = h.selection.Game.Name
	}

	in := library.NewLog{
		GameName:        name,
		Winner:          msg.Winner,
		Players:         msg.Players,
		DurationMinutes: msg.DurationMinutes,
		Notes:           msg.Notes,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		entry, err := h.store.LogGame(ctx, in)
		if err != nil {
			h.reportFailure(c, "log game", err)

			return
		}

		logf(h.cfg, "TABLES: Logged %q won by %q at %s", entry.GameName, entry.Winner, h.id)

		h.post(func() {
			h.broadcast(LoggedMessage{Type: "logged", Log: entry})
			h.clearSelection()
		})
	}()
}

// mutate runs a library change off the loop, then refreshes every table.
func (h *Hub) mutate(c *Client, action string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			h.reportFailure(c, action, err)

			return
		}

		if err := h.tables.libraryChanged(ctx); err != nil {
			logErr(err, "TABLES: Failed to refresh tables after %s", action)
		}
	}()
}

// reportFailure tells c why its command failed. Called off the loop.
func (h *Hub) reportFailure(c *Client, action string, err error) {
	var msg any

	switch {
	case errors.Is(err, library.ErrDuplicate):
		msg = CollisionMessage{
			Type:    "collision",
			Field:   "game_name",
			Message: "That game is already in the library.",
		}
	case errors.Is(err, library.ErrInvalid):
		msg = SimpleMessage{Type: "error", Message: userMessage(err)}
	case errors.Is(err, library.ErrNotFound):
		msg = SimpleMessage{Type: "error", Message: "That no longer exists."}
	default:
		logErr(err, "TABLES: Failed to %s at %s", action, h.id)
		msg = SimpleMessage{Type: "error", Message: "Something went wrong. Please try again."}
	}

	h.post(func() {
		h.sendTo(c, msg)
	})
}

// refresh swaps in a new copy of the library. A spin in flight keeps the
// list it started with.
func (h *Hub) refresh(games []library.Game) {
	h.setGames(games)
	h.broadcast(GamesMessage{Type: "games", Games: h.games})
}

func (h *Hub) setGames(games []library.Game) {
	h.games = slices.Clone(games)

	items := make([]wheel.Item, len(h.games))
	for i, g := range h.games {
		items[i] = wheel.Item{ID: g.ID, Name: g.Name, Image: g.Image}
	}

	h.wheel.Configure(items)
}

func (h *Hub) onFrame(f wheel.Frame) {
	h.broadcast(h.wheelMessage(f))
}

// onResolved receives the winner of a spin. It announces the pick right away
// and records it without holding up the loop.
func (h *Hub) onResolved(item wheel.Item) {
	game := h.gameFor(item)

	sel := library.Selection{
		TableID:    h.id,
		Game:       game,
		SelectedAt: time.Now().UTC(),
	}
	h.selection = &sel

	logf(h.cfg, "TABLES: Wheel at %s landed on %q", h.id, game.Name)

	h.broadcast(h.selectionMessage())

	h.persist("save selection", func(ctx context.Context) error {
		_, err := h.store.SetSelection(ctx, h.id, game)
		return err
	})
}

func (h *Hub) clearSelection() {
	if h.selection == nil {
		return
	}

	h.selection = nil
	h.broadcast(h.selectionMessage())

	h.persist("clear selection", func(ctx context.Context) error {
		return h.store.ClearSelection(ctx, h.id)
	})
}

// gameFor maps a wheel item back to its library entry. The game may have
// been removed while the wheel was spinning, so fall back to the item.
func (h *Hub) gameFor(item wheel.Item) library.Game {
	for _, g := range h.games {
		if g.ID == item.ID {
			return g
		}
	}

	return library.Game{ID: item.ID, Name: item.Name, Image: item.Image}
}

// drawnGames returns the games the wheel is currently drawing.
func (h *Hub) drawnGames() []library.Game {
	segs := h.wheel.Segments()

	games := make([]library.Game, len(segs))
	for i, s := range segs {
		games[i] = h.gameFor(s.Item)
	}

	return games
}

func (h *Hub) player(playerID string) *Player {
	for i := range h.players {
		if h.players[i].PlayerID == playerID {
			return &h.players[i]
		}
	}

	return nil
}

func (h *Hub) connected(playerID string) bool {
	for c := range h.clients {
		if c.playerID == playerID {
			return true
		}
	}

	return false
}

func (h *Hub) playersMessage() PlayersMessage {
	names := make([]string, len(h.players))
	for i, p := range h.players {
		names[i] = p.Username
	}

	return PlayersMessage{Type: "players", Players: names}
}

func (h *Hub) wheelMessage(f wheel.Frame) WheelMessage {
	return WheelMessage{
		Type:     "wheel",
		Rotation: f.Rotation,
		Progress: f.Progress,
		Spinning: f.Phase == wheel.Spinning,
	}
}

func (h *Hub) selectionMessage() SelectionMessage {
	if h.selection == nil {
		return SelectionMessage{Type: "selection"}
	}

	game, at := h.selection.Game, h.selection.SelectedAt

	return SelectionMessage{
		Type:       "selection",
		Game:       &game,
		SpunBy:     h.spinner,
		SelectedAt: &at,
	}
}

func (h *Hub) sendError(c *Client, text string) {
	h.sendTo(c, SimpleMessage{Type: "error", Message: text})
}

// sendTo queues msg for c, dropping the client if it can't keep up.
func (h *Hub) sendTo(c *Client, msg any) {
	if !h.clients[c] {
		return
	}

	select {
	case c.send <- msg:
	default:
		h.drop(c)
	}
}

func (h *Hub) broadcast(msg any) {
	for c := range h.clients {
		h.sendTo(c, msg)
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// enqueue hands a message from a client's read loop to the hub, giving up if
// the table has been closed.
func enqueue[T any](h *Hub, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.quit:
		return false
	}
}

// userMessage strips the wrapping context from a validation error, leaving
// the part worth showing a player.
func userMessage(err error) string {
	text := strings.TrimSuffix(err.Error(), ": "+library.ErrInvalid.Error())
	if text == err.Error() {
		return "That request was invalid."
	}

	if i := strings.LastIndex(text, ": "); i >= 0 {
		text = text[i+2:]
	}

	return strings.ToUpper(text[:1]) + text[1:] + "."
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const playerCookieName = "gametable_id"

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		logErr(err, "TABLES: Failed to generate player id")
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// WebSocket handler that picks the hub based on :tableid
func serveWSForManager(cfg *Config, tm *TableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tableID := ps.ByName("tableid")
		if !validTableID(tableID) {
			http.Error(w, "invalid table id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := tm.getHub(tableID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "TABLES: Websocket upgrade for %s failed: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 32),
			playerID: playerID,
		}

		if !enqueue(hub, hub.register, client) {
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		enqueue(h, h.unreg, c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(64 << 10)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "join", "spin", "add_game", "remove_game", "clear_games", "clear_selection", "log_game":
			if !enqueue(h, h.commands, command{client: c, msg: msg}) {
				return
			}
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current table URL using go-qrcode.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validTableID(ps.ByName("tableid")) {
			http.Error(w, "invalid table id", http.StatusBadRequest)
			return
		}

		scheme := cfg.scheme()
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../:tableid/qr; strip trailing "/qr" to get the table URL.
		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}
