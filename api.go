package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/logJustin/the-game-table/library"
)

const maxBodyBytes = 1 << 20

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any, errs chan<- error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs <- err
	}
}

// writeError maps library errors onto HTTP statuses.
func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, err error, errs chan<- error) {
	status, text := http.StatusInternalServerError, "internal error"

	switch {
	case errors.Is(err, library.ErrInvalid):
		status, text = http.StatusBadRequest, userMessage(err)
	case errors.Is(err, library.ErrDuplicate):
		status, text = http.StatusConflict, "already exists"
	case errors.Is(err, library.ErrNotFound):
		status, text = http.StatusNotFound, "not found"
	default:
		logErr(err, "API: %s %s from %s", r.Method, r.URL.Path, realIP(r))
	}

	writeJSON(cfg, w, status, apiError{Error: text}, errs)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	return dec.Decode(v)
}

// notifyTables pushes a library change to every open table. The request may
// be gone by the time the tables catch up, so it gets its own deadline.
func notifyTables(tm *TableManager) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := tm.libraryChanged(ctx); err != nil {
		logErr(err, "API: Failed to refresh tables")
	}
}

func listGames(cfg *Config, store *library.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		games, err := store.ListGames(r.Context())
		if err != nil {
			writeError(cfg, w, r, err, errs)
			return
		}

		writeJSON(cfg, w, http.StatusOK, games, errs)
	}
}

func addGame(cfg *Config, store *library.Store, tm *TableManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var in library.NewGame
		if err := decodeBody(w, r, &in); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "malformed request body"}, errs)
			return
		}

		g, err := store.AddGame(r.Context(), in)
		if err != nil {
			writeError(cfg, w, r, err, errs)
			return
		}

		logf(cfg, "API: %s added %q", realIP(r), g.Name)

		notifyTables(tm)

		writeJSON(cfg, w, http.StatusCreated, g, errs)
	}
}

func removeGame(cfg *Config, store *library.Store, tm *TableManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := store.RemoveGame(r.Context(), ps.ByName("id")); err != nil {
			writeError(cfg, w, r, err, errs)
			return
		}

		notifyTables(tm)

		writeJSON(cfg, w, http.StatusNoContent, nil, errs)
	}
}

func listLogs(cfg *Config, store *library.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		logs, err := store.ListLogs(r.Context())
		if err != nil {
			writeError(cfg, w, r, err, errs)
			return
		}

		writeJSON(cfg, w, http.StatusOK, logs, errs)
	}
}

func addLog(cfg *Config, store *library.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var in library.NewLog
		if err := decodeBody(w, r, &in); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "malformed request body"}, errs)
			return
		}

		l, err := store.LogGame(r.Context(), in)
		if err != nil {
			writeError(cfg, w, r, err, errs)
			return
		}

		logf(cfg, "API: %s logged %q", realIP(r), l.GameName)

		writeJSON(cfg, w, http.StatusCreated, l, errs)
	}
}

func deleteLog(cfg *Config, store *library.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := store.DeleteLog(r.Context(), ps.ByName("id")); err != nil {
			writeError(cfg, w, r, err, errs)
			return
		}

		writeJSON(cfg, w, http.StatusNoContent, nil, errs)
	}
}

func tableSelection(cfg *Config, store *library.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tableID := ps.ByName("tableid")
		if !validTableID(tableID) {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "invalid table id"}, errs)
			return
		}

		sel, err := store.Selection(r.Context(), tableID)
		if err != nil {
			writeError(cfg, w, r, err, errs)
			return
		}

		writeJSON(cfg, w, http.StatusOK, sel, errs)
	}
}

func registerAPI(cfg *Config, mux *httprouter.Router, store *library.Store, tm *TableManager, errs chan<- error) {
	api := cfg.prefix + "/api"

	mux.GET(api+"/games", listGames(cfg, store, errs))
	mux.POST(api+"/games", addGame(cfg, store, tm, errs))
	mux.DELETE(api+"/games/:id", removeGame(cfg, store, tm, errs))

	mux.GET(api+"/logs", listLogs(cfg, store, errs))
	mux.POST(api+"/logs", addLog(cfg, store, errs))
	mux.DELETE(api+"/logs/:id", deleteLog(cfg, store, errs))

	mux.GET(api+"/tables/:tableid/selection", tableSelection(cfg, store, errs))

	logf(cfg, "SERVE: Registered API under %s", api)
}
