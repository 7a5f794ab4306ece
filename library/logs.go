package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Log records one finished play.
type Log struct {
	ID              string    `json:"id"`
	GameName        string    `json:"game_name"`
	Winner          string    `json:"winner"`
	Players         []string  `json:"players"`
	DurationMinutes *int      `json:"duration_minutes"`
	PlayedAt        time.Time `json:"played_at"`
	Notes           string    `json:"notes,omitempty"`
}

// NewLog is the input to LogGame.
type NewLog struct {
	GameName        string   `json:"game_name"`
	Winner          string   `json:"winner"`
	Players         []string `json:"players"`
	DurationMinutes *int     `json:"duration_minutes"`
	Notes           string   `json:"notes"`
}

func (in NewLog) normalize() (NewLog, error) {
	out := NewLog{
		GameName:        strings.TrimSpace(in.GameName),
		Winner:          strings.TrimSpace(in.Winner),
		DurationMinutes: in.DurationMinutes,
		Notes:           strings.TrimSpace(in.Notes),
	}
	for _, p := range in.Players {
		if p = strings.TrimSpace(p); p != "" {
			out.Players = append(out.Players, p)
		}
	}

	switch {
	case len(out.Players) == 0:
		return NewLog{}, fmt.Errorf("at least one player required: %w", ErrInvalid)
	case out.Winner == "":
		return NewLog{}, fmt.Errorf("winner required: %w", ErrInvalid)
	case out.GameName == "":
		return NewLog{}, fmt.Errorf("game name required: %w", ErrInvalid)
	case out.DurationMinutes != nil && *out.DurationMinutes <= 0:
		return NewLog{}, fmt.Errorf("duration must be a positive number: %w", ErrInvalid)
	}

	return out, nil
}

// LogGame records a finished play.
func (s *Store) LogGame(ctx context.Context, in NewLog) (Log, error) {
	in, err := in.normalize()
	if err != nil {
		return Log{}, fmt.Errorf("log game: %w", err)
	}

	players, err := json.Marshal(in.Players)
	if err != nil {
		return Log{}, fmt.Errorf("log game: %w", err)
	}

	l := Log{
		ID:              uuid.NewString(),
		GameName:        in.GameName,
		Winner:          in.Winner,
		Players:         in.Players,
		DurationMinutes: in.DurationMinutes,
		PlayedAt:        s.now(),
		Notes:           in.Notes,
	}

	var duration sql.NullInt64
	if l.DurationMinutes != nil {
		duration = sql.NullInt64{Int64: int64(*l.DurationMinutes), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO game_logs (id, game_name, winner, players, duration_minutes, played_at, notes) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.GameName, l.Winner, string(players), duration, formatTime(l.PlayedAt), l.Notes,
	)
	if err != nil {
		return Log{}, fmt.Errorf("log game %q: %w", l.GameName, err)
	}

	return l, nil
}

// ListLogs returns every log, newest first.
func (s *Store) ListLogs(ctx context.Context) ([]Log, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_name, winner, players, duration_minutes, played_at, notes FROM game_logs ORDER BY played_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	logs := []Log{}
	for rows.Next() {
		var (
			l        Log
			players  string
			duration sql.NullInt64
			played   string
		)
		if err := rows.Scan(&l.ID, &l.GameName, &l.Winner, &players, &duration, &played, &l.Notes); err != nil {
			return nil, fmt.Errorf("list logs: %w", err)
		}
		if err := json.Unmarshal([]byte(players), &l.Players); err != nil {
			return nil, fmt.Errorf("list logs: players of %s: %w", l.ID, err)
		}
		if duration.Valid {
			d := int(duration.Int64)
			l.DurationMinutes = &d
		}
		l.PlayedAt = parseTime(played)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}

	return logs, nil
}

// DeleteLog removes a log by ID.
func (s *Store) DeleteLog(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM game_logs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete log %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete log %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete log %s: %w", id, ErrNotFound)
	}
	return nil
}
