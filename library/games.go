package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Game is one entry in the shared library.
type Game struct {
	ID        string    `json:"id"`
	Name      string    `json:"game_name"`
	Image     string    `json:"game_image,omitempty"`
	BGGID     string    `json:"bgg_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewGame is the input to AddGame.
type NewGame struct {
	Name  string `json:"game_name"`
	Image string `json:"game_image"`
	BGGID string `json:"bgg_id"`
}

// AddGame adds a game to the library. Names are unique ignoring case, and so
// are BoardGameGeek IDs when given.
func (s *Store) AddGame(ctx context.Context, in NewGame) (Game, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Game{}, fmt.Errorf("add game: name required: %w", ErrInvalid)
	}

	bggID := strings.TrimSpace(in.BGGID)

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM available_games WHERE game_name = ? OR (? != '' AND bgg_id = ?) LIMIT 1`,
		name, bggID, bggID,
	).Scan(&exists)
	switch {
	case err == nil:
		return Game{}, fmt.Errorf("add game %q: %w", name, ErrDuplicate)
	case !errors.Is(err, sql.ErrNoRows):
		return Game{}, fmt.Errorf("add game %q: %w", name, err)
	}

	g := Game{
		ID:        uuid.NewString(),
		Name:      name,
		Image:     strings.TrimSpace(in.Image),
		BGGID:     bggID,
		CreatedAt: s.now(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO available_games (id, game_name, game_image, bgg_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Image, g.BGGID, formatTime(g.CreatedAt),
	)
	if isUniqueViolation(err) {
		return Game{}, fmt.Errorf("add game %q: %w", name, ErrDuplicate)
	}
	if err != nil {
		return Game{}, fmt.Errorf("add game %q: %w", name, err)
	}

	return g, nil
}

// ListGames returns the library ordered by name.
func (s *Store) ListGames(ctx context.Context) ([]Game, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, game_name, game_image, bgg_id, created_at FROM available_games ORDER BY game_name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	games := []Game{}
	for rows.Next() {
		var (
			g       Game
			created string
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.Image, &g.BGGID, &created); err != nil {
			return nil, fmt.Errorf("list games: %w", err)
		}
		g.CreatedAt = parseTime(created)
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}

	return games, nil
}

// RemoveGame deletes a game by ID.
func (s *Store) RemoveGame(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM available_games WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove game %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove game %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("remove game %s: %w", id, ErrNotFound)
	}
	return nil
}

// ClearGames empties the library and returns how many games were removed.
func (s *Store) ClearGames(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM available_games`)
	if err != nil {
		return 0, fmt.Errorf("clear games: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear games: %w", err)
	}
	return int(n), nil
}
