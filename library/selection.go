package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Selection is the game a table's wheel last landed on.
type Selection struct {
	TableID    string    `json:"table_id"`
	Game       Game      `json:"game"`
	SelectedAt time.Time `json:"selected_at"`
}

// SetSelection records g as the current pick for tableID, replacing any
// earlier one.
func (s *Store) SetSelection(ctx context.Context, tableID string, g Game) (Selection, error) {
	sel := Selection{
		TableID:    tableID,
		Game:       g,
		SelectedAt: s.now(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO current_selection (table_id, game_id, game_name, game_image, bgg_id, selected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (table_id) DO UPDATE SET
			game_id = excluded.game_id,
			game_name = excluded.game_name,
			game_image = excluded.game_image,
			bgg_id = excluded.bgg_id,
			selected_at = excluded.selected_at`,
		tableID, g.ID, g.Name, g.Image, g.BGGID, formatTime(sel.SelectedAt),
	)
	if err != nil {
		return Selection{}, fmt.Errorf("set selection for %s: %w", tableID, err)
	}

	return sel, nil
}

// Selection returns the current pick for tableID, or ErrNotFound.
func (s *Store) Selection(ctx context.Context, tableID string) (Selection, error) {
	var (
		sel      Selection
		selected string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT table_id, game_id, game_name, game_image, bgg_id, selected_at FROM current_selection WHERE table_id = ?`,
		tableID,
	).Scan(&sel.TableID, &sel.Game.ID, &sel.Game.Name, &sel.Game.Image, &sel.Game.BGGID, &selected)
	if errors.Is(err, sql.ErrNoRows) {
		return Selection{}, fmt.Errorf("selection for %s: %w", tableID, ErrNotFound)
	}
	if err != nil {
		return Selection{}, fmt.Errorf("selection for %s: %w", tableID, err)
	}
	sel.SelectedAt = parseTime(selected)

	return sel, nil
}

// ClearSelection forgets the current pick for tableID. Clearing a table with
// no selection is not an error.
func (s *Store) ClearSelection(ctx context.Context, tableID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM current_selection WHERE table_id = ?`, tableID); err != nil {
		return fmt.Errorf("clear selection for %s: %w", tableID, err)
	}
	return nil
}
