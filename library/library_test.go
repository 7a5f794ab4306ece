package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// tickingClock returns a now func that moves forward a minute per call.
func tickingClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func intPtr(n int) *int { return &n }

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("  ")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.AddGame(ctx, NewGame{Name: "Azul"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	games, err := s.ListGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Azul", games[0].Name)
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(context.Background()))
}

func TestAddGame(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	g, err := s.AddGame(ctx, NewGame{Name: "  Wingspan ", Image: "https://img/w.png", BGGID: "266192"})
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "Wingspan", g.Name)
	assert.Equal(t, "https://img/w.png", g.Image)
	assert.Equal(t, "266192", g.BGGID)
	assert.False(t, g.CreatedAt.IsZero())

	_, err = s.AddGame(ctx, NewGame{Name: "Wingspan"})
	require.ErrorIs(t, err, ErrDuplicate)

	_, err = s.AddGame(ctx, NewGame{Name: "wingspan "})
	require.ErrorIs(t, err, ErrDuplicate)

	_, err = s.AddGame(ctx, NewGame{Name: "Wingspan (2nd printing)", BGGID: "266192"})
	require.ErrorIs(t, err, ErrDuplicate)

	_, err = s.AddGame(ctx, NewGame{Name: "Wyrmspan"})
	require.NoError(t, err)

	_, err = s.AddGame(ctx, NewGame{Name: "   "})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestListGames_OrderedByName(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	empty, err := s.ListGames(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, name := range []string{"Terraforming Mars", "Azul", "Catan"} {
		_, err := s.AddGame(ctx, NewGame{Name: name})
		require.NoError(t, err)
	}

	games, err := s.ListGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 3)
	assert.Equal(t, "Azul", games[0].Name)
	assert.Equal(t, "Catan", games[1].Name)
	assert.Equal(t, "Terraforming Mars", games[2].Name)
}

func TestRemoveGame(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	g, err := s.AddGame(ctx, NewGame{Name: "Catan"})
	require.NoError(t, err)

	require.NoError(t, s.RemoveGame(ctx, g.ID))
	require.ErrorIs(t, s.RemoveGame(ctx, g.ID), ErrNotFound)

	games, err := s.ListGames(ctx)
	require.NoError(t, err)
	assert.Empty(t, games)

	// The name is free again once removed.
	_, err = s.AddGame(ctx, NewGame{Name: "Catan"})
	require.NoError(t, err)
}

func TestClearGames(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		_, err := s.AddGame(ctx, NewGame{Name: name})
		require.NoError(t, err)
	}

	n, err := s.ClearGames(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.ClearGames(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLogGame(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	l, err := s.LogGame(ctx, NewLog{
		GameName:        " Azul ",
		Winner:          "Sam ",
		Players:         []string{"Sam", " ", "Alex "},
		DurationMinutes: intPtr(45),
		Notes:           "  close game ",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, l.ID)
	assert.Equal(t, "Azul", l.GameName)
	assert.Equal(t, "Sam", l.Winner)
	assert.Equal(t, []string{"Sam", "Alex"}, l.Players)
	require.NotNil(t, l.DurationMinutes)
	assert.Equal(t, 45, *l.DurationMinutes)
	assert.Equal(t, "close game", l.Notes)

	logs, err := s.ListLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, l.ID, logs[0].ID)
	assert.Equal(t, []string{"Sam", "Alex"}, logs[0].Players)
	require.NotNil(t, logs[0].DurationMinutes)
	assert.Equal(t, 45, *logs[0].DurationMinutes)
	assert.True(t, l.PlayedAt.Equal(logs[0].PlayedAt))
}

func TestLogGame_Validation(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	valid := NewLog{GameName: "Azul", Winner: "Sam", Players: []string{"Sam"}}

	cases := map[string]func(*NewLog){
		"no players":        func(l *NewLog) { l.Players = []string{" ", ""} },
		"no winner":         func(l *NewLog) { l.Winner = " " },
		"no game":           func(l *NewLog) { l.GameName = "" },
		"zero duration":     func(l *NewLog) { l.DurationMinutes = intPtr(0) },
		"negative duration": func(l *NewLog) { l.DurationMinutes = intPtr(-5) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			in.Players = append([]string(nil), valid.Players...)
			mutate(&in)
			_, err := s.LogGame(ctx, in)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}

	l, err := s.LogGame(ctx, valid)
	require.NoError(t, err)
	assert.Nil(t, l.DurationMinutes)
}

func TestListLogs_NewestFirst(t *testing.T) {
	s := openTest(t)
	s.now = tickingClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, game := range []string{"first", "second", "third"} {
		_, err := s.LogGame(ctx, NewLog{GameName: game, Winner: "w", Players: []string{"w"}})
		require.NoError(t, err)
	}

	logs, err := s.ListLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "third", logs[0].GameName)
	assert.Equal(t, "second", logs[1].GameName)
	assert.Equal(t, "first", logs[2].GameName)
	assert.Nil(t, logs[0].DurationMinutes)
}

func TestDeleteLog(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	l, err := s.LogGame(ctx, NewLog{GameName: "Azul", Winner: "Sam", Players: []string{"Sam"}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteLog(ctx, l.ID))
	require.ErrorIs(t, s.DeleteLog(ctx, l.ID), ErrNotFound)
}

func TestSelection(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	_, err := s.Selection(ctx, "table1")
	require.ErrorIs(t, err, ErrNotFound)

	g := Game{ID: "g1", Name: "Azul", Image: "img", BGGID: "230802"}
	_, err = s.SetSelection(ctx, "table1", g)
	require.NoError(t, err)

	sel, err := s.Selection(ctx, "table1")
	require.NoError(t, err)
	assert.Equal(t, "table1", sel.TableID)
	assert.Equal(t, g, sel.Game)
	assert.False(t, sel.SelectedAt.IsZero())

	// Replacing keeps one row per table.
	_, err = s.SetSelection(ctx, "table1", Game{ID: "g2", Name: "Catan"})
	require.NoError(t, err)
	sel, err = s.Selection(ctx, "table1")
	require.NoError(t, err)
	assert.Equal(t, "Catan", sel.Game.Name)

	_, err = s.Selection(ctx, "table2")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.ClearSelection(ctx, "table1"))
	require.NoError(t, s.ClearSelection(ctx, "table1"))
	_, err = s.Selection(ctx, "table1")
	require.ErrorIs(t, err, ErrNotFound)
}
