package library

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration renders a play length the way the log page shows it.
func FormatDuration(minutes *int) string {
	if minutes == nil || *minutes <= 0 {
		return "Duration not recorded"
	}

	m := *minutes
	if m < 60 {
		return fmt.Sprintf("%d min", m)
	}

	hours, rest := m/60, m%60
	if rest == 0 {
		return fmt.Sprintf("%d hr", hours)
	}
	return fmt.Sprintf("%d hr %d min", hours, rest)
}

// FormatPlayers joins names as "A & B" or "A, B & C".
func FormatPlayers(players []string) string {
	if len(players) <= 2 {
		return strings.Join(players, " & ")
	}
	last := players[len(players)-1]
	return strings.Join(players[:len(players)-1], ", ") + " & " + last
}

// FormatPlayed describes when a play happened relative to now.
func FormatPlayed(played, now time.Time) string {
	days := int(now.Sub(played).Hours() / 24)
	switch {
	case days <= 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	}
	return played.Local().Format("Jan 2, 2006")
}

// ParsePlayers splits a comma separated list of names, dropping blanks.
func ParsePlayers(s string) []string {
	var players []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			players = append(players, p)
		}
	}
	return players
}
