package storage

import (
	"sort"
	"strings"

	"github.com/mcoot/pingpong/internal/model"
)

// SortPlayers orders players by wins descending, ties by name then id
func SortPlayers(players []model.Player) {
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].Wins != players[j].Wins {
			return players[i].Wins > players[j].Wins
		}
		ni, nj := strings.ToLower(players[i].Name), strings.ToLower(players[j].Name)
		if ni != nj {
			return ni < nj
		}
		return players[i].ID < players[j].ID
	})
}

// SortMatches orders matches newest first, ties by id
func SortMatches(matches []model.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})
}

// NormalizeEmail folds an email address for account lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
