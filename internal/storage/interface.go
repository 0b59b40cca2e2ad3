package storage

import (
	"context"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage/changefeed"
)

// Store is the remote store client: persistence for players, matches, the
// admins allow-list and auth accounts, plus a change feed per collection.
// Every write bumps the record's Version and publishes a change event with
// the same sequence number.
type Store interface {
	// Player operations
	ListPlayers(ctx context.Context) ([]model.Player, error) // ordered by wins descending
	GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error)
	FindPlayer(ctx context.Context, name, room string) (*model.Player, error) // case-insensitive
	InsertPlayer(ctx context.Context, player *model.Player) (*model.Player, error)
	ApplyPlayerStats(ctx context.Context, id model.PlayerID, delta model.StatsDelta) (*model.Player, error)
	DeletePlayer(ctx context.Context, id model.PlayerID) error

	// Match operations
	ListMatches(ctx context.Context) ([]model.Match, error) // ordered by created_at descending
	GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error)
	InsertMatch(ctx context.Context, match *model.Match) (*model.Match, error)
	// UpdateMatch refuses patches over a finished match (ErrMatchFinished) or
	// that move the status backwards, checked atomically with the write
	UpdateMatch(ctx context.Context, id model.MatchID, patch model.MatchPatch) (*model.Match, error)
	DeleteMatch(ctx context.Context, id model.MatchID) error

	// Admin allow-list operations
	IsAdmin(ctx context.Context, id model.PrincipalID) (bool, error)
	AddAdmin(ctx context.Context, id model.PrincipalID) error
	RemoveAdmin(ctx context.Context, id model.PrincipalID) error

	// Account operations
	SaveAccount(ctx context.Context, account *model.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)

	// Subscribe streams change events for a collection until unsubscribed
	Subscribe(ctx context.Context, collection model.Collection) (*changefeed.Subscription, error)

	Close() error
}
