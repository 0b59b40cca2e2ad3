// Package tournament holds the mutations that change tournament state:
// match creation, score entry and deletions (all admin only) plus the
// find-or-create registry used when players join.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mcoot/pingpong/internal/dependencies/clock"
	"github.com/mcoot/pingpong/internal/dependencies/ids"
	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/services/scoring"
	"github.com/mcoot/pingpong/internal/storage"
)

// Config holds configuration for the tournament service
type Config struct {
	// StatsRetries is how many times each stat increment is attempted
	StatsRetries int
	// RetryBackoff is the wait before the first retry, doubled after each
	RetryBackoff time.Duration
}

// DefaultConfig returns default tournament configuration
func DefaultConfig() Config {
	return Config{
		StatsRetries: 3,
		RetryBackoff: 50 * time.Millisecond,
	}
}

// ScoreResult reports the outcome of a score update. The match write always
// succeeded when a result is returned; StatsErr carries any stat increments
// that could not be applied.
type ScoreResult struct {
	Match    *model.Match
	Outcome  scoring.Outcome
	StatsErr error
}

// Service performs tournament mutations
type Service struct {
	storage storage.Store
	clock   clock.Clock
	ids     ids.Generator
	cfg     Config
	logger  *slog.Logger
}

// New creates a new tournament Service
func New(storage storage.Store, clock clock.Clock, ids ids.Generator, cfg Config, logger *slog.Logger) *Service {
	if cfg.StatsRetries <= 0 {
		cfg.StatsRetries = DefaultConfig().StatsRetries
	}
	return &Service{
		storage: storage,
		clock:   clock,
		ids:     ids,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "tournament")),
	}
}

func requireAdmin(actor model.Identity) error {
	if !actor.IsAdmin() {
		return model.ErrNotAdmin
	}
	return nil
}

// FindOrCreatePlayer returns the player registered with name and room,
// compared case-insensitively, creating it with a clean record if none exists
func (s *Service) FindOrCreatePlayer(ctx context.Context, name, room string) (*model.Player, bool, error) {
	name = strings.TrimSpace(name)
	room = strings.TrimSpace(room)
	if name == "" {
		return nil, false, model.ErrNameRequired
	}
	if room == "" {
		return nil, false, model.ErrRoomRequired
	}

	existing, err := s.storage.FindPlayer(ctx, name, room)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, model.ErrPlayerNotFound) {
		return nil, false, fmt.Errorf("looking up player: %w", err)
	}

	player, err := s.storage.InsertPlayer(ctx, &model.Player{
		ID:        model.PlayerID(s.ids.NewID()),
		Name:      name,
		Nickname:  room,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("creating player: %w", err)
	}

	s.logger.Info("player registered",
		slog.String("player_id", string(player.ID)),
		slog.String("name", player.Name))
	return player, true, nil
}

// CreateMatch schedules an upcoming match between two different players
func (s *Service) CreateMatch(ctx context.Context, actor model.Identity, player1, player2 model.PlayerID) (*model.Match, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if player1 == "" || player2 == "" {
		return nil, model.ErrPlayerRequired
	}
	if player1 == player2 {
		return nil, model.ErrSamePlayer
	}

	for _, id := range []model.PlayerID{player1, player2} {
		if _, err := s.storage.GetPlayer(ctx, id); err != nil {
			return nil, fmt.Errorf("player %s: %w", id, err)
		}
	}

	match, err := s.storage.InsertMatch(ctx, &model.Match{
		ID:        model.MatchID(s.ids.NewID()),
		Player1ID: player1,
		Player2ID: player2,
		Status:    model.MatchStatusUpcoming,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		s.logger.Error("failed to create match", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating match: %w", err)
	}

	s.logger.Info("match created",
		slog.String("match_id", string(match.ID)),
		slog.String("player1_id", string(player1)),
		slog.String("player2_id", string(player2)))
	return match, nil
}

// UpdateScore records new scores for a match. When the scores finish the
// match, the winner and loser records are incremented after the match write;
// those increments are retried independently and any that still fail are
// reported in ScoreResult.StatsErr.
func (s *Service) UpdateScore(ctx context.Context, actor model.Identity, matchID model.MatchID, score1, score2 int) (*ScoreResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if score1 < 0 || score2 < 0 {
		return nil, model.ErrInvalidScore
	}

	match, err := s.storage.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status == model.MatchStatusFinished {
		return nil, model.ErrMatchFinished
	}

	in := scoring.Input{
		CurrentScore1: match.Player1Score,
		CurrentScore2: match.Player2Score,
		NewScore1:     score1,
		NewScore2:     score2,
		Player1:       match.Player1ID,
		Player2:       match.Player2ID,
	}
	outcome := scoring.Evaluate(in)
	if !match.Status.CanTransitionTo(outcome.Status) {
		return nil, model.ErrInvalidStatusTransition
	}

	updated, err := s.storage.UpdateMatch(ctx, matchID, outcome.Patch(in))
	if errors.Is(err, model.ErrMatchFinished) || errors.Is(err, model.ErrInvalidStatusTransition) {
		// another writer got there first; no stats are applied
		s.logger.Warn("score update lost to a concurrent write",
			slog.String("match_id", string(matchID)),
			slog.String("error", err.Error()))
		return nil, err
	}
	if err != nil {
		s.logger.Error("failed to write match score",
			slog.String("match_id", string(matchID)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("updating match: %w", err)
	}

	result := &ScoreResult{Match: updated, Outcome: outcome}
	if !outcome.Complete {
		return result, nil
	}

	s.logger.Info("match finished",
		slog.String("match_id", string(matchID)),
		slog.String("winner_id", string(outcome.Winner)),
		slog.Int("player1_score", score1),
		slog.Int("player2_score", score2))

	var errs []error
	for _, id := range []model.PlayerID{outcome.Winner, outcome.Loser} {
		if err := s.applyStats(ctx, id, outcome.Deltas[id]); err != nil {
			s.logger.Error("failed to apply player stats",
				slog.String("match_id", string(matchID)),
				slog.String("player_id", string(id)),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("player %s: %w", id, err))
		}
	}
	result.StatsErr = errors.Join(errs...)
	return result, nil
}

// applyStats increments a player's record, retrying transient failures
func (s *Service) applyStats(ctx context.Context, id model.PlayerID, delta model.StatsDelta) error {
	backoff := s.cfg.RetryBackoff
	var err error
	for attempt := 1; attempt <= s.cfg.StatsRetries; attempt++ {
		_, err = s.storage.ApplyPlayerStats(ctx, id, delta)
		if err == nil || errors.Is(err, model.ErrPlayerNotFound) {
			return err
		}
		if attempt == s.cfg.StatsRetries {
			break
		}

		s.logger.Warn("retrying player stats",
			slog.String("player_id", string(id)),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// DeleteMatch permanently removes a match. Callers confirm with the user first.
func (s *Service) DeleteMatch(ctx context.Context, actor model.Identity, id model.MatchID) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.storage.DeleteMatch(ctx, id); err != nil {
		return err
	}
	s.logger.Info("match deleted", slog.String("match_id", string(id)))
	return nil
}

// DeletePlayer permanently removes a player. Callers confirm with the user first.
// Matches referencing the player are kept.
func (s *Service) DeletePlayer(ctx context.Context, actor model.Identity, id model.PlayerID) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.storage.DeletePlayer(ctx, id); err != nil {
		return err
	}
	s.logger.Info("player deleted", slog.String("player_id", string(id)))
	return nil
}
