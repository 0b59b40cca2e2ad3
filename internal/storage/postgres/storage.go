package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage"
	"github.com/mcoot/pingpong/internal/storage/changefeed"
)

// Postgres error codes
const (
	codeUniqueViolation = "23505"
)

const playerColumns = `id, name, nickname, wins, losses, version, created_at`
const matchColumns = `id, player1_id, player2_id, player1_score, player2_score, status, winner_id, version, created_at`

// Storage is a Postgres-backed implementation of the storage interface.
// Each write takes the next value of its collection's version sequence and
// calls pg_notify in the same transaction, so notifications arrive in commit
// order. A pq.Listener relays them into a local change feed.
type Storage struct {
	db       *sql.DB
	cfg      Config
	logger   *slog.Logger
	feed     *changefeed.Feed
	listener *pq.Listener
	wg       sync.WaitGroup
	once     sync.Once
}

// New connects to Postgres, applies the schema and starts listening for changes
func New(cfg Config, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	s := &Storage{
		db:     db,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "postgres-storage")),
		feed:   changefeed.New(cfg.ChangeBuffer, logger),
	}

	s.listener = pq.NewListener(cfg.URL, cfg.MinReconnectInterval, cfg.MaxReconnectInterval, s.onListenerEvent)
	if err := s.listener.Listen(changesChannel); err != nil {
		_ = s.listener.Close()
		_ = db.Close()
		return nil, fmt.Errorf("listening on %s: %w", changesChannel, err)
	}

	s.wg.Add(1)
	go s.forward()
	return s, nil
}

// Migrate applies the schema idempotently
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected:
		s.logger.Warn("change listener disconnected", slog.Any("error", err))
	case pq.ListenerEventReconnected:
		s.logger.Info("change listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		s.logger.Warn("change listener reconnect failed", slog.Any("error", err))
	}
}

// forward relays notifications into the local feed until the listener closes
func (s *Storage) forward() {
	defer s.wg.Done()
	for n := range s.listener.Notify {
		if n == nil {
			// The connection was re-established and notifications may have
			// been missed; subscribers must resync
			s.feed.Interrupt(model.ErrSubscriptionOverflow)
			continue
		}
		ev, err := decodeNotification(n.Extra)
		if err != nil {
			s.logger.Warn("dropping malformed notification",
				slog.String("channel", n.Channel),
				slog.String("error", err.Error()))
			continue
		}
		s.feed.Publish(ev)
	}
}

func decodeNotification(payload string) (model.ChangeEvent, error) {
	var ev model.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return model.ChangeEvent{}, fmt.Errorf("%w: %v", model.ErrMalformedEvent, err)
	}
	if ev.Collection == "" || ev.Kind == "" {
		return model.ChangeEvent{}, fmt.Errorf("%w: missing kind or collection", model.ErrMalformedEvent)
	}
	return ev, nil
}

// Close stops listening and closes the database handle
func (s *Storage) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.listener.Close()
		s.wg.Wait()
		s.feed.Close()
		err = s.db.Close()
	})
	return err
}

// Ensure Storage implements the interface
var _ storage.Store = (*Storage)(nil)

func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func notify(ctx context.Context, tx *sql.Tx, ev model.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, changesChannel, string(data))
	return err
}

func nextVersion(ctx context.Context, tx *sql.Tx, c model.Collection) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT nextval('%s_version_seq')`, c)).Scan(&seq)
	return seq, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(row rowScanner) (*model.Player, error) {
	var p model.Player
	err := row.Scan(&p.ID, &p.Name, &p.Nickname, &p.Wins, &p.Losses, &p.Version, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func scanMatch(row rowScanner) (*model.Match, error) {
	var m model.Match
	var winner sql.NullString
	err := row.Scan(&m.ID, &m.Player1ID, &m.Player2ID, &m.Player1Score, &m.Player2Score,
		&m.Status, &winner, &m.Version, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if winner.Valid {
		id := model.PlayerID(winner.String)
		m.WinnerID = &id
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func nullableWinner(id *model.PlayerID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}

func notFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}

// Player operations

func (s *Storage) ListPlayers(ctx context.Context) ([]model.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+playerColumns+` FROM players`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	players := []model.Player{}
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	storage.SortPlayers(players)
	return players, nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id)
	p, err := scanPlayer(row)
	if err != nil {
		return nil, notFound(err, model.ErrPlayerNotFound)
	}
	return p, nil
}

func (s *Storage) FindPlayer(ctx context.Context, name, room string) (*model.Player, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players
		WHERE lower(name) = lower($1) AND lower(nickname) = lower($2)
		ORDER BY created_at LIMIT 1`, name, room)
	p, err := scanPlayer(row)
	if err != nil {
		return nil, notFound(err, model.ErrPlayerNotFound)
	}
	return p, nil
}

func (s *Storage) InsertPlayer(ctx context.Context, player *model.Player) (*model.Player, error) {
	p := *player
	if p.ID == "" {
		p.ID = model.PlayerID(uuid.NewString())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	var result *model.Player
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `INSERT INTO players (id, name, nickname, wins, losses, version, created_at)
			VALUES ($1, $2, $3, $4, $5, nextval('players_version_seq'), $6)
			RETURNING `+playerColumns,
			p.ID, p.Name, p.Nickname, p.Wins, p.Losses, p.CreatedAt)
		inserted, err := scanPlayer(row)
		if err != nil {
			if isUniqueViolation(err) {
				return model.ErrRecordExists
			}
			return err
		}
		ev, err := model.NewPlayerEvent(model.ChangeInsert, inserted.Version, inserted)
		if err != nil {
			return err
		}
		result = inserted
		return notify(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) ApplyPlayerStats(ctx context.Context, id model.PlayerID, delta model.StatsDelta) (*model.Player, error) {
	var result *model.Player
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Lock the row first so the version is drawn after any competing writer commits
		if _, err := scanPlayer(tx.QueryRowContext(ctx,
			`SELECT `+playerColumns+` FROM players WHERE id = $1 FOR UPDATE`, id)); err != nil {
			return notFound(err, model.ErrPlayerNotFound)
		}
		row := tx.QueryRowContext(ctx, `UPDATE players
			SET wins = wins + $2, losses = losses + $3, version = nextval('players_version_seq')
			WHERE id = $1
			RETURNING `+playerColumns, id, delta.Wins, delta.Losses)
		updated, err := scanPlayer(row)
		if err != nil {
			return err
		}
		ev, err := model.NewPlayerEvent(model.ChangeUpdate, updated.Version, updated)
		if err != nil {
			return err
		}
		result = updated
		return notify(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) DeletePlayer(ctx context.Context, id model.PlayerID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `DELETE FROM players WHERE id = $1 RETURNING `+playerColumns, id)
		deleted, err := scanPlayer(row)
		if err != nil {
			return notFound(err, model.ErrPlayerNotFound)
		}
		seq, err := nextVersion(ctx, tx, model.CollectionPlayers)
		if err != nil {
			return err
		}
		ev, err := model.NewPlayerEvent(model.ChangeDelete, seq, deleted)
		if err != nil {
			return err
		}
		return notify(ctx, tx, ev)
	})
}

// Match operations

func (s *Storage) ListMatches(ctx context.Context) ([]model.Match, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+matchColumns+` FROM matches`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []model.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	storage.SortMatches(matches)
	return matches, nil
}

func (s *Storage) GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	m, err := scanMatch(row)
	if err != nil {
		return nil, notFound(err, model.ErrMatchNotFound)
	}
	return m, nil
}

func (s *Storage) InsertMatch(ctx context.Context, match *model.Match) (*model.Match, error) {
	m := *match
	if m.ID == "" {
		m.ID = model.MatchID(uuid.NewString())
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	var result *model.Match
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `INSERT INTO matches
			(id, player1_id, player2_id, player1_score, player2_score, status, winner_id, version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, nextval('matches_version_seq'), $8)
			RETURNING `+matchColumns,
			m.ID, m.Player1ID, m.Player2ID, m.Player1Score, m.Player2Score, m.Status,
			nullableWinner(m.WinnerID), m.CreatedAt)
		inserted, err := scanMatch(row)
		if err != nil {
			if isUniqueViolation(err) {
				return model.ErrRecordExists
			}
			return err
		}
		ev, err := model.NewMatchEvent(model.ChangeInsert, inserted.Version, inserted)
		if err != nil {
			return err
		}
		result = inserted
		return notify(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) UpdateMatch(ctx context.Context, id model.MatchID, patch model.MatchPatch) (*model.Match, error) {
	var result *model.Match
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanMatch(tx.QueryRowContext(ctx,
			`SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, model.ErrMatchNotFound)
		}
		if err := current.CheckPatch(patch); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `UPDATE matches
			SET player1_score = $2, player2_score = $3, status = $4, winner_id = $5,
				version = nextval('matches_version_seq')
			WHERE id = $1
			RETURNING `+matchColumns,
			id, patch.Player1Score, patch.Player2Score, patch.Status, nullableWinner(patch.WinnerID))
		updated, err := scanMatch(row)
		if err != nil {
			return err
		}
		ev, err := model.NewMatchEvent(model.ChangeUpdate, updated.Version, updated)
		if err != nil {
			return err
		}
		result = updated
		return notify(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) DeleteMatch(ctx context.Context, id model.MatchID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `DELETE FROM matches WHERE id = $1 RETURNING `+matchColumns, id)
		deleted, err := scanMatch(row)
		if err != nil {
			return notFound(err, model.ErrMatchNotFound)
		}
		seq, err := nextVersion(ctx, tx, model.CollectionMatches)
		if err != nil {
			return err
		}
		ev, err := model.NewMatchEvent(model.ChangeDelete, seq, deleted)
		if err != nil {
			return err
		}
		return notify(ctx, tx, ev)
	})
}

// Admin allow-list operations

func (s *Storage) IsAdmin(ctx context.Context, id model.PrincipalID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE user_id = $1)`, id).Scan(&exists)
	return exists, err
}

func (s *Storage) AddAdmin(ctx context.Context, id model.PrincipalID) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO admins (user_id) VALUES ($1) ON CONFLICT DO NOTHING`, id)
	return err
}

func (s *Storage) RemoveAdmin(ctx context.Context, id model.PrincipalID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE user_id = $1`, id)
	return err
}

// Account operations

func (s *Storage) SaveAccount(ctx context.Context, account *model.Account) error {
	created := account.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO accounts (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash`,
		account.ID, storage.NormalizeEmail(account.Email), account.PasswordHash, created)
	return err
}

func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	var a model.Account
	err := s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at FROM accounts WHERE email = $1`,
		storage.NormalizeEmail(email)).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err, model.ErrAccountNotFound)
	}
	return &a, nil
}

// Change feed

func (s *Storage) Subscribe(ctx context.Context, collection model.Collection) (*changefeed.Subscription, error) {
	return s.feed.Subscribe(collection), nil
}
