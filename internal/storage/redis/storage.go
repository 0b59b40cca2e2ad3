package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/storage"
	"github.com/mcoot/pingpong/internal/storage/changefeed"
)

// ErrTxConflict is returned when an optimistic transaction keeps losing races
var ErrTxConflict = errors.New("redis transaction retries exhausted")

// Storage is a Redis-backed implementation of the storage interface.
// Writes run in WATCH/MULTI transactions that stamp a per-collection sequence
// number and PUBLISH the change event in the same transaction. A pattern
// subscription forwards those events into a local change feed.
type Storage struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger

	feed   *changefeed.Feed
	pubsub *redis.PubSub
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a new Redis storage instance
func New(cfg Config, logger *slog.Logger) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	s, err := NewWithClient(client, cfg, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config, logger *slog.Logger) (*Storage, error) {
	s := &Storage{
		client: client,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "redis-storage")),
		feed:   changefeed.New(cfg.ChangeBuffer, logger),
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.connectTimeout())
	defer cancel()

	// Wait for the subscription to be confirmed so no write is missed
	s.pubsub = client.PSubscribe(ctx, changesPattern())
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return nil, fmt.Errorf("subscribing to change channels: %w", err)
	}

	s.wg.Add(1)
	go s.forward()
	return s, nil
}

func (s *Storage) connectTimeout() time.Duration {
	if s.cfg.ConnectTimeout <= 0 {
		return 5 * time.Second
	}
	return s.cfg.ConnectTimeout
}

// forward relays pubsub messages into the local feed until the pubsub closes
func (s *Storage) forward() {
	defer s.wg.Done()
	for msg := range s.pubsub.Channel() {
		var ev model.ChangeEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			s.logger.Warn("dropping malformed change message",
				slog.String("channel", msg.Channel),
				slog.String("error", err.Error()))
			continue
		}
		s.feed.Publish(ev)
	}
}

// Close stops the change forwarder and closes the Redis connection
func (s *Storage) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.pubsub.Close()
		s.wg.Wait()
		s.feed.Close()
		err = s.client.Close()
	})
	return err
}

// Ensure Storage implements the interface
var _ storage.Store = (*Storage)(nil)

// txn runs fn in an optimistic transaction over keys, retrying on conflicts
func (s *Storage) txn(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	retries := s.cfg.MaxTxRetries
	if retries <= 0 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("transaction conflict, retrying",
				slog.Any("keys", keys), slog.Int("attempt", i+1))
			continue
		}
		return err
	}
	return ErrTxConflict
}

// publishEvent queues a PUBLISH of ev inside the transaction pipeline
func publishEvent(ctx context.Context, pipe redis.Pipeliner, ev model.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe.Publish(ctx, changesChannel(ev.Collection), data)
	return nil
}

func getJSON[T any](ctx context.Context, cmd redis.Cmdable, key string, notFound error) (*T, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound
		}
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// mgetJSON loads every key in one round trip, skipping keys that vanished
// between reading the index and the values
func mgetJSON[T any](ctx context.Context, client *redis.Client, keys []string) ([]T, error) {
	if len(keys) == 0 {
		return []T{}, nil
	}
	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(values))
	for _, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Player operations

func (s *Storage) ListPlayers(ctx context.Context) ([]model.Player, error) {
	ids, err := s.client.SMembers(ctx, playersIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = playerKey(model.PlayerID(id))
	}
	players, err := mgetJSON[model.Player](ctx, s.client, keys)
	if err != nil {
		return nil, err
	}
	storage.SortPlayers(players)
	return players, nil
}

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.Player, error) {
	return getJSON[model.Player](ctx, s.client, playerKey(id), model.ErrPlayerNotFound)
}

func (s *Storage) FindPlayer(ctx context.Context, name, room string) (*model.Player, error) {
	id, err := s.client.Get(ctx, registrationIndexKey(name, room)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}
	return s.GetPlayer(ctx, model.PlayerID(id))
}

func (s *Storage) InsertPlayer(ctx context.Context, player *model.Player) (*model.Player, error) {
	p := *player
	if p.ID == "" {
		p.ID = model.PlayerID(uuid.NewString())
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	key := playerKey(p.ID)

	err := s.txn(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return model.ErrRecordExists
		}

		seq, err := tx.Incr(ctx, seqKey(model.CollectionPlayers)).Result()
		if err != nil {
			return err
		}
		p.Version = seq

		data, err := json.Marshal(&p)
		if err != nil {
			return err
		}
		ev, err := model.NewPlayerEvent(model.ChangeInsert, seq, &p)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, playersIndexKey(), string(p.ID))
			pipe.SetNX(ctx, registrationIndexKey(p.Name, p.Nickname), string(p.ID), 0)
			return publishEvent(ctx, pipe, ev)
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Storage) ApplyPlayerStats(ctx context.Context, id model.PlayerID, delta model.StatsDelta) (*model.Player, error) {
	key := playerKey(id)
	var result *model.Player

	err := s.txn(ctx, func(tx *redis.Tx) error {
		p, err := getJSON[model.Player](ctx, tx, key, model.ErrPlayerNotFound)
		if err != nil {
			return err
		}

		seq, err := tx.Incr(ctx, seqKey(model.CollectionPlayers)).Result()
		if err != nil {
			return err
		}
		p.Wins += delta.Wins
		p.Losses += delta.Losses
		p.Version = seq

		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		ev, err := model.NewPlayerEvent(model.ChangeUpdate, seq, p)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return publishEvent(ctx, pipe, ev)
		})
		if err == nil {
			result = p
		}
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) DeletePlayer(ctx context.Context, id model.PlayerID) error {
	key := playerKey(id)

	return s.txn(ctx, func(tx *redis.Tx) error {
		p, err := getJSON[model.Player](ctx, tx, key, model.ErrPlayerNotFound)
		if err != nil {
			return err
		}

		seq, err := tx.Incr(ctx, seqKey(model.CollectionPlayers)).Result()
		if err != nil {
			return err
		}
		ev, err := model.NewPlayerEvent(model.ChangeDelete, seq, p)
		if err != nil {
			return err
		}

		regKey := registrationIndexKey(p.Name, p.Nickname)
		owner, err := tx.Get(ctx, regKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, playersIndexKey(), string(id))
			if owner == string(id) {
				pipe.Del(ctx, regKey)
			}
			return publishEvent(ctx, pipe, ev)
		})
		return err
	}, key)
}

// Match operations

func (s *Storage) ListMatches(ctx context.Context) ([]model.Match, error) {
	ids, err := s.client.SMembers(ctx, matchesIndexKey()).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = matchKey(model.MatchID(id))
	}
	matches, err := mgetJSON[model.Match](ctx, s.client, keys)
	if err != nil {
		return nil, err
	}
	storage.SortMatches(matches)
	return matches, nil
}

func (s *Storage) GetMatch(ctx context.Context, id model.MatchID) (*model.Match, error) {
	return getJSON[model.Match](ctx, s.client, matchKey(id), model.ErrMatchNotFound)
}

func (s *Storage) InsertMatch(ctx context.Context, match *model.Match) (*model.Match, error) {
	m := *match
	if m.ID == "" {
		m.ID = model.MatchID(uuid.NewString())
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	key := matchKey(m.ID)

	err := s.txn(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return model.ErrRecordExists
		}

		seq, err := tx.Incr(ctx, seqKey(model.CollectionMatches)).Result()
		if err != nil {
			return err
		}
		m.Version = seq

		data, err := json.Marshal(&m)
		if err != nil {
			return err
		}
		ev, err := model.NewMatchEvent(model.ChangeInsert, seq, &m)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, matchesIndexKey(), string(m.ID))
			return publishEvent(ctx, pipe, ev)
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Storage) UpdateMatch(ctx context.Context, id model.MatchID, patch model.MatchPatch) (*model.Match, error) {
	key := matchKey(id)
	var result *model.Match

	err := s.txn(ctx, func(tx *redis.Tx) error {
		m, err := getJSON[model.Match](ctx, tx, key, model.ErrMatchNotFound)
		if err != nil {
			return err
		}
		if err := m.CheckPatch(patch); err != nil {
			return err
		}

		seq, err := tx.Incr(ctx, seqKey(model.CollectionMatches)).Result()
		if err != nil {
			return err
		}
		patch.Apply(m)
		m.Version = seq

		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		ev, err := model.NewMatchEvent(model.ChangeUpdate, seq, m)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return publishEvent(ctx, pipe, ev)
		})
		if err == nil {
			result = m
		}
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Storage) DeleteMatch(ctx context.Context, id model.MatchID) error {
	key := matchKey(id)

	return s.txn(ctx, func(tx *redis.Tx) error {
		m, err := getJSON[model.Match](ctx, tx, key, model.ErrMatchNotFound)
		if err != nil {
			return err
		}

		seq, err := tx.Incr(ctx, seqKey(model.CollectionMatches)).Result()
		if err != nil {
			return err
		}
		ev, err := model.NewMatchEvent(model.ChangeDelete, seq, m)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, matchesIndexKey(), string(id))
			return publishEvent(ctx, pipe, ev)
		})
		return err
	}, key)
}

// Admin allow-list operations

func (s *Storage) IsAdmin(ctx context.Context, id model.PrincipalID) (bool, error) {
	return s.client.SIsMember(ctx, adminsKey(), string(id)).Result()
}

func (s *Storage) AddAdmin(ctx context.Context, id model.PrincipalID) error {
	return s.client.SAdd(ctx, adminsKey(), string(id)).Err()
}

func (s *Storage) RemoveAdmin(ctx context.Context, id model.PrincipalID) error {
	return s.client.SRem(ctx, adminsKey(), string(id)).Err()
}

// Account operations

func (s *Storage) SaveAccount(ctx context.Context, account *model.Account) error {
	a := *account
	a.Email = storage.NormalizeEmail(a.Email)
	data, err := json.Marshal(&a)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, accountKey(a.Email), data, 0).Err()
}

func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return getJSON[model.Account](ctx, s.client, accountKey(storage.NormalizeEmail(email)), model.ErrAccountNotFound)
}

// Change feed

func (s *Storage) Subscribe(ctx context.Context, collection model.Collection) (*changefeed.Subscription, error) {
	return s.feed.Subscribe(collection), nil
}
