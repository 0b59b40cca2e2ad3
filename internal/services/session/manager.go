// Package session tracks who is acting on this client: nobody, a registered
// player, or an allow-listed administrator.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mcoot/pingpong/internal/localstore"
	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/services/auth"
	"github.com/mcoot/pingpong/internal/storage"
)

// PlayerKey is the local storage key holding the signed-in player snapshot
const PlayerKey = "ppUser"

// AuthProvider is the subset of the auth client the manager needs
type AuthProvider interface {
	GetSession(ctx context.Context) (*auth.Session, error)
	OnAuthStateChange(fn auth.StateListener) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context) error
}

// PlayerRegistry finds or creates players by registration key
type PlayerRegistry interface {
	FindOrCreatePlayer(ctx context.Context, name, room string) (*model.Player, bool, error)
}

// Manager holds the current identity
type Manager struct {
	local    localstore.Store
	auth     AuthProvider
	store    storage.Store
	registry PlayerRegistry
	logger   *slog.Logger

	mu     sync.RWMutex
	player *model.Player
	admin  *model.Principal

	unlisten func()
	cancel   context.CancelFunc
	once     sync.Once
}

// New creates a Manager with no identity
func New(local localstore.Store, authProvider AuthProvider, store storage.Store, registry PlayerRegistry, logger *slog.Logger) *Manager {
	return &Manager{
		local:    local,
		auth:     authProvider,
		store:    store,
		registry: registry,
		logger:   logger.With(slog.String("component", "session")),
	}
}

// Start restores the stored player, resolves any admin session and follows
// auth state changes until Close
func (m *Manager) Start(ctx context.Context) error {
	if err := m.RestoreSession(ctx); err != nil {
		m.logger.Warn("could not restore player session", slog.String("error", err.Error()))
	}

	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.unlisten = m.auth.OnAuthStateChange(func(*auth.Session) {
		m.ResolveAdminSession(listenCtx)
	})

	m.ResolveAdminSession(ctx)
	return nil
}

// Close stops following auth state changes
func (m *Manager) Close() {
	m.once.Do(func() {
		if m.unlisten != nil {
			m.unlisten()
		}
		if m.cancel != nil {
			m.cancel()
		}
	})
}

// Current returns the acting identity. An admin session takes precedence
// over a stored player, which becomes active again if admin is revoked.
func (m *Manager) Current() model.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.admin != nil {
		return model.AdminIdentity(*m.admin)
	}
	if m.player != nil {
		return model.PlayerIdentity(*m.player)
	}
	return model.NoIdentity()
}

// CurrentPlayer returns the stored player, even while an admin session is active
func (m *Manager) CurrentPlayer() (model.Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.player == nil {
		return model.Player{}, false
	}
	return *m.player, true
}

// RestoreSession loads the player saved in local storage. A corrupt value is
// removed and leaves no player signed in.
func (m *Manager) RestoreSession(ctx context.Context) error {
	raw, ok, err := m.local.Get(ctx, PlayerKey)
	if err != nil {
		return fmt.Errorf("reading stored player: %w", err)
	}
	if !ok {
		return nil
	}

	var p model.Player
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.ID == "" || p.Name == "" {
		m.logger.Warn("discarding corrupt player session")
		if err := m.local.Remove(ctx, PlayerKey); err != nil {
			m.logger.Warn("failed to remove corrupt player session", slog.String("error", err.Error()))
		}
		m.mu.Lock()
		m.player = nil
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	m.player = &p
	m.mu.Unlock()
	m.logger.Debug("player session restored", slog.String("player_id", string(p.ID)))
	return nil
}

// ResolveAdminSession checks the current auth session against the admins
// allow-list. Any failure resolves to not-admin.
func (m *Manager) ResolveAdminSession(ctx context.Context) {
	session, err := m.auth.GetSession(ctx)
	if err != nil {
		m.logger.Warn("could not read auth session", slog.String("error", err.Error()))
		m.setAdmin(nil)
		return
	}
	if session == nil {
		m.setAdmin(nil)
		return
	}

	ok, err := m.store.IsAdmin(ctx, session.Principal.ID)
	if err != nil {
		m.logger.Warn("admin check failed",
			slog.String("principal_id", string(session.Principal.ID)),
			slog.String("error", err.Error()))
		m.setAdmin(nil)
		return
	}
	if !ok {
		m.setAdmin(nil)
		return
	}
	p := session.Principal
	m.setAdmin(&p)
}

func (m *Manager) setAdmin(p *model.Principal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admin = p
}

// RegisterOrSignIn signs in the player registered with name and room,
// registering them first if needed. On any failure the identity is unchanged.
func (m *Manager) RegisterOrSignIn(ctx context.Context, name, room string) (*model.Player, error) {
	name = strings.TrimSpace(name)
	room = strings.TrimSpace(room)
	if name == "" {
		return nil, model.ErrNameRequired
	}
	if room == "" {
		return nil, model.ErrRoomRequired
	}

	player, created, err := m.registry.FindOrCreatePlayer(ctx, name, room)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(player)
	if err != nil {
		return nil, err
	}
	if err := m.local.Set(ctx, PlayerKey, string(data)); err != nil {
		return nil, fmt.Errorf("saving player session: %w", err)
	}

	m.mu.Lock()
	m.player = player
	m.mu.Unlock()

	m.logger.Info("player signed in",
		slog.String("player_id", string(player.ID)),
		slog.Bool("created", created))
	cp := *player
	return &cp, nil
}

// SignInAdmin signs in with a password and requires the principal to be on
// the admins allow-list. Principals that are not are signed out again.
func (m *Manager) SignInAdmin(ctx context.Context, email, password string) (model.Principal, error) {
	session, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return model.Principal{}, err
	}

	ok, err := m.store.IsAdmin(ctx, session.Principal.ID)
	if err != nil || !ok {
		if signOutErr := m.auth.SignOut(ctx); signOutErr != nil {
			m.logger.Warn("forced sign-out failed", slog.String("error", signOutErr.Error()))
		}
		m.setAdmin(nil)
		if err != nil {
			return model.Principal{}, fmt.Errorf("checking admin access: %w", err)
		}
		m.logger.Warn("sign-in by principal without admin access",
			slog.String("principal_id", string(session.Principal.ID)))
		return model.Principal{}, model.ErrNotAuthorized
	}

	m.setAdmin(&session.Principal)
	m.logger.Info("admin signed in", slog.String("principal_id", string(session.Principal.ID)))
	return session.Principal, nil
}

// SignOut forgets the stored player and ends any auth session. The identity is
// cleared even if either step fails.
func (m *Manager) SignOut(ctx context.Context) error {
	var errs []error
	if err := m.local.Remove(ctx, PlayerKey); err != nil {
		errs = append(errs, fmt.Errorf("removing player session: %w", err))
	}
	if err := m.auth.SignOut(ctx); err != nil {
		errs = append(errs, err)
	}

	m.mu.Lock()
	m.player = nil
	m.admin = nil
	m.mu.Unlock()
	return errors.Join(errs...)
}
