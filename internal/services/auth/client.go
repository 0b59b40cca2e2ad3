package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcoot/pingpong/internal/localstore"
)

// SessionKey is the local storage key holding the current session token
const SessionKey = "auth_session"

// StateListener is notified with the new session (nil when signed out)
type StateListener func(session *Session)

// Client is the auth provider as seen by one client process. It keeps the
// current session, persists its token in local storage and notifies listeners
// whenever the session changes.
type Client struct {
	service *Service
	local   localstore.Store
	logger  *slog.Logger

	mu        sync.Mutex
	session   *Session
	restored  bool
	listeners map[int]StateListener
	nextID    int
}

// NewClient creates a Client backed by the given service and local storage
func NewClient(service *Service, local localstore.Store, logger *slog.Logger) *Client {
	return &Client{
		service:   service,
		local:     local,
		logger:    logger.With(slog.String("component", "auth-client")),
		listeners: make(map[int]StateListener),
	}
}

// GetSession returns the current session, or nil if signed out. A stored token
// is restored on first use; an expired or invalid token is discarded and
// listeners are told the session ended.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if !c.restored {
		c.restored = true
		token, ok, err := c.local.Get(ctx, SessionKey)
		if err != nil {
			c.restored = false
			c.mu.Unlock()
			return nil, err
		}
		if ok {
			if session, err := c.service.Validate(token); err == nil {
				c.session = session
			} else {
				c.logger.Info("discarding stored session", slog.String("error", err.Error()))
				_ = c.local.Remove(ctx, SessionKey)
			}
		}
	}

	session := c.session
	if session == nil {
		c.mu.Unlock()
		return nil, nil
	}

	// Re-check expiry on every read
	if _, err := c.service.Validate(session.Token); err != nil {
		c.session = nil
		_ = c.local.Remove(ctx, SessionKey)
		c.mu.Unlock()
		c.logger.Info("session expired", slog.String("principal_id", string(session.Principal.ID)))
		c.notify(nil)
		return nil, nil
	}
	c.mu.Unlock()

	cp := *session
	return &cp, nil
}

// SignInWithPassword authenticates and makes the result the current session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	session, err := c.service.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	if err := c.local.Set(ctx, SessionKey, session.Token); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.session = session
	c.restored = true
	c.mu.Unlock()

	c.logger.Info("signed in", slog.String("principal_id", string(session.Principal.ID)))
	cp := *session
	c.notify(&cp)
	return session, nil
}

// SignOut ends the current session. Listeners are notified even if there was
// no session, so dependants can re-resolve.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.session = nil
	c.restored = true
	c.mu.Unlock()

	err := c.local.Remove(ctx, SessionKey)
	c.notify(nil)
	if err != nil {
		return fmt.Errorf("removing stored session: %w", err)
	}
	return nil
}

// OnAuthStateChange registers a listener and returns a func that removes it
func (c *Client) OnAuthStateChange(fn StateListener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// notify calls listeners outside the lock so they may call back into the client
func (c *Client) notify(session *Session) {
	c.mu.Lock()
	listeners := make([]StateListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(session)
	}
}
