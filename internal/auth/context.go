// Package auth keeps the client session: the bearer token and the user it
// belongs to, persisted so a restart or an offline period keeps the user in.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/pkg/clients/farmapi"
)

// Storage keys.
const (
	TokenKey = "token"
	UserKey  = "user"
)

// State of the session.
type State int

const (
	Unauthenticated State = iota
	Checking
	Authenticated
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// OfflineGracePolicy decides what CheckAuth does when the server cannot be
// reached to validate a stored token.
type OfflineGracePolicy int

const (
	// KeepSessionOffline trusts the stored session until the server answers.
	KeepSessionOffline OfflineGracePolicy = iota
	// EndSessionOffline logs the user out when validation is impossible.
	EndSessionOffline
)

// ErrNotAuthenticated is returned when an operation needs a session.
var ErrNotAuthenticated = errors.New("not authenticated")

// Storage persists string values across restarts.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// Remote is the part of the server API the session needs.
type Remote interface {
	Login(ctx context.Context, username, password string) (farmapi.LoginResponse, error)
	Me(ctx context.Context, token string) (json.RawMessage, error)
	Logout(ctx context.Context, token string) error
}

// Context is the client session.
type Context struct {
	mu    sync.RWMutex
	state State
	token string
	user  json.RawMessage

	storage Storage
	remote  Remote
	policy  OfflineGracePolicy
	logger  *zap.Logger
}

// NewContext builds an unauthenticated session. Call CheckAuth to restore a
// stored one.
func NewContext(storage Storage, remote Remote, policy OfflineGracePolicy, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		storage: storage,
		remote:  remote,
		policy:  policy,
		logger:  logger,
	}
}

// State returns the current session state.
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Token returns the bearer token, empty when logged out.
func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// User returns the JSON of the logged in user, nil when logged out.
func (c *Context) User() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Login persists the session and marks it authenticated.
func (c *Context) Login(ctx context.Context, token string, user json.RawMessage) error {
	if token == "" {
		return fmt.Errorf("login: %w", ErrNotAuthenticated)
	}
	if len(user) == 0 {
		user = json.RawMessage("null")
	}

	if err := c.storage.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := c.storage.Set(ctx, UserKey, string(user)); err != nil {
		return fmt.Errorf("store user: %w", err)
	}

	c.mu.Lock()
	c.token, c.user, c.state = token, user, Authenticated
	c.mu.Unlock()
	return nil
}

// Authenticate exchanges credentials with the server and logs in.
func (c *Context) Authenticate(ctx context.Context, username, password string) error {
	resp, err := c.remote.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("authenticate %s: %w", username, err)
	}
	return c.Login(ctx, resp.Token, resp.User)
}

// Logout clears the session from storage and memory.
func (c *Context) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.token, c.user, c.state = "", nil, Unauthenticated
	c.mu.Unlock()

	if err := c.storage.Delete(ctx, TokenKey, UserKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// SignOut revokes the token on the server when it can, then logs out. A
// failed revocation never keeps the local session alive.
func (c *Context) SignOut(ctx context.Context) error {
	if token := c.Token(); token != "" && c.remote != nil {
		if err := c.remote.Logout(ctx, token); err != nil {
			c.logger.Warn("token revocation failed", zap.Error(err))
		}
	}
	return c.Logout(ctx)
}

// CheckAuth restores the stored session and validates it with the server.
// An HTTP rejection ends the session. When the server is unreachable the
// OfflineGracePolicy decides.
func (c *Context) CheckAuth(ctx context.Context) bool {
	c.mu.Lock()
	previous := c.state
	c.state = Checking
	c.mu.Unlock()

	token, ok, err := c.storage.Get(ctx, TokenKey)
	if err != nil {
		c.logger.Error("read stored token", zap.Error(err))
		c.setState(previous)
		return false
	}
	if !ok || token == "" {
		c.clear(ctx)
		return false
	}

	user, err := c.remote.Me(ctx, token)
	switch {
	case err == nil:
		if err := c.Login(ctx, token, user); err != nil {
			c.logger.Error("refresh stored session", zap.Error(err))
			return false
		}
		return true

	case ctx.Err() != nil:
		c.setState(previous)
		return false

	case farmapi.IsNetworkError(err):
		if c.policy == EndSessionOffline {
			c.logger.Info("server unreachable, ending session", zap.Error(err))
			c.clear(ctx)
			return false
		}
		c.logger.Info("server unreachable, keeping stored session", zap.Error(err))
		stored, _, err := c.storage.Get(ctx, UserKey)
		if err != nil {
			c.logger.Error("read stored user", zap.Error(err))
		}
		c.mu.Lock()
		c.token, c.user, c.state = token, json.RawMessage(stored), Authenticated
		c.mu.Unlock()
		return true

	default:
		c.logger.Info("stored token rejected", zap.Error(err))
		c.clear(ctx)
		return false
	}
}

func (c *Context) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Context) clear(ctx context.Context) {
	if err := c.Logout(ctx); err != nil {
		c.logger.Error("clear session", zap.Error(err))
	}
}
