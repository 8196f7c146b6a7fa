// Package accounts manages operator credentials and bearer sessions on the
// server.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mamadbah2/farmsync/internal/domain/models"
	"github.com/mamadbah2/farmsync/internal/repository"
)

const (
	credentialsCollection = "_credentials"
	sessionsCollection    = "_sessions"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

type credential struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	UserID       int64  `json:"user_id"`
}

type session struct {
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service authenticates operators against the remote store.
type Service struct {
	store  repository.Store
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *zap.Logger
}

// NewService builds an accounts service issuing sessions valid for ttl.
func NewService(store repository.Store, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Register creates a user record and its credential. The user lands in the
// users collection, so clients replicate it like any other record.
func (s *Service) Register(ctx context.Context, user models.User, password string) (models.User, error) {
	username := normalize(user.Username)
	if username == "" || password == "" {
		return models.User{}, fmt.Errorf("%w: username and password are required", models.ErrInvalidDocument)
	}
	user.Username = username

	if _, err := s.store.Get(ctx, credentialsCollection, username); err == nil {
		return models.User{}, fmt.Errorf("user %s: %w", username, models.ErrAlreadyExists)
	} else if !errors.Is(err, models.ErrNotFound) {
		return models.User{}, fmt.Errorf("lookup credential: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	if user.ID == 0 {
		user.ID = models.NewID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = models.NewTimestamp(s.now())
	}
	body, err := json.Marshal(&user)
	if err != nil {
		return models.User{}, fmt.Errorf("encode user: %w", err)
	}
	if _, err := s.store.Create(ctx, models.CollectionUsers, models.FormatID(user.ID), body); err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}

	cred, err := json.Marshal(credential{Username: username, PasswordHash: string(hash), UserID: user.ID})
	if err != nil {
		return models.User{}, fmt.Errorf("encode credential: %w", err)
	}
	if _, err := s.store.Create(ctx, credentialsCollection, username, cred); err != nil {
		return models.User{}, fmt.Errorf("create credential: %w", err)
	}

	s.logger.Info("user registered", zap.String("username", username), zap.Int64("user_id", user.ID))
	return user, nil
}

// SeedAdmin registers the administrator once; later calls are no-ops.
func (s *Service) SeedAdmin(ctx context.Context, username, password string) error {
	_, err := s.Register(ctx, models.User{
		Username: username,
		Name:     "Administrator",
		Role:     "admin",
		Active:   true,
	}, password)
	if errors.Is(err, models.ErrAlreadyExists) {
		s.logger.Debug("admin already seeded", zap.String("username", normalize(username)))
		return nil
	}
	return err
}

// Login verifies credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (string, json.RawMessage, error) {
	doc, err := s.store.Get(ctx, credentialsCollection, normalize(username))
	if errors.Is(err, models.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("lookup credential: %w", err)
	}

	var cred credential
	if err := json.Unmarshal(doc.Body, &cred); err != nil {
		return "", nil, fmt.Errorf("decode credential: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	user, err := s.store.Get(ctx, models.CollectionUsers, models.FormatID(cred.UserID))
	if err != nil {
		return "", nil, fmt.Errorf("load user %d: %w", cred.UserID, err)
	}

	token := uuid.NewString()
	body, err := json.Marshal(session{UserID: cred.UserID, ExpiresAt: s.now().Add(s.ttl)})
	if err != nil {
		return "", nil, fmt.Errorf("encode session: %w", err)
	}
	if _, err := s.store.Create(ctx, sessionsCollection, token, body); err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("session opened", zap.String("username", cred.Username))
	return token, user.Body, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (json.RawMessage, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	doc, err := s.store.Get(ctx, sessionsCollection, token)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	var sess session
	if err := json.Unmarshal(doc.Body, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !s.now().Before(sess.ExpiresAt) {
		if _, err := s.store.Delete(ctx, sessionsCollection, token); err != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("drop expired session", zap.Error(err))
		}
		return nil, ErrInvalidSession
	}

	user, err := s.store.Get(ctx, models.CollectionUsers, models.FormatID(sess.UserID))
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", sess.UserID, err)
	}
	return user.Body, nil
}

// Logout revokes a session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	_, err := s.store.Delete(ctx, sessionsCollection, token)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
