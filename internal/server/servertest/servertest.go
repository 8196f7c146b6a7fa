// Package servertest runs the real farm server over an in-memory store for
// client side tests.
package servertest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mamadbah2/farmsync/internal/repository/memory"
	"github.com/mamadbah2/farmsync/internal/server/handlers"
	"github.com/mamadbah2/farmsync/internal/server/router"
	"github.com/mamadbah2/farmsync/internal/service/accounts"
	"github.com/mamadbah2/farmsync/internal/service/reporting"
)

// Admin credentials seeded into every test server.
const (
	AdminUsername = "admin"
	AdminPassword = "secret"
)

// Server is a running test server.
type Server struct {
	*httptest.Server
	Store    *memory.Store
	Accounts *accounts.Service
	Token    string
}

// New starts a server with a seeded admin and an open admin session. It is
// closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	accountSvc := accounts.NewService(store, time.Hour, nil)
	if err := accountSvc.SeedAdmin(ctx, AdminUsername, AdminPassword); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	token, _, err := accountSvc.Login(ctx, AdminUsername, AdminPassword)
	if err != nil {
		t.Fatalf("login admin: %v", err)
	}

	engine := router.New(router.Handlers{
		Auth:    handlers.NewAuthHandler(accountSvc, nil),
		Records: handlers.NewRecordHandler(store, nil),
		Sync:    handlers.NewSyncHandler(store, nil),
		Reports: handlers.NewReportHandler(reporting.NewService(store, nil, time.UTC, nil), nil),
	}, nil)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return &Server{Server: srv, Store: store, Accounts: accountSvc, Token: token}
}

// StaticToken hands out a fixed bearer token.
type StaticToken string

// Token returns the token.
func (s StaticToken) Token() string { return string(s) }
