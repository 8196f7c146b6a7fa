// Package app wires the offline-first client: local store, session, gateway,
// connectivity monitor and replication, plus the periodic jobs that drive them.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/auth"
	"github.com/mamadbah2/farmsync/internal/config"
	"github.com/mamadbah2/farmsync/internal/connectivity"
	"github.com/mamadbah2/farmsync/internal/docstore"
	"github.com/mamadbah2/farmsync/internal/gateway"
	"github.com/mamadbah2/farmsync/internal/replication"
	"github.com/mamadbah2/farmsync/internal/scheduler"
	"github.com/mamadbah2/farmsync/pkg/clients/farmapi"
)

// Job names registered on the client scheduler.
const (
	JobPollPending = "sync-pending"
	JobProbe       = "connectivity-probe"
)

// Client is a fully wired client instance. Close releases the local store.
type Client struct {
	cfg config.ClientConfig

	DB        *docstore.DB
	Registry  *docstore.Registry
	API       *farmapi.Client
	Monitor   *connectivity.Monitor
	Auth      *auth.Context
	Gateway   *gateway.Gateway
	Sync      *replication.Manager
	Scheduler *scheduler.Scheduler

	logger *zap.Logger
}

// NewClient opens the local store in cfg.DataDir and wires every component.
// The monitor starts online; the first probe or failed gateway call corrects it.
func NewClient(ctx context.Context, cfg config.ClientConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := docstore.OpenDir(ctx, cfg.DataDir, logger.Named("docstore"))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	registry := docstore.NewRegistry(db, logger.Named("docstore"))

	api := farmapi.NewClient(cfg.RemoteURL, cfg.GatewayTimeout, logger.Named("farmapi"))

	policy := auth.KeepSessionOffline
	if !cfg.OfflineGrace {
		policy = auth.EndSessionOffline
	}
	monitor := connectivity.NewMonitor(api, true, logger.Named("connectivity"))
	session := auth.NewContext(registry.KV(), sessionRemote{api: api, monitor: monitor}, policy, logger.Named("auth"))

	factory := func(remoteURL string) replication.Remote {
		if remoteURL == api.BaseURL() {
			return api
		}
		return farmapi.NewClient(remoteURL, cfg.GatewayTimeout, logger.Named("farmapi"))
	}
	manager := replication.NewManager(registry, factory, session, replication.Options{
		LiveInterval: cfg.SyncLiveInterval,
		RetryMin:     cfg.SyncRetryMin,
		RetryMax:     cfg.SyncRetryMax,
		BatchSize:    cfg.SyncBatchSize,
	}, logger.Named("sync"))

	c := &Client{
		cfg:       cfg,
		DB:        db,
		Registry:  registry,
		API:       api,
		Monitor:   monitor,
		Auth:      session,
		Gateway:   gateway.New(api, registry, gateway.DefaultRouteTable(), monitor, session, logger.Named("gateway")),
		Sync:      manager,
		Scheduler: scheduler.NewScheduler(time.Local, logger.Named("scheduler")),
		logger:    logger,
	}

	monitor.OnChange(manager.SetOnline)
	manager.OnEvent(c.logEvent)

	if err := c.addJobs(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) addJobs() error {
	jobs := []scheduler.Job{
		{
			Name:    JobPollPending,
			Spec:    scheduler.Every(c.cfg.SyncPendingInterval),
			Timeout: c.cfg.SyncPendingInterval,
			Run:     c.Sync.PollPending,
		},
		{
			Name:    JobProbe,
			Spec:    scheduler.Every(c.cfg.ProbeInterval),
			Timeout: c.cfg.GatewayTimeout,
			Run: func(ctx context.Context) error {
				c.Monitor.Probe(ctx)
				return nil
			},
		},
	}
	for _, job := range jobs {
		if err := c.Scheduler.Add(job); err != nil {
			return err
		}
	}
	return nil
}

// Run restores the session, starts replication and the periodic jobs, and
// blocks until ctx is done. An offline start keeps replication configured
// but stopped until the monitor reports the server again.
func (c *Client) Run(ctx context.Context) error {
	if !c.Auth.CheckAuth(ctx) {
		return auth.ErrNotAuthenticated
	}

	online := c.Monitor.Probe(ctx)
	if _, err := c.Sync.Start(ctx, c.cfg.RemoteURL); err != nil {
		return fmt.Errorf("start sync: %w", err)
	}
	if !online {
		c.Sync.Stop()
	}
	if err := c.Scheduler.RunNow(ctx, JobPollPending); err != nil {
		c.logger.Warn("initial pending count", zap.Error(err))
	}

	c.Scheduler.Start()
	c.logger.Info("client running", zap.String("remote", c.cfg.RemoteURL), zap.Bool("online", online))

	<-ctx.Done()

	c.Scheduler.Stop()
	c.Sync.Stop()
	c.logger.Info("client stopped")
	return nil
}

// Close releases the local store.
func (c *Client) Close() error {
	c.Sync.Stop()
	return c.DB.Close()
}

func (c *Client) logEvent(ev replication.Event) {
	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.String("collection", ev.Collection),
	}
	if ev.Direction != "" {
		fields = append(fields, zap.String("direction", ev.Direction), zap.Int("docs", ev.Docs))
	}

	switch ev.Type {
	case replication.EventError, replication.EventDenied:
		c.logger.Warn("sync event", append(fields, zap.Error(ev.Err))...)
	default:
		c.logger.Debug("sync event", fields...)
	}
}

var errOffline = errors.New("client is offline")

// sessionRemote keeps session calls off the network while the monitor
// reports offline. They fail as network errors so the grace policy applies.
type sessionRemote struct {
	api     *farmapi.Client
	monitor *connectivity.Monitor
}

func (r sessionRemote) Login(ctx context.Context, username, password string) (farmapi.LoginResponse, error) {
	if !r.monitor.Online() {
		return farmapi.LoginResponse{}, &farmapi.NetworkError{Err: errOffline}
	}
	return r.api.Login(ctx, username, password)
}

func (r sessionRemote) Me(ctx context.Context, token string) (json.RawMessage, error) {
	if !r.monitor.Online() {
		return nil, &farmapi.NetworkError{Err: errOffline}
	}
	return r.api.Me(ctx, token)
}

func (r sessionRemote) Logout(ctx context.Context, token string) error {
	if !r.monitor.Online() {
		return &farmapi.NetworkError{Err: errOffline}
	}
	return r.api.Logout(ctx, token)
}
