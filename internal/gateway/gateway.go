// Package gateway is the single entry point for REST calls on the client. It
// tries the server first and falls back to the local store when the server
// cannot be reached, so callers see the same response shapes either way.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/docstore"
	"github.com/mamadbah2/farmsync/pkg/clients/farmapi"
)

// Remote performs one REST call against the server.
type Remote interface {
	Do(ctx context.Context, method, path, token string, body []byte) (json.RawMessage, error)
}

// Connectivity reports whether the server should be tried at all.
type Connectivity interface {
	Online() bool
}

// connectivityReporter is implemented by monitors that accept observations;
// a failed call marks the server unreachable until the next probe.
type connectivityReporter interface {
	Set(online bool)
}

// TokenSource supplies the bearer token for online calls.
type TokenSource interface {
	Token() string
}

// Gateway routes requests online first with a local fallback.
type Gateway struct {
	remote   Remote
	registry *docstore.Registry
	routes   *RouteTable
	conn     Connectivity
	tokens   TokenSource
	logger   *zap.Logger
}

// New builds a gateway. A nil route table means DefaultRouteTable.
func New(remote Remote, registry *docstore.Registry, routes *RouteTable, conn Connectivity, tokens TokenSource, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if routes == nil {
		routes = DefaultRouteTable()
	}
	return &Gateway{
		remote:   remote,
		registry: registry,
		routes:   routes,
		conn:     conn,
		tokens:   tokens,
		logger:   logger,
	}
}

// Request performs method on url. While online the server answers; a
// network failure or per-call timeout falls back to the local store. HTTP
// error statuses are returned as *farmapi.HTTPError and never fall back.
// While offline no network call is made.
func (g *Gateway) Request(ctx context.Context, method, url string, body []byte) (json.RawMessage, error) {
	// Reject malformed operations before touching either side.
	if _, _, err := g.routes.Match(method, url); err != nil {
		return nil, err
	}

	if g.conn == nil || g.conn.Online() {
		raw, err := g.remote.Do(ctx, method, url, g.token(), body)
		switch {
		case err == nil:
			return raw, nil
		case ctx.Err() != nil:
			return nil, err
		case !farmapi.IsNetworkError(err):
			return nil, err
		}
		g.logger.Warn("server unreachable, serving from local store",
			zap.String("method", method),
			zap.String("url", url),
			zap.Error(err))
		if r, ok := g.conn.(connectivityReporter); ok {
			r.Set(false)
		}
	}

	return g.Local(ctx, method, url, body)
}

// Local serves a request from the local store only.
func (g *Gateway) Local(ctx context.Context, method, url string, body []byte) (json.RawMessage, error) {
	target, err := g.routes.Resolve(method, url)
	if err != nil {
		return nil, err
	}

	coll, err := g.registry.Collection(target.Collection)
	if err != nil {
		return nil, err
	}

	raw, err := g.execute(ctx, coll, target, body)
	if err != nil {
		g.logger.Error("local store request failed",
			zap.String("op", target.Op.String()),
			zap.String("collection", target.Collection),
			zap.String("id", target.ID),
			zap.Error(err))
		return nil, fmt.Errorf("local %s %s: %w", target.Op, target.Collection, err)
	}
	return raw, nil
}

func (g *Gateway) execute(ctx context.Context, coll *docstore.Collection, target Target, body []byte) (json.RawMessage, error) {
	switch target.Op {
	case OpList:
		docs, err := coll.All(ctx)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, doc := range docs {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.Write(doc.Body)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	case OpGet:
		doc, err := coll.Get(ctx, target.ID)
		return doc.Body, err

	case OpCreate:
		doc, err := coll.Create(ctx, body)
		return doc.Body, err

	case OpUpdate:
		doc, err := coll.Update(ctx, target.ID, body)
		return doc.Body, err

	case OpDelete:
		doc, err := coll.Delete(ctx, target.ID)
		return doc.Body, err
	}
	return nil, errors.Join(ErrUnsupportedOperation, fmt.Errorf("operation %d", target.Op))
}

func (g *Gateway) token() string {
	if g.tokens == nil {
		return ""
	}
	return g.tokens.Token()
}
