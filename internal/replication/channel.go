package replication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/farmsync/internal/docstore"
)

// ErrRejected wraps a per-document rejection reported by the server.
var ErrRejected = errors.New("document rejected")

func (m *Manager) runChannel(ctx context.Context, h *Handle, remote Remote, coll *docstore.Collection) {
	name := coll.Name()
	logger := m.logger.With(zap.String("collection", name))
	defer func() {
		m.open.Add(-1)
		m.emit(Event{Type: EventComplete, Collection: name})
		h.wg.Done()
	}()

	delay := m.opts.RetryMin
	for {
		m.emit(Event{Type: EventActive, Collection: name})

		err := m.cycle(ctx, remote, coll)
		if ctx.Err() != nil {
			return
		}

		var wait <-chan time.Time
		var notify <-chan struct{}
		if err != nil {
			m.fail(name, err)
			logger.Debug("retrying", zap.Duration("delay", delay))
			wait = time.After(delay)
			delay = min(delay*2, m.opts.RetryMax)
		} else {
			delay = m.opts.RetryMin
			m.emit(Event{Type: EventPaused, Collection: name})
			wait = time.After(m.opts.LiveInterval)
			notify = coll.Notify()
		}

		select {
		case <-ctx.Done():
			return
		case <-wait:
		case <-notify:
		}
	}
}

// cycle pushes then pulls until both directions are caught up.
func (m *Manager) cycle(ctx context.Context, remote Remote, coll *docstore.Collection) error {
	if err := m.push(ctx, remote, coll); err != nil {
		return fmt.Errorf("push %s: %w", coll.Name(), err)
	}
	if err := m.pull(ctx, remote, coll); err != nil {
		return fmt.Errorf("pull %s: %w", coll.Name(), err)
	}
	return nil
}

func (m *Manager) push(ctx context.Context, remote Remote, coll *docstore.Collection) error {
	since, err := coll.Checkpoint(ctx, docstore.DirectionPush)
	if err != nil {
		return err
	}

	for {
		docs, last, err := coll.LocalChanges(ctx, since, m.opts.BatchSize)
		if err != nil {
			return err
		}
		if last == since {
			return nil
		}

		if len(docs) > 0 {
			resp, err := remote.BulkDocs(ctx, m.token(), coll.Name(), docs)
			if err != nil {
				return err
			}

			applied := 0
			for _, res := range resp.Results {
				if res.Error != "" {
					// The server will never accept this revision; report it and move on.
					m.emit(Event{
						Type:       EventError,
						Collection: coll.Name(),
						Direction:  DirectionPush,
						Err:        fmt.Errorf("%w: %s: %s", ErrRejected, res.ID, res.Error),
					})
					continue
				}
				if res.Applied {
					applied++
				}
			}
			m.emit(Event{Type: EventChange, Collection: coll.Name(), Direction: DirectionPush, Docs: len(docs)})
			m.logger.Debug("pushed changes",
				zap.String("collection", coll.Name()),
				zap.Int("docs", len(docs)),
				zap.Int("applied", applied))
		}

		if err := coll.SetCheckpoint(ctx, docstore.DirectionPush, last); err != nil {
			return err
		}
		since = last
	}
}

func (m *Manager) pull(ctx context.Context, remote Remote, coll *docstore.Collection) error {
	since, err := coll.Checkpoint(ctx, docstore.DirectionPull)
	if err != nil {
		return err
	}

	for {
		resp, err := remote.Changes(ctx, m.token(), coll.Name(), since, m.opts.BatchSize)
		if err != nil {
			return err
		}

		applied := 0
		for _, doc := range resp.Results {
			ok, err := coll.Apply(ctx, doc)
			if err != nil {
				return fmt.Errorf("apply %s: %w", doc.ID, err)
			}
			if ok {
				applied++
			}
		}
		if applied > 0 {
			m.emit(Event{Type: EventChange, Collection: coll.Name(), Direction: DirectionPull, Docs: applied})
		}

		if resp.LastSeq > since {
			if err := coll.SetCheckpoint(ctx, docstore.DirectionPull, resp.LastSeq); err != nil {
				return err
			}
			since = resp.LastSeq
		}
		if !resp.HasMore || len(resp.Results) == 0 {
			return nil
		}
	}
}
