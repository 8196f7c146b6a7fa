package connectivity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mamadbah2/farmsync/pkg/clients/farmapi"
)

type proberFunc func(ctx context.Context) error

func (f proberFunc) Health(ctx context.Context) error { return f(ctx) }

func TestMonitor_ListenersFireOnTransitionsOnly(t *testing.T) {
	m := NewMonitor(nil, true, nil)

	var seen []bool
	m.OnChange(func(online bool) { seen = append(seen, online) })

	m.Set(true)
	m.Set(false)
	m.Set(false)
	m.Set(true)

	assert.Equal(t, []bool{false, true}, seen)
}

func TestMonitor_ForceOfflineOverridesProbe(t *testing.T) {
	m := NewMonitor(proberFunc(func(context.Context) error { return nil }), true, nil)

	var seen []bool
	m.OnChange(func(online bool) { seen = append(seen, online) })

	m.ForceOffline(true)
	assert.False(t, m.Online())
	assert.False(t, m.Probe(context.Background()))

	m.ForceOffline(false)
	assert.True(t, m.Online())
	assert.Equal(t, []bool{false, true}, seen)
}

func TestMonitor_Probe(t *testing.T) {
	var err error
	m := NewMonitor(proberFunc(func(context.Context) error { return err }), false, nil)

	assert.True(t, m.Probe(context.Background()))

	err = &farmapi.NetworkError{Err: errors.New("connection refused")}
	assert.False(t, m.Probe(context.Background()))

	err = &farmapi.HTTPError{StatusCode: 503}
	assert.True(t, m.Probe(context.Background()))
}

func TestMonitor_ProbeIgnoresCancelledContext(t *testing.T) {
	m := NewMonitor(proberFunc(func(ctx context.Context) error { return ctx.Err() }), true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, m.Probe(ctx))
}
