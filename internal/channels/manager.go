package channels

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zk-armor/openclaw/internal/bus"
)

// Manager owns all registered channels: lifecycle plus routing of outbound
// messages back to the adapter that owns the conversation.
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	dispatch context.CancelFunc
	mu       sync.RWMutex
}

// NewManager creates a channel manager. Channels are registered before StartAll.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

// Register adds a channel under its name.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Get returns a channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Names lists registered channel names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// StartAll starts every registered channel and the outbound dispatch loop.
// One failing channel aborts startup so a half-connected gateway never runs.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatch = cancel
	go m.dispatchOutbound(dispatchCtx)

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, ch := range m.channels {
		slog.Info("starting channel", "channel", name)
		g.Go(func() error { return ch.Start(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("all channels started")
	return nil
}

// StopAll gracefully stops all channels and the outbound loop.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dispatch != nil {
		m.dispatch()
	}

	g := new(errgroup.Group)
	for name, ch := range m.channels {
		slog.Info("stopping channel", "channel", name)
		g.Go(func() error { return ch.Stop(ctx) })
	}
	return g.Wait()
}

// dispatchOutbound routes outbound messages to the owning channel.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		ch, found := m.Get(msg.Channel)
		if !found {
			slog.Warn("outbound message for unknown channel", "channel", msg.Channel)
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			slog.Error("outbound send failed",
				"channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}
