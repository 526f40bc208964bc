package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/zk-armor/openclaw/internal/bus"
	"github.com/zk-armor/openclaw/internal/config"
	"github.com/zk-armor/openclaw/internal/routing"
	"github.com/zk-armor/openclaw/internal/store"
)

// fakePairingStore serves a fixed allowlist, optionally failing every read.
type fakePairingStore struct {
	allow []string
	fail  bool
	reads int
}

func (f *fakePairingStore) RequestPairing(context.Context, string, string) (string, error) {
	return "ABCD1234", nil
}

func (f *fakePairingStore) ApprovePairing(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakePairingStore) IsPaired(_ context.Context, _, senderID string) bool {
	for _, id := range f.allow {
		if id == senderID {
			return true
		}
	}
	return false
}

func (f *fakePairingStore) ListAllowFrom(context.Context, string) ([]string, error) {
	f.reads++
	if f.fail {
		return nil, errors.New("store down")
	}
	return f.allow, nil
}

func (f *fakePairingStore) ListPending(context.Context, string) ([]store.PairingRequest, error) {
	return nil, nil
}

func (f *fakePairingStore) Close() error { return nil }

func newTestBase(ps store.PairingStore, access config.ChannelAccessConfig) *BaseChannel {
	cfg := config.Default()
	cfg.Channels.Telegram.ChannelAccessConfig = access
	return NewBaseChannel("telegram", bus.New(), cfg, ps)
}

func TestAuthorize_PairingDM(t *testing.T) {
	ps := &fakePairingStore{allow: []string{"42"}}
	base := newTestBase(ps, config.ChannelAccessConfig{})
	loc := routing.Location{Kind: routing.LocationDirect, ID: "42"}

	t.Run("paired sender admitted", func(t *testing.T) {
		v := base.Authorize(context.Background(), routing.Identity{ID: "42"}, loc, false, false)
		if !v.Decision.Allowed {
			t.Errorf("expected allow, got %+v", v.Decision)
		}
	})

	t.Run("unpaired sender denied with pairing policy surfaced", func(t *testing.T) {
		v := base.Authorize(context.Background(), routing.Identity{ID: "99"}, loc, false, false)
		if v.Decision.Allowed {
			t.Error("expected deny")
		}
		if v.Policy.Policy != routing.PolicyPairing {
			t.Errorf("verdict policy = %q, want pairing", v.Policy.Policy)
		}
	})
}

func TestAuthorize_StoreFailureFailsClosed(t *testing.T) {
	ps := &fakePairingStore{allow: []string{"42"}, fail: true}
	base := newTestBase(ps, config.ChannelAccessConfig{})
	loc := routing.Location{Kind: routing.LocationDirect, ID: "42"}

	v := base.Authorize(context.Background(), routing.Identity{ID: "42"}, loc, false, false)
	if v.Decision.Allowed {
		t.Error("broken store must deny, not admit")
	}
}

func TestAuthorize_SingleStoreReadPerDecision(t *testing.T) {
	ps := &fakePairingStore{}
	base := newTestBase(ps, config.ChannelAccessConfig{})
	loc := routing.Location{Kind: routing.LocationDirect, ID: "1"}

	base.Authorize(context.Background(), routing.Identity{ID: "1"}, loc, false, false)
	if ps.reads != 1 {
		t.Errorf("expected exactly one store read, got %d", ps.reads)
	}
}

func TestAuthorize_OpenPolicySkipsStore(t *testing.T) {
	ps := &fakePairingStore{}
	base := newTestBase(ps, config.ChannelAccessConfig{GroupPolicy: "open"})
	loc := routing.Location{Kind: routing.LocationGroup, ID: "-100"}

	v := base.Authorize(context.Background(), routing.Identity{ID: "1"}, loc, true, false)
	if !v.Decision.Allowed {
		t.Errorf("expected allow, got %+v", v.Decision)
	}
	if ps.reads != 0 {
		t.Errorf("open policy must not read the store, got %d reads", ps.reads)
	}
}

func TestAuthorize_NilStore(t *testing.T) {
	base := newTestBase(nil, config.ChannelAccessConfig{})
	loc := routing.Location{Kind: routing.LocationDirect, ID: "1"}

	v := base.Authorize(context.Background(), routing.Identity{ID: "1"}, loc, false, false)
	if v.Decision.Allowed {
		t.Error("nil store under pairing policy must deny")
	}
}

func TestResolvePolicy_SeesConfigReload(t *testing.T) {
	cfg := config.Default()
	base := NewBaseChannel("telegram", bus.New(), cfg, nil)
	loc := routing.Location{Kind: routing.LocationGroup, ID: "-100"}

	if got := base.ResolvePolicy(loc); got.Policy != routing.PolicyOpen {
		t.Fatalf("pre-reload policy = %q, want open", got.Policy)
	}

	// The config watcher swaps reloaded data into the shared Config in place;
	// the next decision must see it.
	fresh := config.Default()
	fresh.Channels.Telegram.GroupPolicy = "disabled"
	cfg.ReplaceFrom(fresh)

	if got := base.ResolvePolicy(loc); got.Policy != routing.PolicyDisabled {
		t.Errorf("post-reload policy = %q, want disabled", got.Policy)
	}
}

func TestPublishInbound_LocationMetadata(t *testing.T) {
	msgBus := bus.New()
	base := NewBaseChannel("discord", msgBus, config.Default(), nil)
	base.SetAgentID("default")

	loc := routing.Location{
		Kind: routing.LocationChannel, ID: "chan1", ParentID: "guild1",
		Threaded: true, ThreadID: "thr5",
	}
	base.PublishInbound(routing.Identity{ID: "42"}, loc, "hello", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msg, ok := msgBus.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no message published")
	}
	if msg.Metadata["parent_id"] != "guild1" ||
		msg.Metadata["threaded"] != "true" ||
		msg.Metadata["thread_id"] != "thr5" {
		t.Errorf("location metadata incomplete: %v", msg.Metadata)
	}
	if msg.PeerKind != "channel" || msg.ChatID != "chan1" || msg.AgentID != "default" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
}
