package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestResolveEffectivePolicy_Defaults(t *testing.T) {
	t.Run("dm defaults to pairing", func(t *testing.T) {
		eff := ResolveEffectivePolicy(ScopeTree{}, Location{Kind: LocationDirect, ID: "42"})
		assert.Equal(t, PolicyPairing, eff.Policy)
		assert.Equal(t, ReactionOwn, eff.ReactionNotifications)
		assert.False(t, eff.RequireMention)
	})

	t.Run("group defaults to open with mention required", func(t *testing.T) {
		eff := ResolveEffectivePolicy(ScopeTree{}, Location{Kind: LocationGroup, ID: "-100"})
		assert.Equal(t, PolicyOpen, eff.Policy)
		assert.True(t, eff.RequireMention)
	})
}

func TestResolveEffectivePolicy_OverrideChain(t *testing.T) {
	tree := ScopeTree{
		Global:  Scope{ReactionNotifications: ReactionAll},
		Channel: Scope{Policy: PolicyAllowlist, AllowFrom: []string{"alice"}},
		Groups: map[string]GroupScope{
			"-100555": {
				Scope: Scope{AllowFrom: []string{"bob"}},
				Topics: map[string]Scope{
					"7": {AllowFrom: []string{"carol"}, RequireMention: boolPtr(false)},
				},
			},
			"*": {
				Scope: Scope{Policy: PolicyDisabled},
			},
		},
	}

	t.Run("channel scope overrides global", func(t *testing.T) {
		eff := ResolveEffectivePolicy(tree, Location{Kind: LocationDirect, ID: "42"})
		assert.Equal(t, PolicyAllowlist, eff.Policy)
		assert.Equal(t, []string{"alice"}, eff.AllowFrom)
		assert.Equal(t, ReactionAll, eff.ReactionNotifications)
	})

	t.Run("group entry replaces channel allow_from", func(t *testing.T) {
		eff := ResolveEffectivePolicy(tree, Location{Kind: LocationGroup, ID: "-100555"})
		assert.Equal(t, []string{"bob"}, eff.AllowFrom)
		assert.Equal(t, PolicyAllowlist, eff.Policy) // inherited, group did not set it
	})

	t.Run("topic allow_from replaces group allow_from entirely", func(t *testing.T) {
		loc := Location{Kind: LocationGroup, ID: "-100555", Threaded: true, ThreadID: "7"}
		eff := ResolveEffectivePolicy(tree, loc)
		assert.Equal(t, []string{"carol"}, eff.AllowFrom)
		assert.False(t, eff.RequireMention)
	})

	t.Run("unmatched group falls back to wildcard entry", func(t *testing.T) {
		eff := ResolveEffectivePolicy(tree, Location{Kind: LocationGroup, ID: "-100999"})
		assert.Equal(t, PolicyDisabled, eff.Policy)
	})

	t.Run("dm never consults group entries", func(t *testing.T) {
		eff := ResolveEffectivePolicy(tree, Location{Kind: LocationDirect, ID: "-100555"})
		assert.Equal(t, []string{"alice"}, eff.AllowFrom)
	})

	t.Run("guild channel resolves nested scope by channel id", func(t *testing.T) {
		guildTree := ScopeTree{
			Groups: map[string]GroupScope{
				"guild1": {
					Scope:  Scope{Policy: PolicyAllowlist},
					Topics: map[string]Scope{"chan2": {Policy: PolicyOpen}},
				},
			},
		}
		loc := Location{Kind: LocationChannel, ID: "chan2", ParentID: "guild1"}
		eff := ResolveEffectivePolicy(guildTree, loc)
		assert.Equal(t, PolicyOpen, eff.Policy)
	})
}

func TestResolveEffectivePolicy_Idempotent(t *testing.T) {
	tree := ScopeTree{
		Channel: Scope{Policy: PolicyAllowlist, AllowFrom: []string{"a"}, RequireMention: boolPtr(false)},
	}
	loc := Location{Kind: LocationGroup, ID: "-100", Threaded: true, ThreadID: "3"}

	first := ResolveEffectivePolicy(tree, loc)
	second := ResolveEffectivePolicy(tree, loc)
	assert.Equal(t, first, second)
}

func TestResolveEffectivePolicy_Normalization(t *testing.T) {
	t.Run("unknown policy falls back to per-kind default", func(t *testing.T) {
		tree := ScopeTree{Channel: Scope{Policy: "bogus"}}
		assert.Equal(t, PolicyPairing,
			ResolveEffectivePolicy(tree, Location{Kind: LocationDirect, ID: "1"}).Policy)
		assert.Equal(t, PolicyOpen,
			ResolveEffectivePolicy(tree, Location{Kind: LocationGroup, ID: "2"}).Policy)
	})

	t.Run("pairing outside dm falls back to open", func(t *testing.T) {
		tree := ScopeTree{Channel: Scope{Policy: PolicyPairing}}
		assert.Equal(t, PolicyOpen,
			ResolveEffectivePolicy(tree, Location{Kind: LocationGroup, ID: "2"}).Policy)
	})

	t.Run("unknown reaction mode falls back to own", func(t *testing.T) {
		tree := ScopeTree{Channel: Scope{ReactionNotifications: "sometimes"}}
		eff := ResolveEffectivePolicy(tree, Location{Kind: LocationDirect, ID: "1"})
		assert.Equal(t, ReactionOwn, eff.ReactionNotifications)
	})
}
