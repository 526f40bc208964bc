package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func groupLoc() Location  { return Location{Kind: LocationGroup, ID: "-100123"} }
func directLoc() Location { return Location{Kind: LocationDirect, ID: "42"} }

func TestDecide_PolicyTable(t *testing.T) {
	sender := Identity{ID: "42", Username: "alice"}

	tests := []struct {
		name       string
		req        AccessRequest
		want       bool
		wantReason DecisionReason
	}{
		{
			name: "disabled denies everyone",
			req: AccessRequest{
				Policy: EffectivePolicy{Policy: PolicyDisabled},
				Sender: sender, Location: directLoc(),
			},
			want: false, wantReason: ReasonDisabled,
		},
		{
			name: "open admits everyone",
			req: AccessRequest{
				Policy: EffectivePolicy{Policy: PolicyOpen},
				Sender: sender, Location: directLoc(),
			},
			want: true, wantReason: ReasonOpen,
		},
		{
			name: "pairing denies unpaired sender",
			req: AccessRequest{
				Policy: EffectivePolicy{Policy: PolicyPairing},
				Sender: sender, Location: directLoc(),
			},
			want: false, wantReason: ReasonNotAllowlisted,
		},
		{
			name: "pairing admits paired sender",
			req: AccessRequest{
				Policy:         EffectivePolicy{Policy: PolicyPairing},
				Sender:         sender,
				Location:       directLoc(),
				StoreAllowFrom: []string{"42"},
			},
			want: true, wantReason: ReasonAllowlisted,
		},
		{
			name: "pairing ignores config allow_from",
			req: AccessRequest{
				Policy:   EffectivePolicy{Policy: PolicyPairing, AllowFrom: []string{"42", "*"}},
				Sender:   sender,
				Location: directLoc(),
			},
			want: false, wantReason: ReasonNotAllowlisted,
		},
		{
			name: "allowlist admits configured username",
			req: AccessRequest{
				Policy:   EffectivePolicy{Policy: PolicyAllowlist, AllowFrom: []string{"@alice"}},
				Sender:   sender,
				Location: directLoc(),
			},
			want: true, wantReason: ReasonAllowlisted,
		},
		{
			name: "allowlist admits store-approved sender",
			req: AccessRequest{
				Policy:         EffectivePolicy{Policy: PolicyAllowlist, AllowFrom: []string{"bob"}},
				Sender:         sender,
				Location:       directLoc(),
				StoreAllowFrom: []string{"42"},
			},
			want: true, wantReason: ReasonAllowlisted,
		},
		{
			name: "allowlist denies unknown sender",
			req: AccessRequest{
				Policy:   EffectivePolicy{Policy: PolicyAllowlist, AllowFrom: []string{"bob"}},
				Sender:   sender,
				Location: directLoc(),
			},
			want: false, wantReason: ReasonNotAllowlisted,
		},
		{
			name: "allowlist with empty list denies everyone",
			req: AccessRequest{
				Policy:   EffectivePolicy{Policy: PolicyAllowlist, AllowFrom: []string{}},
				Sender:   sender,
				Location: directLoc(),
			},
			want: false, wantReason: ReasonNotAllowlisted,
		},
		{
			name: "bogus policy value fails closed",
			req: AccessRequest{
				Policy:   EffectivePolicy{Policy: "bogus"},
				Sender:   sender,
				Location: directLoc(),
			},
			want: false, wantReason: ReasonDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.req)
			assert.Equal(t, tt.want, got.Allowed)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestDecide_MentionGate(t *testing.T) {
	sender := Identity{ID: "42", Username: "alice"}
	open := EffectivePolicy{Policy: PolicyOpen, RequireMention: true}

	t.Run("group message without mention denied", func(t *testing.T) {
		got := Decide(AccessRequest{Policy: open, Sender: sender, Location: groupLoc()})
		assert.False(t, got.Allowed)
		assert.Equal(t, ReasonNoMention, got.Reason)
	})

	t.Run("mention admits", func(t *testing.T) {
		got := Decide(AccessRequest{Policy: open, Sender: sender, Location: groupLoc(), WasMentioned: true})
		assert.True(t, got.Allowed)
		assert.Equal(t, ReasonOpen, got.Reason)
	})

	t.Run("reply to bot counts as implicit mention", func(t *testing.T) {
		got := Decide(AccessRequest{Policy: open, Sender: sender, Location: groupLoc(), IsReplyToBot: true})
		assert.True(t, got.Allowed)
	})

	t.Run("mention gate never applies to dms", func(t *testing.T) {
		got := Decide(AccessRequest{Policy: open, Sender: sender, Location: directLoc()})
		assert.True(t, got.Allowed)
	})

	t.Run("mention does not bypass allowlist", func(t *testing.T) {
		policy := EffectivePolicy{Policy: PolicyAllowlist, AllowFrom: []string{"bob"}, RequireMention: true}
		got := Decide(AccessRequest{Policy: policy, Sender: sender, Location: groupLoc(), WasMentioned: true})
		assert.False(t, got.Allowed)
		assert.Equal(t, ReasonNotAllowlisted, got.Reason)
	})

	t.Run("require_mention false admits without mention", func(t *testing.T) {
		policy := EffectivePolicy{Policy: PolicyOpen}
		got := Decide(AccessRequest{Policy: policy, Sender: sender, Location: groupLoc()})
		assert.True(t, got.Allowed)
	})
}

// A sender on the group allowlist posting in a topic with its own narrower
// allowlist is denied: the topic list replaces the group list entirely.
func TestDecide_TopicAllowlistReplacesGroupList(t *testing.T) {
	tree := ScopeTree{
		Channel: Scope{Policy: PolicyAllowlist},
		Groups: map[string]GroupScope{
			"-100555": {
				Scope:  Scope{AllowFrom: []string{"123"}},
				Topics: map[string]Scope{"7": {AllowFrom: []string{"999"}}},
			},
		},
	}
	loc := Location{Kind: LocationGroup, ID: "-100555", Threaded: true, ThreadID: "7"}
	eff := ResolveEffectivePolicy(tree, loc)

	got := Decide(AccessRequest{
		Policy:       eff,
		Sender:       Identity{ID: "123"},
		Location:     loc,
		WasMentioned: true,
	})
	assert.False(t, got.Allowed)
	assert.Equal(t, ReasonNotAllowlisted, got.Reason)
}

func TestDecide_MalformedEvents(t *testing.T) {
	open := EffectivePolicy{Policy: PolicyOpen}

	t.Run("missing sender id denies", func(t *testing.T) {
		got := Decide(AccessRequest{Policy: open, Sender: Identity{}, Location: directLoc()})
		assert.False(t, got.Allowed)
	})

	t.Run("missing location id denies", func(t *testing.T) {
		got := Decide(AccessRequest{Policy: open, Sender: Identity{ID: "1"}, Location: Location{Kind: LocationDirect}})
		assert.False(t, got.Allowed)
	})
}

func TestPairedIDMatch_Prefixes(t *testing.T) {
	assert.True(t, pairedIDMatch([]string{"user:42"}, "42"))
	assert.True(t, pairedIDMatch([]string{"42"}, "user:42"))
	assert.False(t, pairedIDMatch([]string{"43"}, "42"))
	assert.False(t, pairedIDMatch([]string{""}, ""))
}
