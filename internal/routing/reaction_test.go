package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewlyAdded(t *testing.T) {
	tests := []struct {
		name string
		old  []string
		new  []string
		want []string
	}{
		{
			name: "first reaction",
			new:  []string{"👍"},
			want: []string{"👍"},
		},
		{
			name: "added on top of existing",
			old:  []string{"👍"},
			new:  []string{"👍", "❤️"},
			want: []string{"❤️"},
		},
		{
			name: "removal only yields nothing",
			old:  []string{"👍", "❤️"},
			new:  []string{"👍"},
			want: nil,
		},
		{
			name: "order of the new set preserved",
			old:  []string{"x"},
			new:  []string{"c", "x", "a", "b"},
			want: []string{"c", "a", "b"},
		},
		{
			name: "duplicates in new set collapse",
			new:  []string{"👍", "👍"},
			want: []string{"👍"},
		},
		{
			name: "empty strings skipped",
			new:  []string{"", "👍"},
			want: []string{"👍"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := ReactionUpdate{OldEmoji: tt.old, NewEmoji: tt.new}
			assert.Equal(t, tt.want, u.NewlyAdded())
		})
	}
}

func TestNewlyAdded_TwoAddedInOrder(t *testing.T) {
	u := ReactionUpdate{
		OldEmoji: []string{"👍"},
		NewEmoji: []string{"👍", "🔥", "🎉"},
	}
	assert.Equal(t, []string{"🔥", "🎉"}, u.NewlyAdded())
}

func TestShouldNotifyReaction(t *testing.T) {
	human := Identity{ID: "42", Username: "alice"}
	added := func(u ReactionUpdate) ReactionUpdate {
		u.NewEmoji = []string{"👍"}
		return u
	}

	t.Run("bot reactors excluded in every mode", func(t *testing.T) {
		u := added(ReactionUpdate{Reactor: Identity{ID: "9", IsBot: true}, MessageAuthorBot: true})
		for _, mode := range []ReactionMode{ReactionOff, ReactionOwn, ReactionAll, ReactionAllowlist} {
			assert.False(t, ShouldNotifyReaction(mode, u, []string{"*"}), "mode %s", mode)
		}
	})

	t.Run("removal-only never notifies", func(t *testing.T) {
		u := ReactionUpdate{Reactor: human, MessageAuthorBot: true, OldEmoji: []string{"👍"}}
		assert.False(t, ShouldNotifyReaction(ReactionAll, u, nil))
	})

	t.Run("off never notifies", func(t *testing.T) {
		u := added(ReactionUpdate{Reactor: human, MessageAuthorBot: true})
		assert.False(t, ShouldNotifyReaction(ReactionOff, u, nil))
	})

	t.Run("own notifies only on bot-authored messages", func(t *testing.T) {
		assert.True(t, ShouldNotifyReaction(ReactionOwn,
			added(ReactionUpdate{Reactor: human, MessageAuthorBot: true}), nil))
		assert.False(t, ShouldNotifyReaction(ReactionOwn,
			added(ReactionUpdate{Reactor: human, MessageAuthorBot: false}), nil))
	})

	t.Run("all notifies regardless of message author", func(t *testing.T) {
		assert.True(t, ShouldNotifyReaction(ReactionAll,
			added(ReactionUpdate{Reactor: human}), nil))
	})

	t.Run("allowlist matches the reactor, not the message author", func(t *testing.T) {
		u := added(ReactionUpdate{Reactor: human, MessageAuthorBot: false})
		assert.True(t, ShouldNotifyReaction(ReactionAllowlist, u, []string{"@alice"}))
		assert.False(t, ShouldNotifyReaction(ReactionAllowlist, u, []string{"bob"}))
		assert.False(t, ShouldNotifyReaction(ReactionAllowlist, u, nil))
	})

	t.Run("unknown mode behaves as own", func(t *testing.T) {
		assert.True(t, ShouldNotifyReaction("sometimes",
			added(ReactionUpdate{Reactor: human, MessageAuthorBot: true}), nil))
		assert.False(t, ShouldNotifyReaction("sometimes",
			added(ReactionUpdate{Reactor: human, MessageAuthorBot: false}), nil))
	})
}
