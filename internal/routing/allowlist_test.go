package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchAllowlist(t *testing.T) {
	tests := []struct {
		name  string
		allow []string
		id    Identity
		want  bool
	}{
		{
			name:  "empty list admits no one",
			allow: nil,
			id:    Identity{ID: "123"},
			want:  false,
		},
		{
			name:  "empty non-nil list admits no one",
			allow: []string{},
			id:    Identity{ID: "123"},
			want:  false,
		},
		{
			name:  "wildcard admits everyone",
			allow: []string{"*"},
			id:    Identity{ID: "anything"},
			want:  true,
		},
		{
			name:  "exact id match",
			allow: []string{"386246614"},
			id:    Identity{ID: "386246614"},
			want:  true,
		},
		{
			name:  "prefixed entry matches bare id",
			allow: []string{"user:386246614"},
			id:    Identity{ID: "386246614"},
			want:  true,
		},
		{
			name:  "prefixed sender matches bare entry",
			allow: []string{"386246614"},
			id:    Identity{ID: "id:386246614"},
			want:  true,
		},
		{
			name:  "username match is case-insensitive",
			allow: []string{"Alice"},
			id:    Identity{ID: "1", Username: "alice"},
			want:  true,
		},
		{
			name:  "at-prefixed username entry",
			allow: []string{"@alice"},
			id:    Identity{ID: "1", Username: "Alice"},
			want:  true,
		},
		{
			name:  "tag match is case-insensitive",
			allow: []string{"alice#1234"},
			id:    Identity{ID: "1", Tag: "Alice#1234"},
			want:  true,
		},
		{
			name:  "no match",
			allow: []string{"bob", "2"},
			id:    Identity{ID: "1", Username: "alice"},
			want:  false,
		},
		{
			name:  "empty identity fields never match real entries",
			allow: []string{"alice"},
			id:    Identity{},
			want:  false,
		},
		{
			name:  "empty entry does not match empty username",
			allow: []string{""},
			id:    Identity{ID: "1"},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchAllowlist(tt.allow, tt.id))
		})
	}
}

func TestUnionAllowFrom(t *testing.T) {
	t.Run("empty store returns config as-is", func(t *testing.T) {
		cfg := []string{"a", "b"}
		assert.Equal(t, cfg, UnionAllowFrom(cfg, nil))
	})

	t.Run("config order first, store appended", func(t *testing.T) {
		got := UnionAllowFrom([]string{"*", "a"}, []string{"b", "c"})
		assert.Equal(t, []string{"*", "a", "b", "c"}, got)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		got := UnionAllowFrom([]string{"a", "b"}, []string{"b", "a", "c"})
		assert.Equal(t, []string{"a", "b", "c"}, got)
	})

	t.Run("empty entries dropped", func(t *testing.T) {
		got := UnionAllowFrom([]string{"", "a"}, []string{""})
		assert.Equal(t, []string{"a"}, got)
	})
}
