package routing

// ReactionUpdate describes one platform reaction event: the full emoji sets
// before and after the update, the reacting user, and whether the reacted-to
// message was authored by this bot.
type ReactionUpdate struct {
	Reactor          Identity
	MessageAuthorBot bool
	OldEmoji         []string
	NewEmoji         []string
}

// NewlyAdded returns the emoji present in the new set but not the old one,
// preserving new-set order. Removal-only transitions yield an empty result.
func (u ReactionUpdate) NewlyAdded() []string {
	old := make(map[string]bool, len(u.OldEmoji))
	for _, e := range u.OldEmoji {
		old[e] = true
	}
	var added []string
	seen := make(map[string]bool, len(u.NewEmoji))
	for _, e := range u.NewEmoji {
		if e == "" || old[e] || seen[e] {
			continue
		}
		seen[e] = true
		added = append(added, e)
	}
	return added
}

// ShouldNotifyReaction decides whether a reaction update produces system
// events at all. Per-emoji fan-out is the caller's job via NewlyAdded.
//
//   - bot reactors are always excluded, in every mode
//   - "off" never notifies
//   - "own" notifies only for reactions to the bot's own messages
//   - "all" notifies for any non-bot reactor
//   - "allowlist" notifies iff the reactor matches the allowlist, regardless
//     of message authorship
//
// Unknown modes behave as "own". Removal-only updates never notify because
// NewlyAdded is empty.
func ShouldNotifyReaction(mode ReactionMode, u ReactionUpdate, allowFrom []string) bool {
	if u.Reactor.IsBot {
		return false
	}
	if len(u.NewlyAdded()) == 0 {
		return false
	}

	switch normalizeReactionMode(mode) {
	case ReactionOff:
		return false
	case ReactionAll:
		return true
	case ReactionAllowlist:
		return MatchAllowlist(allowFrom, u.Reactor)
	default: // ReactionOwn
		return u.MessageAuthorBot
	}
}
