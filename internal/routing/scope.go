package routing

// Policy controls who may trigger the agent at a location.
type Policy string

const (
	PolicyOpen      Policy = "open"      // accept everyone
	PolicyAllowlist Policy = "allowlist" // static + stored allowlist only
	PolicyPairing   Policy = "pairing"   // DM-only: sender must be paired
	PolicyDisabled  Policy = "disabled"  // reject everything
)

// ReactionMode controls which emoji reactions produce system events.
type ReactionMode string

const (
	ReactionOff       ReactionMode = "off"
	ReactionOwn       ReactionMode = "own" // only reactions to the bot's own messages
	ReactionAll       ReactionMode = "all"
	ReactionAllowlist ReactionMode = "allowlist"
)

// Scope is one configuration fragment in the override chain
// (global → channel → group/guild → topic/thread).
//
// Unset fields inherit from the parent scope; set fields override entirely.
// AllowFrom follows replace semantics: a nested non-nil AllowFrom discards
// the parent's list instead of merging with it, so a topic allowlist can be
// strictly narrower than its group's.
type Scope struct {
	Policy                Policy
	AllowFrom             []string // nil = inherit; empty non-nil = nobody
	RequireMention        *bool
	ReactionNotifications ReactionMode
}

// GroupScope is a group/guild entry with optional nested topic/thread scopes.
type GroupScope struct {
	Scope
	Topics map[string]Scope
}

// ScopeTree is the full override chain for one channel, already detached from
// any concrete config format. Groups is keyed by group/guild ID, with "*" as
// a fallback entry matching any group.
type ScopeTree struct {
	Global  Scope
	Channel Scope
	Groups  map[string]GroupScope
}

// EffectivePolicy is the fully resolved scope for one concrete location.
// Every field is populated after resolution.
type EffectivePolicy struct {
	Policy                Policy
	AllowFrom             []string
	RequireMention        bool
	ReactionNotifications ReactionMode
}

// overlay applies the set fields of s on top of e.
func (e *EffectivePolicy) overlay(s Scope) {
	if s.Policy != "" {
		e.Policy = s.Policy
	}
	if s.AllowFrom != nil {
		e.AllowFrom = s.AllowFrom
	}
	if s.RequireMention != nil {
		e.RequireMention = *s.RequireMention
	}
	if s.ReactionNotifications != "" {
		e.ReactionNotifications = s.ReactionNotifications
	}
}

// ResolveEffectivePolicy walks the override chain for a location and returns
// its effective policy. Pure: same tree + location always yields the same
// result, and repeated resolution is idempotent.
//
// Walk order: global defaults → channel scope → matching group/guild entry
// (exact ID, else "*") → nested topic/thread scope. DMs never consult group
// entries. Unknown policy or reaction values fall back to the documented
// defaults rather than erroring.
func ResolveEffectivePolicy(tree ScopeTree, loc Location) EffectivePolicy {
	eff := EffectivePolicy{
		ReactionNotifications: ReactionOwn,
		RequireMention:        loc.IsGroupLike(),
	}
	if loc.Kind == LocationDirect {
		eff.Policy = PolicyPairing
	} else {
		eff.Policy = PolicyOpen
	}

	eff.overlay(tree.Global)
	eff.overlay(tree.Channel)

	if loc.IsGroupLike() {
		group, ok := tree.Groups[loc.ContainerID()]
		if !ok {
			group, ok = tree.Groups[Wildcard]
		}
		if ok {
			eff.overlay(group.Scope)
			if nested := loc.NestedID(); nested != "" {
				if topic, ok := group.Topics[nested]; ok {
					eff.overlay(topic)
				}
			}
		}
	}

	eff.Policy = normalizePolicy(eff.Policy, loc.Kind)
	eff.ReactionNotifications = normalizeReactionMode(eff.ReactionNotifications)
	return eff
}

// normalizePolicy maps unknown values to the per-kind default.
// Pairing makes no sense outside DMs; group-like locations fall back to open.
func normalizePolicy(p Policy, kind LocationKind) Policy {
	switch p {
	case PolicyOpen, PolicyAllowlist, PolicyDisabled:
		return p
	case PolicyPairing:
		if kind == LocationDirect {
			return p
		}
		return PolicyOpen
	default:
		if kind == LocationDirect {
			return PolicyPairing
		}
		return PolicyOpen
	}
}

func normalizeReactionMode(m ReactionMode) ReactionMode {
	switch m {
	case ReactionOff, ReactionOwn, ReactionAll, ReactionAllowlist:
		return m
	default:
		return ReactionOwn
	}
}
