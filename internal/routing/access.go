package routing

// DecisionReason explains an access decision.
type DecisionReason string

const (
	ReasonOpen           DecisionReason = "open"
	ReasonAllowlisted    DecisionReason = "allowlisted"
	ReasonNotAllowlisted DecisionReason = "not-allowlisted"
	ReasonDisabled       DecisionReason = "disabled"
	ReasonNoMention      DecisionReason = "no-mention"
)

// Decision is the outcome of one access evaluation. Consumed immediately by
// the caller, never stored.
type Decision struct {
	Allowed bool
	Reason  DecisionReason
}

// AccessRequest bundles everything one access evaluation needs.
// StoreAllowFrom is the pairing-store snapshot, fetched once by the caller;
// a failed store read maps to an empty slice (fail closed).
type AccessRequest struct {
	Policy         EffectivePolicy
	Sender         Identity
	Location       Location
	StoreAllowFrom []string

	// Mention signals for group-like locations. A reply to a message the bot
	// authored counts as an implicit mention upstream, so callers set
	// WasMentioned or IsReplyToBot accordingly.
	WasMentioned bool
	IsReplyToBot bool
}

// Decide evaluates the access decision table, first matching rule wins:
//
//  1. disabled policy → deny
//  2. open policy → allow
//  3. pairing (DMs) → allow iff the sender ID is in the store snapshot
//  4. allowlist → allow iff the matcher admits against config ∪ store
//  5. group-like location with require_mention and neither a mention nor a
//     reply to the bot → deny, even when rules 1–4 would have allowed
//
// Malformed events (missing sender or location) deny rather than erroring:
// an access decision is a gate, not a required success path.
func Decide(req AccessRequest) Decision {
	if req.Sender.ID == "" || req.Location.ID == "" {
		return Decision{Allowed: false, Reason: ReasonNotAllowlisted}
	}

	d := basePolicyDecision(req)

	// Mention requirement is an additional necessary condition layered on top
	// of the admit policy, not an alternative to it.
	if d.Allowed && req.Location.IsGroupLike() && req.Policy.RequireMention {
		if !req.WasMentioned && !req.IsReplyToBot {
			return Decision{Allowed: false, Reason: ReasonNoMention}
		}
	}

	return d
}

func basePolicyDecision(req AccessRequest) Decision {
	switch req.Policy.Policy {
	case PolicyDisabled:
		return Decision{Allowed: false, Reason: ReasonDisabled}

	case PolicyOpen:
		return Decision{Allowed: true, Reason: ReasonOpen}

	case PolicyPairing:
		// Pairing admission is store membership exactly, independent of any
		// config-declared allowlist.
		if pairedIDMatch(req.StoreAllowFrom, req.Sender.ID) {
			return Decision{Allowed: true, Reason: ReasonAllowlisted}
		}
		return Decision{Allowed: false, Reason: ReasonNotAllowlisted}

	case PolicyAllowlist:
		union := UnionAllowFrom(req.Policy.AllowFrom, req.StoreAllowFrom)
		if MatchAllowlist(union, req.Sender) {
			return Decision{Allowed: true, Reason: ReasonAllowlisted}
		}
		return Decision{Allowed: false, Reason: ReasonNotAllowlisted}

	default:
		// ResolveEffectivePolicy normalizes policies; anything else here is a
		// hand-built EffectivePolicy with a bogus value. Fail closed.
		return Decision{Allowed: false, Reason: ReasonDisabled}
	}
}

// pairedIDMatch checks exact sender-ID membership in the store snapshot,
// tolerating provider prefixes on stored entries.
func pairedIDMatch(stored []string, senderID string) bool {
	id := stripIDPrefix(senderID)
	if id == "" {
		return false
	}
	for _, entry := range stored {
		if stripIDPrefix(entry) == id {
			return true
		}
	}
	return false
}
