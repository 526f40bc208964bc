// Package store defines the persistence interfaces the gateway consumes.
package store

import "context"

// PairingStore is the dynamically persisted allowlist. Senders denied under
// the "pairing" policy receive a short code; once an operator approves the
// code, the sender ID joins the channel's allowlist.
//
// Readers must treat store failures as an empty list — the access engine
// fails closed, never open.
type PairingStore interface {
	// RequestPairing issues (or re-issues) a pairing code for a sender.
	RequestPairing(ctx context.Context, channel, senderID string) (code string, err error)

	// ApprovePairing redeems a code and returns the sender it belonged to.
	ApprovePairing(ctx context.Context, channel, code string) (senderID string, err error)

	// IsPaired reports whether a sender has been approved for a channel.
	IsPaired(ctx context.Context, channel, senderID string) bool

	// ListAllowFrom returns all approved sender IDs for a channel.
	ListAllowFrom(ctx context.Context, channel string) ([]string, error)

	// ListPending returns outstanding pairing requests for a channel
	// ("" = all channels), newest first.
	ListPending(ctx context.Context, channel string) ([]PairingRequest, error)

	Close() error
}

// PairingRequest is one outstanding pairing code.
type PairingRequest struct {
	Channel   string
	SenderID  string
	Code      string
	CreatedAt int64 // unix seconds
}
