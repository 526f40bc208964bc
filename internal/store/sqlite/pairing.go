// Package sqlite implements the pairing store on an embedded sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zk-armor/openclaw/internal/store"
)

const (
	// maxPendingPerChannel caps outstanding codes so a flood of unknown
	// senders cannot grow the table unbounded.
	maxPendingPerChannel = 64

	// codeTTL is how long a pairing code stays redeemable.
	codeTTL = time.Hour
)

const schema = `
CREATE TABLE IF NOT EXISTS pairing_requests (
	channel    TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	code       TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (channel, sender_id)
);
CREATE TABLE IF NOT EXISTS paired_senders (
	channel     TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	approved_at INTEGER NOT NULL,
	PRIMARY KEY (channel, sender_id)
);
`

// PairingStore persists pairing codes and approved senders in sqlite.
type PairingStore struct {
	db *sql.DB
}

var _ store.PairingStore = (*PairingStore)(nil)

// Open creates or opens the pairing database at path.
func Open(path string) (*PairingStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pairing db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open pairing db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init pairing schema: %w", err)
	}
	return &PairingStore{db: db}, nil
}

// Close releases the database handle.
func (s *PairingStore) Close() error { return s.db.Close() }

// RequestPairing issues a pairing code for a sender, reusing an unexpired
// outstanding code for the same sender.
func (s *PairingStore) RequestPairing(ctx context.Context, channel, senderID string) (string, error) {
	now := time.Now().Unix()
	cutoff := time.Now().Add(-codeTTL).Unix()

	var code string
	err := s.db.QueryRowContext(ctx,
		`SELECT code FROM pairing_requests WHERE channel = ? AND sender_id = ? AND created_at >= ?`,
		channel, senderID, cutoff).Scan(&code)
	if err == nil {
		return code, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("lookup pairing request: %w", err)
	}

	// Expire stale codes, then enforce the per-channel cap.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pairing_requests WHERE created_at < ?`, cutoff); err != nil {
		return "", fmt.Errorf("prune pairing requests: %w", err)
	}
	var pending int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pairing_requests WHERE channel = ?`, channel).Scan(&pending); err != nil {
		return "", fmt.Errorf("count pairing requests: %w", err)
	}
	if pending >= maxPendingPerChannel {
		return "", fmt.Errorf("too many pending pairing requests for channel %s", channel)
	}

	code = newCode()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO pairing_requests (channel, sender_id, code, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (channel, sender_id) DO UPDATE SET code = excluded.code, created_at = excluded.created_at`,
		channel, senderID, code, now); err != nil {
		return "", fmt.Errorf("insert pairing request: %w", err)
	}
	return code, nil
}

// ApprovePairing redeems a code: moves the sender into paired_senders and
// deletes the request.
func (s *PairingStore) ApprovePairing(ctx context.Context, channel, code string) (string, error) {
	cutoff := time.Now().Add(-codeTTL).Unix()

	var senderID string
	err := s.db.QueryRowContext(ctx,
		`SELECT sender_id FROM pairing_requests WHERE channel = ? AND code = ? AND created_at >= ?`,
		channel, strings.TrimSpace(code), cutoff).Scan(&senderID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("pairing code not found or expired")
	}
	if err != nil {
		return "", fmt.Errorf("lookup pairing code: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin pairing approval: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO paired_senders (channel, sender_id, approved_at) VALUES (?, ?, ?)`,
		channel, senderID, time.Now().Unix()); err != nil {
		return "", fmt.Errorf("record paired sender: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pairing_requests WHERE channel = ? AND sender_id = ?`,
		channel, senderID); err != nil {
		return "", fmt.Errorf("delete pairing request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit pairing approval: %w", err)
	}
	return senderID, nil
}

// IsPaired reports approval without surfacing storage errors: a broken store
// reads as "not paired" so the access gate fails closed.
func (s *PairingStore) IsPaired(ctx context.Context, channel, senderID string) bool {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM paired_senders WHERE channel = ? AND sender_id = ?`,
		channel, senderID).Scan(&one)
	return err == nil
}

// ListAllowFrom returns all approved sender IDs for a channel.
func (s *PairingStore) ListAllowFrom(ctx context.Context, channel string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sender_id FROM paired_senders WHERE channel = ? ORDER BY approved_at`, channel)
	if err != nil {
		return nil, fmt.Errorf("list paired senders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan paired sender: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPending returns outstanding unexpired pairing requests, newest first.
func (s *PairingStore) ListPending(ctx context.Context, channel string) ([]store.PairingRequest, error) {
	cutoff := time.Now().Add(-codeTTL).Unix()
	query := `SELECT channel, sender_id, code, created_at FROM pairing_requests
	          WHERE created_at >= ? ORDER BY created_at DESC`
	args := []any{cutoff}
	if channel != "" {
		query = `SELECT channel, sender_id, code, created_at FROM pairing_requests
		         WHERE created_at >= ? AND channel = ? ORDER BY created_at DESC`
		args = append(args, channel)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pairing requests: %w", err)
	}
	defer rows.Close()

	var out []store.PairingRequest
	for rows.Next() {
		var r store.PairingRequest
		if err := rows.Scan(&r.Channel, &r.SenderID, &r.Code, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pairing request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// newCode derives a short human-typable pairing code.
func newCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
