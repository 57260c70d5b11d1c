// Package store persists turn snapshots to SQLite so a session can be
// inspected or resumed after a crash. Snapshots are append-only; loading a
// turn returns its most recent snapshot.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/inference/promptloop"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// TurnStore records turn snapshots. Safe for concurrent use; SQLite
// serializes writes.
type TurnStore struct {
	db *sql.DB
}

// TurnInfo summarizes one stored turn.
type TurnInfo struct {
	TurnID    string
	SessionID string
	Phase     string
	Snapshots int
	UpdatedAt time.Time
}

// Open creates or opens the snapshot database at the given path. The
// schema is created on first use.
func Open(dbPath string) (*TurnStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	s := &TurnStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return s, nil
}

func (s *TurnStore) Close() error {
	return s.db.Close()
}

func (s *TurnStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turn_snapshots (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		turn_id    TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		phase      TEXT NOT NULL,
		payload    TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turn_snapshots_turn
		ON turn_snapshots (turn_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveTurn appends a snapshot of the turn at the given phase.
func (s *TurnStore) SaveTurn(ctx context.Context, t *turns.Turn, phase string) error {
	if t == nil {
		return errors.New("turn is nil")
	}
	payload, err := turns.MarshalTurnYAML(t)
	if err != nil {
		return errors.Wrap(err, "marshal turn")
	}
	sessionID, _ := t.Metadata[turns.MetaKeySessionID].(string)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turn_snapshots (turn_id, session_id, phase, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.ID, sessionID, phase, string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrapf(err, "save turn %s", t.ID)
	}
	return nil
}

// LoadTurn returns the most recent snapshot of the given turn. Returns
// (nil, nil) when no snapshot exists.
func (s *TurnStore) LoadTurn(ctx context.Context, turnID string) (*turns.Turn, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM turn_snapshots WHERE turn_id = ? ORDER BY id DESC LIMIT 1`,
		turnID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load turn %s", turnID)
	}
	t, err := turns.UnmarshalTurnYAML([]byte(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "unmarshal turn %s", turnID)
	}
	return t, nil
}

// ListTurns returns one summary row per stored turn, most recently
// updated first.
func (s *TurnStore) ListTurns(ctx context.Context) ([]TurnInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, session_id, phase, COUNT(*), MAX(created_at)
		 FROM turn_snapshots
		 GROUP BY turn_id
		 ORDER BY MAX(id) DESC`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list turns")
	}
	defer func() { _ = rows.Close() }()

	var out []TurnInfo
	for rows.Next() {
		var info TurnInfo
		var updated string
		if err := rows.Scan(&info.TurnID, &info.SessionID, &info.Phase, &info.Snapshots, &updated); err != nil {
			return nil, errors.Wrap(err, "scan turn row")
		}
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			info.UpdatedAt = ts
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// SnapshotHook adapts the store to the loop's snapshot callback. Save
// failures are logged and swallowed; persistence must not break inference.
func (s *TurnStore) SnapshotHook() promptloop.SnapshotHook {
	return func(ctx context.Context, t *turns.Turn, phase string) {
		if err := s.SaveTurn(ctx, t, phase); err != nil {
			log.Warn().Err(err).Str("phase", phase).Msg("turn snapshot failed")
		}
	}
}
