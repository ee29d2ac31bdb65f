package store

import (
	"database/sql"
	"errors"
	"time"
)

// SessionRecord is one logged pairing session. Peer ids are recorded for
// diagnostics only and are never looked up again.
type SessionRecord struct {
	ID        int64
	PeerID    string
	Role      string
	State     string
	Reason    string
	StartedAt time.Time
	EndedAt   *time.Time
}

// SessionRepository logs pairing sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the pairing session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session and sets rec.ID.
func (r *SessionRepository) Create(rec *SessionRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	result, err := r.db.Exec(
		`INSERT INTO pairing_sessions (peer_id, role, state, reason, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.PeerID, rec.Role, rec.State, rec.Reason, rec.StartedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = id
	return nil
}

// Update records a state change. A non-empty peerID replaces the stored one.
func (r *SessionRepository) Update(id int64, peerID, state string) error {
	result, err := r.db.Exec(
		`UPDATE pairing_sessions
		 SET state = ?, peer_id = CASE WHEN ? = '' THEN peer_id ELSE ? END
		 WHERE id = ?`,
		state, peerID, peerID, id,
	)
	if err != nil {
		return err
	}
	return expectOne(result)
}

// Finish records the final state and error reason of a session.
func (r *SessionRepository) Finish(id int64, state, reason string) error {
	result, err := r.db.Exec(
		`UPDATE pairing_sessions SET state = ?, reason = ?, ended_at = ? WHERE id = ?`,
		state, reason, time.Now(), id,
	)
	if err != nil {
		return err
	}
	return expectOne(result)
}

// GetByID retrieves a session by id.
func (r *SessionRepository) GetByID(id int64) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var ended sql.NullTime

	err := r.db.QueryRow(
		`SELECT id, peer_id, role, state, reason, started_at, ended_at
		 FROM pairing_sessions WHERE id = ?`,
		id,
	).Scan(&rec.ID, &rec.PeerID, &rec.Role, &rec.State, &rec.Reason, &rec.StartedAt, &ended)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if ended.Valid {
		rec.EndedAt = &ended.Time
	}
	return rec, nil
}

// Recent returns up to limit sessions, most recent first.
func (r *SessionRepository) Recent(limit int) ([]*SessionRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, peer_id, role, state, reason, started_at, ended_at
		 FROM pairing_sessions ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		rec := &SessionRecord{}
		var ended sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.PeerID, &rec.Role, &rec.State, &rec.Reason, &rec.StartedAt, &ended); err != nil {
			return nil, err
		}
		if ended.Valid {
			rec.EndedAt = &ended.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func expectOne(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
