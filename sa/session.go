// Package sa persists the registrar-agent's per-pledge session state
// (spec.md §4.5: "{pledge-url, pledge-serial, pledge-info,
// current-step, last-error}") so a restarted registrar-agent can
// report on sessions that were in flight, and so multiple
// registrar-agent replicas can share a durable record of which
// pledges have been seen. Grounded on the teacher's sa package, which
// drives SQL through github.com/letsencrypt/borp (a maintained gorp
// fork) over github.com/go-sql-driver/mysql rather than database/sql
// directly.
package sa

import (
	"context"
	"database/sql"
	"time"

	"github.com/letsencrypt/borp"

	"github.com/brski-prm/brski-prm-go/berrors"
)

// Step enumerates the nine-message exchange's steps (spec.md §4.5),
// used to record how far a session progressed.
type Step int

const (
	StepDIF Step = iota
	StepPledgeInfo
	StepVoucherRequestTrigger
	StepPVR
	StepRVR
	StepVoucher
	StepVoucherStatus
	StepEnrollTrigger
	StepPER
	StepSER
	StepEnrollStatus
	StepComplete
)

// Session is one row of per-pledge onboarding state.
type Session struct {
	ID           int64     `db:"id"`
	PledgeURL    string    `db:"pledgeURL"`
	PledgeSerial string    `db:"pledgeSerial"`
	PledgeInfo   []byte    `db:"pledgeInfo"` // JSON-encoded pledge-info document
	CurrentStep  Step      `db:"currentStep"`
	LastError    string    `db:"lastError"`
	CreatedAt    time.Time `db:"createdAt"`
	UpdatedAt    time.Time `db:"updatedAt"`
}

// TableName satisfies borp's table-mapping convention.
func (Session) TableName() string { return "sessions" }

// Store wraps a borp.DbMap for session CRUD.
type Store struct {
	dbMap *borp.DbMap
}

// NewStore opens the database and registers the session table mapping,
// following the teacher's sa.NewDbMap construction.
func NewStore(db *sql.DB) (*Store, error) {
	dbMap := &borp.DbMap{Db: db, Dialect: borp.MySQLDialect{Engine: "InnoDB", Encoding: "utf8mb4"}}
	dbMap.AddTableWithName(Session{}, "sessions").SetKeys(true, "ID")
	return &Store{dbMap: dbMap}, nil
}

// Create inserts a new session row for a pledge the registrar-agent
// has just discovered on its proximity network.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	sess.CurrentStep = StepDIF
	if err := s.dbMap.WithContext(ctx).Insert(sess); err != nil {
		return berrors.New(berrors.Internal, "sa: insert session failed: %s", err)
	}
	return nil
}

// UpdateStep advances a session's recorded step, clearing any prior
// error (a later successful step supersedes an earlier failure note).
func (s *Store) UpdateStep(ctx context.Context, id int64, step Step) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.CurrentStep = step
	sess.LastError = ""
	sess.UpdatedAt = time.Time{}
	_, err = s.dbMap.WithContext(ctx).Update(sess)
	if err != nil {
		return berrors.New(berrors.Internal, "sa: update session failed: %s", err)
	}
	return nil
}

// RecordError stores the last-error observed for a session without
// advancing its step — spec.md's cancellation semantics mean this is
// advisory only, not a resumable checkpoint.
func (s *Store) RecordError(ctx context.Context, id int64, errText string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.LastError = errText
	_, err = s.dbMap.WithContext(ctx).Update(sess)
	if err != nil {
		return berrors.New(berrors.Internal, "sa: record error failed: %s", err)
	}
	return nil
}

// Get fetches a session by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Session, error) {
	obj, err := s.dbMap.WithContext(ctx).Get(Session{}, id)
	if err != nil {
		return nil, berrors.New(berrors.Internal, "sa: get session failed: %s", err)
	}
	if obj == nil {
		return nil, berrors.New(berrors.Internal, "sa: no session with id %d", id)
	}
	return obj.(*Session), nil
}

// GetBySerial fetches the most recent session for a pledge serial
// number, used to answer status queries after a restart.
func (s *Store) GetBySerial(ctx context.Context, serial string) (*Session, error) {
	var sessions []*Session
	_, err := s.dbMap.WithContext(ctx).Select(&sessions,
		"SELECT * FROM sessions WHERE pledgeSerial = ? ORDER BY id DESC LIMIT 1", serial)
	if err != nil {
		return nil, berrors.New(berrors.Internal, "sa: query session failed: %s", err)
	}
	if len(sessions) == 0 {
		return nil, berrors.New(berrors.Internal, "sa: no session for serial %s", serial)
	}
	return sessions[0], nil
}
