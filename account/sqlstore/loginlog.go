package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authgate/internal/audit"
	"github.com/jmoiron/sqlx"
)

// RecordLogin appends event to login_logs.
func (s *Store) RecordLogin(ctx context.Context, event audit.Event) error {
	at := event.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	q := s.ext.Rebind(`INSERT INTO login_logs (user_id, username, login_type, ip, user_agent, success, fail_reason, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.ext.ExecContext(ctx, q,
		event.UserID,
		nullable(event.Username),
		event.LoginType,
		nullable(event.IP),
		nullable(event.UserAgent),
		event.Success,
		nullable(event.FailReason),
		at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

type loginRow struct {
	UserID     int64   `db:"user_id"`
	Username   *string `db:"username"`
	LoginType  string  `db:"login_type"`
	IP         *string `db:"ip"`
	UserAgent  *string `db:"user_agent"`
	Success    bool    `db:"success"`
	FailReason *string `db:"fail_reason"`
	CreatedAt  int64   `db:"created_at"`
}

// LoginLogs returns the most recent login events of userID, newest first.
func (s *Store) LoginLogs(ctx context.Context, userID int64, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []loginRow
	q := s.ext.Rebind(`SELECT user_id, username, login_type, ip, user_agent, success, fail_reason, created_at
FROM login_logs WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := sqlx.SelectContext(ctx, s.ext, &rows, q, userID, limit); err != nil {
		return nil, fmt.Errorf("list login logs: %w", err)
	}

	events := make([]audit.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, audit.Event{
			Timestamp:  time.Unix(r.CreatedAt, 0).UTC(),
			UserID:     r.UserID,
			Username:   deref(r.Username),
			LoginType:  r.LoginType,
			IP:         deref(r.IP),
			UserAgent:  deref(r.UserAgent),
			Success:    r.Success,
			FailReason: deref(r.FailReason),
		})
	}
	return events, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ audit.Recorder = (*Store)(nil)
