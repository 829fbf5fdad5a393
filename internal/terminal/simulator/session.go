package simulator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/terminal"
)

// errRestarted is what Disconnect reports after Restart: the terminal
// drops the link while rebooting.
var errRestarted = errors.New("simulator: connection reset by terminal restart")

type session struct {
	d         *Driver
	id        int64
	host      string
	closed    bool
	restarted bool
}

func (s *session) check() error {
	if s.closed {
		return terminal.ErrSessionClosed
	}
	if s.restarted {
		return fmt.Errorf("%w: terminal is restarting", terminal.ErrUnreachable)
	}
	return nil
}

// ─── Users ──────────────────────────────────────────────────────────

func (s *session) Users(ctx context.Context) ([]terminal.RawUser, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.d.db.QueryContext(ctx, `
		SELECT uid, name, privilege, password, group_id, user_id, card
		FROM sim_users WHERE terminal_id = ? ORDER BY uid`, s.id)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []terminal.RawUser
	for rows.Next() {
		var u terminal.RawUser
		if err := rows.Scan(&u.UID, &u.Name, &u.Privilege, &u.Password, &u.GroupID, &u.UserID, &u.Card); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

func (s *session) SetUser(ctx context.Context, u terminal.RawUser) error {
	if err := s.check(); err != nil {
		return err
	}

	var exists bool
	var count, capacity int
	if err := s.d.db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM sim_users WHERE terminal_id = t.id AND uid = ?),
			(SELECT COUNT(*) FROM sim_users WHERE terminal_id = t.id),
			t.user_capacity
		FROM sim_terminals t WHERE t.id = ?`, u.UID, s.id,
	).Scan(&exists, &count, &capacity); err != nil {
		return fmt.Errorf("checking user capacity: %w", err)
	}
	if !exists && count >= capacity {
		return ErrCapacity
	}

	_, err := s.d.db.ExecContext(ctx, `
		INSERT INTO sim_users (terminal_id, uid, name, privilege, password, group_id, user_id, card)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (terminal_id, uid) DO UPDATE SET
			name = excluded.name,
			privilege = excluded.privilege,
			password = excluded.password,
			group_id = excluded.group_id,
			user_id = excluded.user_id,
			card = excluded.card`,
		s.id, u.UID, u.Name, u.Privilege, u.Password, u.GroupID, u.UserID, u.Card,
	)
	if err != nil {
		return fmt.Errorf("writing user %d: %w", u.UID, err)
	}
	return nil
}

func (s *session) DeleteUser(ctx context.Context, uid int) error {
	if err := s.check(); err != nil {
		return err
	}
	res, err := s.d.db.ExecContext(ctx,
		"DELETE FROM sim_users WHERE terminal_id = ? AND uid = ?", s.id, uid)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n == 0 {
		return terminal.ErrNotFound
	}
	return nil
}

// ─── Attendance ─────────────────────────────────────────────────────

func (s *session) Attendance(ctx context.Context) ([]terminal.RawAttendance, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.d.db.QueryContext(ctx, `
		SELECT uid, user_id, timestamp, status, punch
		FROM sim_attendance WHERE terminal_id = ? ORDER BY timestamp, id`, s.id)
	if err != nil {
		return nil, fmt.Errorf("querying attendance: %w", err)
	}
	defer rows.Close()

	var records []terminal.RawAttendance
	for rows.Next() {
		var r terminal.RawAttendance
		var ts string
		if err := rows.Scan(&r.UID, &r.UserID, &ts, &r.Status, &r.Punch); err != nil {
			return nil, fmt.Errorf("scanning attendance: %w", err)
		}
		r.Timestamp, err = time.ParseInLocation(recordLayout, ts, s.d.loc)
		if err != nil {
			return nil, fmt.Errorf("parsing attendance timestamp %q: %w", ts, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attendance: %w", err)
	}
	return records, nil
}

// ─── Device ─────────────────────────────────────────────────────────

// clockOffset is the seconds the emulated clock runs ahead of real time.
func (s *session) clockOffset(ctx context.Context) (time.Duration, error) {
	var secs int64
	if err := s.d.db.QueryRowContext(ctx,
		"SELECT clock_offset FROM sim_terminals WHERE id = ?", s.id,
	).Scan(&secs); err != nil {
		return 0, fmt.Errorf("reading clock: %w", err)
	}
	return time.Duration(secs) * time.Second, nil
}

func (s *session) Time(ctx context.Context) (time.Time, error) {
	if err := s.check(); err != nil {
		return time.Time{}, err
	}
	offset, err := s.clockOffset(ctx)
	if err != nil {
		return time.Time{}, err
	}
	// Terminals keep whole seconds.
	return s.d.now().In(s.d.loc).Add(offset).Truncate(time.Second), nil
}

func (s *session) SetTime(ctx context.Context, t time.Time) error {
	if err := s.check(); err != nil {
		return err
	}
	offset := int64(t.Sub(s.d.now()).Round(time.Second) / time.Second)
	if _, err := s.d.db.ExecContext(ctx,
		"UPDATE sim_terminals SET clock_offset = ? WHERE id = ?", offset, s.id,
	); err != nil {
		return fmt.Errorf("setting clock: %w", err)
	}
	return nil
}

func (s *session) NetworkParams(ctx context.Context) (terminal.NetworkParams, error) {
	if err := s.check(); err != nil {
		return terminal.NetworkParams{}, err
	}
	p := terminal.NetworkParams{IP: s.host}
	if err := s.d.db.QueryRowContext(ctx,
		"SELECT mask, gateway FROM sim_terminals WHERE id = ?", s.id,
	).Scan(&p.Mask, &p.Gateway); err != nil {
		return terminal.NetworkParams{}, fmt.Errorf("reading network params: %w", err)
	}
	return p, nil
}

func (s *session) ReadSizes(ctx context.Context) (terminal.MemoryUsage, error) {
	if err := s.check(); err != nil {
		return terminal.MemoryUsage{}, err
	}
	var m terminal.MemoryUsage
	err := s.d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sim_users WHERE terminal_id = t.id),
			(SELECT COALESCE(SUM(fingers), 0) FROM sim_users WHERE terminal_id = t.id),
			(SELECT COUNT(*) FROM sim_attendance WHERE terminal_id = t.id),
			(SELECT COALESCE(SUM(faces), 0) FROM sim_users WHERE terminal_id = t.id),
			t.user_capacity, t.finger_capacity, t.record_capacity, t.face_capacity
		FROM sim_terminals t WHERE t.id = ?`, s.id,
	).Scan(&m.Users, &m.Fingers, &m.Records, &m.Faces,
		&m.UsersCapacity, &m.FingersCapacity, &m.RecordsCapacity, &m.FacesCapacity)
	if err != nil {
		return terminal.MemoryUsage{}, fmt.Errorf("reading sizes: %w", err)
	}
	return m, nil
}

func (s *session) Info(ctx context.Context, f terminal.InfoField) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	// Field names double as column names.
	if !slices.Contains(terminal.InfoFields, f) {
		return "", fmt.Errorf("%w: %s", terminal.ErrUnsupported, f)
	}

	var v sql.NullString
	if err := s.d.db.QueryRowContext(ctx,
		"SELECT "+string(f)+" FROM sim_terminals WHERE id = ?", s.id, //nolint:gosec // column from a fixed list
	).Scan(&v); err != nil {
		return "", fmt.Errorf("reading %s: %w", f, err)
	}
	if !v.Valid {
		return "", fmt.Errorf("%w: %s", terminal.ErrUnsupported, f)
	}
	return v.String, nil
}

func (s *session) Unlock(ctx context.Context, d time.Duration) error {
	if err := s.check(); err != nil {
		return err
	}
	if d <= 0 {
		return errors.New("simulator: unlock duration must be positive")
	}
	return s.touch(ctx, "last_unlock_at = ?", s.d.now().In(s.d.loc).Format(recordLayout))
}

func (s *session) TestVoice(ctx context.Context, index int) error {
	if err := s.check(); err != nil {
		return err
	}
	if index < 0 || index > terminal.MaxVoiceIndex {
		return fmt.Errorf("simulator: no voice prompt %d", index)
	}
	return s.touch(ctx, "last_voice_id = ?", index)
}

func (s *session) Restart(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.touch(ctx, "restarted_at = ?", s.d.now().In(s.d.loc).Format(recordLayout)); err != nil {
		return err
	}
	s.restarted = true
	return nil
}

func (s *session) touch(ctx context.Context, set string, arg any) error {
	if _, err := s.d.db.ExecContext(ctx,
		"UPDATE sim_terminals SET "+set+" WHERE id = ?", arg, s.id, //nolint:gosec // set is a constant
	); err != nil {
		return fmt.Errorf("updating terminal state: %w", err)
	}
	return nil
}

func (s *session) Disconnect() error {
	if s.closed {
		return terminal.ErrSessionClosed
	}
	s.closed = true
	if s.restarted {
		return errRestarted
	}
	return nil
}
