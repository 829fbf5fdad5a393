// Package simulator is a terminal.Driver backed by SQLite.
//
// Each row of sim_terminals emulates one attendance terminal, addressed by
// host and port. Sessions read and write the users, punches and device
// state of that row, so the gateway can be run and tested end to end
// without hardware. Identity columns left NULL behave like a terminal
// that does not report the field.
package simulator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/terminal"
)

// recordLayout is how punches and device events are stored. Values are
// the terminal's local wall clock without a zone.
const recordLayout = "2006-01-02 15:04:05"

const defaultMask = "255.255.255.0"

// ErrCapacity is returned by SetUser when the user table is full.
var ErrCapacity = errors.New("simulator: user capacity reached")

// Driver opens sessions against terminals stored in the sim_* tables.
type Driver struct {
	db     *sql.DB
	loc    *time.Location
	now    func() time.Time
	logger terminal.Logger
}

// New creates a Driver. loc is the timezone the emulated clocks run in;
// nil means UTC.
func New(db *sql.DB, loc *time.Location, logger terminal.Logger) *Driver {
	if loc == nil {
		loc = time.UTC
	}
	return &Driver{db: db, loc: loc, now: time.Now, logger: logger}
}

// Seed creates the emulated terminal, or refreshes its settings if one
// already exists at the same host and port. Users and punches are kept.
func (d *Driver) Seed(ctx context.Context, t config.SimulatedTerminal) (int64, error) {
	tcp, udp := transportFlags(t.Transports)
	mask := t.Mask
	if mask == "" {
		mask = defaultMask
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sim_terminals (
			host, port, comm_key, tcp_enabled, udp_enabled,
			device_name, firmware_version, serial_number, platform, mac,
			mask, gateway
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (host, port) DO UPDATE SET
			comm_key = excluded.comm_key,
			tcp_enabled = excluded.tcp_enabled,
			udp_enabled = excluded.udp_enabled,
			device_name = excluded.device_name,
			firmware_version = excluded.firmware_version,
			serial_number = excluded.serial_number,
			platform = excluded.platform,
			mac = excluded.mac,
			mask = excluded.mask,
			gateway = excluded.gateway`,
		t.Host, t.Port, t.CommKey, tcp, udp,
		nullable(t.DeviceName), nullable(t.FirmwareVersion), nullable(t.SerialNumber),
		nullable(t.Platform), nullable(t.MAC),
		mask, t.Gateway,
	)
	if err != nil {
		return 0, fmt.Errorf("seeding terminal %s:%d: %w", t.Host, t.Port, err)
	}

	var id int64
	if err := d.db.QueryRowContext(ctx,
		"SELECT id FROM sim_terminals WHERE host = ? AND port = ?", t.Host, t.Port,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("reading terminal id: %w", err)
	}
	return id, nil
}

// AddAttendance stores a punch on the terminal with the given id. Only
// the wall-clock reading of r.Timestamp is kept.
func (d *Driver) AddAttendance(ctx context.Context, terminalID int64, r terminal.RawAttendance) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sim_attendance (terminal_id, uid, user_id, timestamp, status, punch)
		VALUES (?, ?, ?, ?, ?, ?)`,
		terminalID, r.UID, r.UserID, r.Timestamp.Format(recordLayout), r.Status, r.Punch,
	)
	if err != nil {
		return fmt.Errorf("inserting attendance: %w", err)
	}
	return nil
}

// Dial implements terminal.Driver.
func (d *Driver) Dial(ctx context.Context, ep terminal.Endpoint) (terminal.Session, error) {
	var (
		id       int64
		commKey  int
		tcp, udp bool
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, comm_key, tcp_enabled, udp_enabled
		FROM sim_terminals WHERE host = ? AND port = ?`,
		ep.Host, ep.Port,
	).Scan(&id, &commKey, &tcp, &udp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no terminal at %s", terminal.ErrUnreachable, ep.Address())
	}
	if err != nil {
		return nil, fmt.Errorf("looking up terminal: %w", err)
	}

	switch {
	case ep.Transport == terminal.TransportTCP && !tcp,
		ep.Transport == terminal.TransportUDP && !udp:
		return nil, fmt.Errorf("%w: %s does not answer over %s", terminal.ErrUnreachable, ep.Address(), ep.Transport)
	}
	if commKey != ep.CommKey {
		return nil, fmt.Errorf("%w: comm key rejected by %s", terminal.ErrAuthFailed, ep.Address())
	}

	if d.logger != nil {
		d.logger.Debug("simulated terminal session opened",
			"terminal_id", id,
			"endpoint", ep.String(),
		)
	}
	return &session{d: d, id: id, host: ep.Host}, nil
}

func transportFlags(names []string) (tcp, udp bool) {
	if len(names) == 0 {
		return true, true
	}
	for _, n := range names {
		switch strings.ToLower(n) {
		case string(terminal.TransportTCP):
			tcp = true
		case string(terminal.TransportUDP):
			udp = true
		}
	}
	return tcp, udp
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
