package terminal

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// cleanString strips the NUL padding terminals leave in fixed-width
// fields, plus surrounding whitespace.
func cleanString(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// NormalizeUser converts a driver record into a UserRecord. An empty user
// id falls back to the decimal UID, which is what terminals display.
func NormalizeUser(r RawUser) UserRecord {
	u := storedUser(r)
	if u.UserID == "" {
		u.UserID = strconv.Itoa(u.UID)
	}
	return u
}

// storedUser is the record exactly as the terminal holds it, minus
// padding. Writes merge against this, never against the display form.
func storedUser(r RawUser) UserRecord {
	return UserRecord{
		UID:       r.UID,
		Name:      cleanString(r.Name),
		Privilege: r.Privilege,
		Password:  cleanString(r.Password),
		GroupID:   cleanString(r.GroupID),
		UserID:    cleanString(r.UserID),
		Card:      r.Card,
	}
}

// NormalizeUsers applies NormalizeUser to every record.
func NormalizeUsers(raw []RawUser) []UserRecord {
	out := make([]UserRecord, 0, len(raw))
	for _, r := range raw {
		out = append(out, NormalizeUser(r))
	}
	return out
}

// NormalizeAttendance converts a driver punch into an AttendanceEvent.
// The terminal's wall-clock reading is reinterpreted in loc; nil means UTC.
func NormalizeAttendance(r RawAttendance, loc *time.Location) AttendanceEvent {
	if loc == nil {
		loc = time.UTC
	}
	ts := r.Timestamp
	ts = time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), loc)

	userID := cleanString(r.UserID)
	if userID == "" && r.UID != 0 {
		userID = strconv.Itoa(r.UID)
	}

	return AttendanceEvent{
		UserID:    userID,
		Timestamp: ts,
		Status:    r.Status,
		Punch:     r.Punch,
		UID:       r.UID,
	}
}

// NormalizeAttendanceAll applies NormalizeAttendance to every punch.
func NormalizeAttendanceAll(raw []RawAttendance, loc *time.Location) []AttendanceEvent {
	out := make([]AttendanceEvent, 0, len(raw))
	for _, r := range raw {
		out = append(out, NormalizeAttendance(r, loc))
	}
	return out
}

// NormalizeDeviceInfo reads each identity field independently. A field
// that fails for any reason is left nil and the rest are still read.
// Only a broken session (ctx done) stops early; the remaining fields stay nil.
func NormalizeDeviceInfo(ctx context.Context, s Session, logger Logger) DeviceInfo {
	if logger == nil {
		logger = nopLogger{}
	}

	var info DeviceInfo
	for _, f := range InfoFields {
		if ctx.Err() != nil {
			break
		}
		v, err := s.Info(ctx, f)
		if err != nil {
			logger.Debug("device info field unavailable",
				"field", string(f),
				"kind", KindOf(err).String(),
				"error", err,
			)
			continue
		}
		v = cleanString(v)
		*info.field(f) = &v
	}
	return info
}
