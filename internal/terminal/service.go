package terminal

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"
)

// Limits for door and voice commands.
const (
	MaxUnlockSeconds = 60
	MaxVoiceIndex    = 55
)

// OperationRecord describes a completed mutating operation. It feeds the
// audit trail and the event stream.
type OperationRecord struct {
	Action    string
	Endpoint  Endpoint
	Target    string
	Transport Transport
	Actor     string
	Details   map[string]any
	Err       error
	At        time.Time
}

// ProbeReport describes a completed health or status probe.
type ProbeReport struct {
	Operation      string
	Endpoint       Endpoint
	Transport      Transport
	OK             bool
	ConnectLatency time.Duration
	Attempts       int
	Err            error
	At             time.Time
}

// Auditor persists operation records.
type Auditor interface {
	RecordOperation(ctx context.Context, rec OperationRecord) error
}

// EventPublisher pushes operation and probe outcomes to subscribers.
type EventPublisher interface {
	PublishOperation(ctx context.Context, rec OperationRecord) error
	PublishProbe(ctx context.Context, rep ProbeReport) error
}

// ProbeRecorder stores probe outcomes as time-series points.
type ProbeRecorder interface {
	RecordProbe(ctx context.Context, rep ProbeReport) error
}

// Options configures a Service. Only Driver is required.
type Options struct {
	Driver    Driver
	Primary   Transport
	Secondary Transport

	// Location is the site timezone for attendance. Default UTC.
	Location *time.Location

	// AfterYear restricts unfiltered attendance listings. 0 disables it.
	AfterYear int

	// Now is the clock. Default time.Now.
	Now func() time.Time

	Logger    Logger
	Auditor   Auditor
	Publisher EventPublisher
	Recorder  ProbeRecorder
}

// Service runs terminal operations. It holds no per-terminal state and
// is safe for concurrent use; concurrent calls to the same terminal are
// not coordinated.
type Service struct {
	driver    Driver
	prober    *Prober
	loc       *time.Location
	afterYear int
	now       func() time.Time
	logger    Logger
	auditor   Auditor
	publisher EventPublisher
	recorder  ProbeRecorder
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	s := &Service{
		driver:    opts.Driver,
		loc:       opts.Location,
		afterYear: opts.AfterYear,
		now:       opts.Now,
		logger:    opts.Logger,
		auditor:   opts.Auditor,
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	s.prober = NewProber(opts.Driver, opts.Primary, opts.Secondary, s.logger)
	return s
}

// Location returns the site timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Today returns the current calendar date in the site timezone.
func (s *Service) Today() Date {
	return DateOf(s.now().In(s.loc))
}

func (s *Service) opts(op string) []SessionOption {
	return []SessionOption{Named(op), Logged(s.logger)}
}

// ─── Users ──────────────────────────────────────────────────────────

// ListUsers returns every user on the terminal.
func (s *Service) ListUsers(ctx context.Context, ep Endpoint) ([]UserRecord, error) {
	return WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) ([]UserRecord, error) {
		raw, err := sess.Users(ctx)
		if err != nil {
			return nil, err
		}
		return NormalizeUsers(raw), nil
	}, s.opts("list users")...)
}

// GetUser returns the user with uid, or a KindNotFound error.
func (s *Service) GetUser(ctx context.Context, ep Endpoint, uid int) (UserRecord, error) {
	return WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) (UserRecord, error) {
		raw, err := sess.Users(ctx)
		if err != nil {
			return UserRecord{}, err
		}
		u, ok := findUser(NormalizeUsers(raw), uid)
		if !ok {
			return UserRecord{}, NotFoundf("get user", "user uid %d not found", uid)
		}
		return u, nil
	}, s.opts("get user")...)
}

// CreateUser writes a new user. An existing record with the same UID is
// overwritten, as the terminal does.
func (s *Service) CreateUser(ctx context.Context, ep Endpoint, in UserCreate) (UserRecord, error) {
	rec := in.Record()
	if rec.Name == "" {
		return UserRecord{}, invalidf("validate user", "name is required")
	}
	if err := rec.Validate(); err != nil {
		return UserRecord{}, err
	}

	_, err := WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) (struct{}, error) {
		return struct{}{}, sess.SetUser(ctx, rec.raw())
	}, s.opts("create user")...)

	s.recordOperation(ctx, OperationRecord{
		Action:    "user.create",
		Endpoint:  ep,
		Target:    userTarget(rec.UID),
		Transport: ep.Transport,
		Details:   map[string]any{"name": rec.Name, "user_id": rec.UserID, "privilege": rec.Privilege},
		Err:       err,
	})
	if err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// UpdateUser reads the current record, overlays p, and writes the result
// in one session. Absent users yield KindNotFound.
func (s *Service) UpdateUser(ctx context.Context, ep Endpoint, uid int, p UserPatch) (UserRecord, error) {
	if err := ValidateUID(uid); err != nil {
		return UserRecord{}, err
	}

	merged, err := WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) (UserRecord, error) {
		raw, err := sess.Users(ctx)
		if err != nil {
			return UserRecord{}, err
		}
		current, ok := findStoredUser(raw, uid)
		if !ok {
			return UserRecord{}, NotFoundf("update user", "user uid %d not found", uid)
		}
		merged := MergeUser(current, p)
		if err := merged.Validate(); err != nil {
			return UserRecord{}, err
		}
		if err := sess.SetUser(ctx, merged.raw()); err != nil {
			return UserRecord{}, err
		}
		return merged, nil
	}, s.opts("update user")...)

	s.recordOperation(ctx, OperationRecord{
		Action:    "user.update",
		Endpoint:  ep,
		Target:    userTarget(uid),
		Transport: ep.Transport,
		Details:   patchDetails(p),
		Err:       err,
	})
	return merged, err
}

// DeleteUser removes the user with uid. Absent users yield KindNotFound.
func (s *Service) DeleteUser(ctx context.Context, ep Endpoint, uid int) error {
	_, err := WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) (struct{}, error) {
		raw, err := sess.Users(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if _, ok := findUser(NormalizeUsers(raw), uid); !ok {
			return struct{}{}, NotFoundf("delete user", "user uid %d not found", uid)
		}
		return struct{}{}, sess.DeleteUser(ctx, uid)
	}, s.opts("delete user")...)

	s.recordOperation(ctx, OperationRecord{
		Action:    "user.delete",
		Endpoint:  ep,
		Target:    userTarget(uid),
		Transport: ep.Transport,
		Err:       err,
	})
	return err
}

// DeleteUserByUserID removes the user whose user id matches exactly.
func (s *Service) DeleteUserByUserID(ctx context.Context, ep Endpoint, userID string) error {
	if userID == "" {
		return invalidf("delete user", "user_id is required")
	}

	_, err := WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) (struct{}, error) {
		raw, err := sess.Users(ctx)
		if err != nil {
			return struct{}{}, err
		}
		// Matches the listed user_id, so a user with no id on the device
		// is found by its decimal uid. Delete by uid for the same reason.
		u, ok := findUserByUserID(NormalizeUsers(raw), userID)
		if !ok {
			return struct{}{}, NotFoundf("delete user", "user_id %q not found", userID)
		}
		return struct{}{}, sess.DeleteUser(ctx, u.UID)
	}, s.opts("delete user by user_id")...)

	s.recordOperation(ctx, OperationRecord{
		Action:    "user.delete",
		Endpoint:  ep,
		Target:    "user_id:" + userID,
		Transport: ep.Transport,
		Err:       err,
	})
	return err
}

// ─── Attendance ─────────────────────────────────────────────────────

// ListAttendance returns the punches matching f. The configured AfterYear
// applies only to the unfiltered listing; user and date queries see every
// stored punch.
func (s *Service) ListAttendance(ctx context.Context, ep Endpoint, f AttendanceFilter) ([]AttendanceEvent, error) {
	if f.AfterYear == 0 && f.UserID == "" && f.On == nil && f.From == nil && f.To == nil {
		f.AfterYear = s.afterYear
	}
	return s.attendance(ctx, ep, "list attendance", f)
}

// AttendanceToday returns today's punches in the site timezone.
func (s *Service) AttendanceToday(ctx context.Context, ep Endpoint) ([]AttendanceEvent, error) {
	today := s.Today()
	return s.attendance(ctx, ep, "attendance today", AttendanceFilter{On: &today})
}

// AttendanceMonth returns punches from the first day of the previous
// month through today.
func (s *Service) AttendanceMonth(ctx context.Context, ep Endpoint) ([]AttendanceEvent, error) {
	from, to := MonthWindow(s.Today())
	return s.attendance(ctx, ep, "attendance month", AttendanceFilter{From: &from, To: &to})
}

func (s *Service) attendance(ctx context.Context, ep Endpoint, op string, f AttendanceFilter) ([]AttendanceEvent, error) {
	return WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) ([]AttendanceEvent, error) {
		raw, err := sess.Attendance(ctx)
		if err != nil {
			return nil, err
		}
		return FilterAttendance(NormalizeAttendanceAll(raw, s.loc), f), nil
	}, s.opts(op)...)
}

// ─── Device ─────────────────────────────────────────────────────────

// DeviceInfo returns the identity snapshot. Unavailable fields are nil.
func (s *Service) DeviceInfo(ctx context.Context, ep Endpoint) (DeviceInfo, error) {
	return WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) (DeviceInfo, error) {
		return NormalizeDeviceInfo(ctx, sess, s.logger), nil
	}, s.opts("device info")...)
}

// DeviceTime reads the terminal clock.
func (s *Service) DeviceTime(ctx context.Context, ep Endpoint) (DeviceTime, error) {
	return WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) (DeviceTime, error) {
		t, err := sess.Time(ctx)
		if err != nil {
			return DeviceTime{}, err
		}
		return DeviceTime{Time: t}, nil
	}, s.opts("device time")...)
}

// SetDeviceTime sets the terminal clock.
func (s *Service) SetDeviceTime(ctx context.Context, ep Endpoint, t time.Time) error {
	if t.IsZero() {
		return invalidf("set device time", "timestamp is required")
	}
	_, err := WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) (struct{}, error) {
		return struct{}{}, sess.SetTime(ctx, t)
	}, s.opts("set device time")...)

	s.recordOperation(ctx, OperationRecord{
		Action:    "device.set_time",
		Endpoint:  ep,
		Transport: ep.Transport,
		Details:   map[string]any{"timestamp": t.Format(TimestampLayout)},
		Err:       err,
	})
	return err
}

// NetworkParams reads the terminal IP configuration.
func (s *Service) NetworkParams(ctx context.Context, ep Endpoint) (NetworkParams, error) {
	return WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) (NetworkParams, error) {
		return sess.NetworkParams(ctx)
	}, s.opts("network params")...)
}

// MemoryUsage reads record counts and capacities.
func (s *Service) MemoryUsage(ctx context.Context, ep Endpoint) (MemoryUsage, error) {
	return s.readSizes(ctx, ep, "memory usage")
}

// MemorySizes re-reads the size table. It returns the same snapshot as
// MemoryUsage under a separate operation name.
func (s *Service) MemorySizes(ctx context.Context, ep Endpoint) (MemoryUsage, error) {
	return s.readSizes(ctx, ep, "memory sizes")
}

func (s *Service) readSizes(ctx context.Context, ep Endpoint, op string) (MemoryUsage, error) {
	return WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) (MemoryUsage, error) {
		return sess.ReadSizes(ctx)
	}, s.opts(op)...)
}

// Restart reboots the terminal. A failed disconnect afterwards is
// expected and only logged.
func (s *Service) Restart(ctx context.Context, ep Endpoint) error {
	_, err := WithSession(ctx, s.driver, ep, func(ctx context.Context, sess Session) (struct{}, error) {
		return struct{}{}, sess.Restart(ctx)
	}, s.opts("restart")...)

	s.recordOperation(ctx, OperationRecord{
		Action:    "device.restart",
		Endpoint:  ep,
		Transport: ep.Transport,
		Err:       err,
	})
	return err
}

// Unlock opens the door for the given number of seconds, falling back to
// the secondary transport. It returns the transport that worked.
func (s *Service) Unlock(ctx context.Context, ep Endpoint, seconds int) (Transport, error) {
	if seconds < 1 || seconds > MaxUnlockSeconds {
		return "", invalidf("unlock", "time must be between 1 and %d seconds", MaxUnlockSeconds)
	}

	res, err := Probe(ctx, s.prober, ep, func(ctx context.Context, sess Session) (struct{}, error) {
		return struct{}{}, sess.Unlock(ctx, time.Duration(seconds)*time.Second)
	}, s.opts("unlock")...)

	s.recordOperation(ctx, OperationRecord{
		Action:    "door.unlock",
		Endpoint:  ep,
		Transport: res.Transport,
		Details:   map[string]any{"seconds": seconds, "attempts": res.Attempts},
		Err:       err,
	})
	return res.Transport, err
}

// TestVoice plays a voice prompt, falling back to the secondary transport.
func (s *Service) TestVoice(ctx context.Context, ep Endpoint, index int) (Transport, error) {
	if index < 0 || index > MaxVoiceIndex {
		return "", invalidf("test voice", "voice_id must be between 0 and %d", MaxVoiceIndex)
	}

	res, err := Probe(ctx, s.prober, ep, func(ctx context.Context, sess Session) (struct{}, error) {
		return struct{}{}, sess.TestVoice(ctx, index)
	}, s.opts("test voice")...)

	s.recordOperation(ctx, OperationRecord{
		Action:    "device.test_voice",
		Endpoint:  ep,
		Transport: res.Transport,
		Details:   map[string]any{"voice_id": index, "attempts": res.Attempts},
		Err:       err,
	})
	return res.Transport, err
}

// HealthReport is the result of a health probe. On failure Error holds
// the primary transport's failure and UDPError the secondary's.
type HealthReport struct {
	OK        bool      `json:"ok"`
	Transport Transport `json:"transport,omitempty"`
	Time      string    `json:"time,omitempty"`
	Error     string    `json:"error,omitempty"`
	UDPError  string    `json:"udp_error,omitempty"`
}

// Health reads the terminal clock over the primary transport, then the
// secondary. Transport failures are reported in the result, not as an
// error; only invalid input returns an error.
func (s *Service) Health(ctx context.Context, ep Endpoint) (HealthReport, error) {
	res, err := Probe(ctx, s.prober, ep, func(ctx context.Context, sess Session) (time.Time, error) {
		return sess.Time(ctx)
	}, s.opts("health")...)
	if err != nil && KindOf(err) == KindInvalid {
		return HealthReport{}, err
	}

	s.recordProbe(ctx, "health", ep, res.Transport, res.ConnectLatency, res.Attempts, err)

	if err != nil {
		rep := HealthReport{OK: false, Error: err.Error()}
		var agg *AggregateError
		if errors.As(err, &agg) {
			rep.Error = agg.Primary.Error()
			rep.UDPError = agg.Secondary.Error()
		}
		return rep, nil
	}
	return HealthReport{
		OK:        true,
		Transport: res.Transport,
		Time:      res.Value.Format(TimestampLayout),
	}, nil
}

// StatusReport is the result of a connectivity probe.
type StatusReport struct {
	Connected bool      `json:"connected"`
	Transport Transport `json:"transport,omitempty"`
	LatencyMS *float64  `json:"latency_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Status connects over the primary transport, then the secondary, and
// reports the connect latency of the one that worked.
func (s *Service) Status(ctx context.Context, ep Endpoint) (StatusReport, error) {
	res, err := Probe(ctx, s.prober, ep, func(context.Context, Session) (struct{}, error) {
		return struct{}{}, nil
	}, s.opts("status")...)
	if err != nil && KindOf(err) == KindInvalid {
		return StatusReport{}, err
	}

	s.recordProbe(ctx, "status", ep, res.Transport, res.ConnectLatency, res.Attempts, err)

	if err != nil {
		return StatusReport{Connected: false, Error: err.Error()}, nil
	}
	ms := math.Round(float64(res.ConnectLatency.Microseconds())/10) / 100
	return StatusReport{Connected: true, Transport: res.Transport, LatencyMS: &ms}, nil
}

// Connect opens and releases a session to check reachability.
func (s *Service) Connect(ctx context.Context, ep Endpoint) error {
	_, err := WithSession(ctx, s.driver, ep, func(context.Context, Session) (struct{}, error) {
		return struct{}{}, nil
	}, s.opts("connect")...)
	return err
}

// Toggle would flip the door relay. The terminal protocol has no such
// command, so it always fails with KindUnsupported.
func (s *Service) Toggle(context.Context, Endpoint) error {
	return &Error{Kind: KindUnsupported, Op: "toggle", Err: errors.New("door toggle is not supported by the terminal")}
}

// ─── Side channels ──────────────────────────────────────────────────

func (s *Service) recordOperation(ctx context.Context, rec OperationRecord) {
	if s.auditor == nil && s.publisher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	rec.Actor = ActorFrom(ctx)
	rec.At = s.now()

	if s.auditor != nil {
		if err := s.auditor.RecordOperation(ctx, rec); err != nil {
			s.logger.Warn("audit write failed", "action", rec.Action, "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishOperation(ctx, rec); err != nil {
			s.logger.Warn("operation event publish failed", "action", rec.Action, "error", err)
		}
	}
}

func (s *Service) recordProbe(ctx context.Context, op string, ep Endpoint, t Transport, latency time.Duration, attempts int, err error) {
	if s.publisher == nil && s.recorder == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	rep := ProbeReport{
		Operation:      op,
		Endpoint:       ep,
		Transport:      t,
		OK:             err == nil,
		ConnectLatency: latency,
		Attempts:       attempts,
		Err:            err,
		At:             s.now(),
	}

	if s.publisher != nil {
		if perr := s.publisher.PublishProbe(ctx, rep); perr != nil {
			s.logger.Warn("probe event publish failed", "op", op, "error", perr)
		}
	}
	if s.recorder != nil {
		if rerr := s.recorder.RecordProbe(ctx, rep); rerr != nil {
			s.logger.Warn("probe metric write failed", "op", op, "error", rerr)
		}
	}
}

func userTarget(uid int) string {
	return "user:" + strconv.Itoa(uid)
}

// patchDetails lists the fields a patch touched. Passwords are never recorded.
func patchDetails(p UserPatch) map[string]any {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.Privilege != nil {
		fields = append(fields, "privilege")
	}
	if p.Password != nil {
		fields = append(fields, "password")
	}
	if p.GroupID != nil {
		fields = append(fields, "group_id")
	}
	if p.UserID != nil {
		fields = append(fields, "user_id")
	}
	if p.Card != nil {
		fields = append(fields, "card")
	}
	return map[string]any{"fields": fields}
}
