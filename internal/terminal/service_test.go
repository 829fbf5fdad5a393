package terminal_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/terminal"
	"github.com/nerrad567/gray-logic-access/internal/terminal/terminaltest"
)

// sinks records every side-channel call.
type sinks struct {
	mu       sync.Mutex
	ops      []terminal.OperationRecord
	events   []terminal.OperationRecord
	probes   []terminal.ProbeReport
	metrics  []terminal.ProbeReport
	failWith error
}

func (s *sinks) RecordOperation(_ context.Context, rec terminal.OperationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, rec)
	return s.failWith
}

func (s *sinks) PublishOperation(_ context.Context, rec terminal.OperationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, rec)
	return s.failWith
}

func (s *sinks) PublishProbe(_ context.Context, rep terminal.ProbeReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes = append(s.probes, rep)
	return s.failWith
}

func (s *sinks) RecordProbe(_ context.Context, rep terminal.ProbeReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, rep)
	return s.failWith
}

var fixedNow = time.Date(2024, 6, 20, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*terminal.Service, *terminaltest.Driver, *sinks) {
	t.Helper()
	fake := terminaltest.New()
	sk := &sinks{}
	svc := terminal.NewService(terminal.Options{
		Driver:    fake,
		Primary:   terminal.TransportTCP,
		Secondary: terminal.TransportUDP,
		Now:       func() time.Time { return fixedNow },
		Auditor:   sk,
		Publisher: sk,
		Recorder:  sk,
	})
	return svc, fake, sk
}

// ─── Users ──────────────────────────────────────────────────────────

func TestService_CreateThenList(t *testing.T) {
	svc, fake, sk := newTestService(t)
	ctx := terminal.WithActor(context.Background(), "ops@example")

	created, err := svc.CreateUser(ctx, testEndpoint(), terminal.UserCreate{UID: 5, Name: "A"})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if created.UserID != "5" || created.GroupID != "1" {
		t.Errorf("CreateUser() = %+v, want defaulted user_id and group", created)
	}

	users, err := svc.ListUsers(context.Background(), testEndpoint())
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 1 || users[0].UID != 5 || users[0].Name != "A" {
		t.Errorf("ListUsers() = %+v, want the created user", users)
	}
	if n := fake.Disconnects(); n != 2 {
		t.Errorf("Disconnects() = %d, want 2", n)
	}

	if len(sk.ops) != 1 {
		t.Fatalf("audit records = %d, want 1", len(sk.ops))
	}
	rec := sk.ops[0]
	if rec.Action != "user.create" || rec.Target != "user:5" || rec.Actor != "ops@example" || rec.Err != nil {
		t.Errorf("audit record = %+v", rec)
	}
	if !rec.At.Equal(fixedNow) {
		t.Errorf("At = %v, want %v", rec.At, fixedNow)
	}
	if len(sk.events) != 1 {
		t.Errorf("operation events = %d, want 1", len(sk.events))
	}
}

func TestService_CreateUserRequiresName(t *testing.T) {
	svc, fake, sk := newTestService(t)

	_, err := svc.CreateUser(context.Background(), testEndpoint(), terminal.UserCreate{UID: 5})
	if terminal.KindOf(err) != terminal.KindInvalid {
		t.Errorf("KindOf() = %v, want invalid", terminal.KindOf(err))
	}
	if len(fake.Dials()) != 0 {
		t.Error("invalid input should not open a session")
	}
	if len(sk.ops) != 0 {
		t.Error("rejected input should not be audited")
	}
}

func TestService_GetUser(t *testing.T) {
	svc, fake, _ := newTestService(t)
	fake.Terminal().Users = []terminal.RawUser{{UID: 3, Name: "Eve\x00", UserID: "E3"}}

	u, err := svc.GetUser(context.Background(), testEndpoint(), 3)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if u.Name != "Eve" {
		t.Errorf("Name = %q, want Eve", u.Name)
	}

	_, err = svc.GetUser(context.Background(), testEndpoint(), 4)
	if terminal.KindOf(err) != terminal.KindNotFound {
		t.Errorf("GetUser(4) kind = %v, want not_found", terminal.KindOf(err))
	}
}

func TestService_UpdateUserMerges(t *testing.T) {
	svc, fake, sk := newTestService(t)
	fake.Terminal().Users = []terminal.RawUser{{UID: 5, Name: "A", Privilege: 0, UserID: "5", GroupID: "1"}}

	got, err := svc.UpdateUser(context.Background(), testEndpoint(), 5, terminal.UserPatch{Privilege: ptr(1)})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if got.UID != 5 || got.Name != "A" || got.Privilege != 1 {
		t.Errorf("UpdateUser() = %+v, want uid 5 name A privilege 1", got)
	}
	stored := fake.Terminal().Users[0]
	if stored.Name != "A" || stored.Privilege != 1 {
		t.Errorf("stored = %+v, want merged record", stored)
	}
	// Read and write happen in one session.
	if n := fake.Disconnects(); n != 1 {
		t.Errorf("Disconnects() = %d, want 1", n)
	}
	fields, _ := sk.ops[0].Details["fields"].([]string)
	if len(fields) != 1 || fields[0] != "privilege" {
		t.Errorf("audit fields = %v, want [privilege]", sk.ops[0].Details["fields"])
	}
}

func TestService_UpdateUserKeepsEmptyUserID(t *testing.T) {
	svc, fake, _ := newTestService(t)
	fake.Terminal().Users = []terminal.RawUser{{UID: 5, Name: "A", UserID: ""}}

	got, err := svc.UpdateUser(context.Background(), testEndpoint(), 5, terminal.UserPatch{Privilege: ptr(1)})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if got.UserID != "" {
		t.Errorf("UpdateUser().UserID = %q, want empty", got.UserID)
	}
	stored := fake.Terminal().Users[0]
	if stored.UserID != "" || stored.Privilege != 1 || stored.Name != "A" {
		t.Errorf("stored = %+v, want privilege 1 and no user_id", stored)
	}

	// Reads still show the uid in place of the missing id.
	listed, err := svc.GetUser(context.Background(), testEndpoint(), 5)
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if listed.UserID != "5" {
		t.Errorf("GetUser().UserID = %q, want 5", listed.UserID)
	}
}

func TestService_UpdateUserNotFound(t *testing.T) {
	svc, fake, sk := newTestService(t)

	_, err := svc.UpdateUser(context.Background(), testEndpoint(), 77, terminal.UserPatch{Name: ptr("X")})
	if terminal.KindOf(err) != terminal.KindNotFound {
		t.Errorf("KindOf() = %v, want not_found", terminal.KindOf(err))
	}
	if len(fake.Terminal().Users) != 0 {
		t.Error("no user should be written")
	}
	if len(sk.ops) != 1 || sk.ops[0].Err == nil {
		t.Errorf("failed update should be audited with its error: %+v", sk.ops)
	}
}

func TestService_DeleteUser(t *testing.T) {
	svc, fake, _ := newTestService(t)
	fake.Terminal().Users = []terminal.RawUser{
		{UID: 1, Name: "A", UserID: "100"},
		{UID: 2, Name: "B", UserID: "200"},
	}
	ctx := context.Background()

	if err := svc.DeleteUser(ctx, testEndpoint(), 1); err != nil {
		t.Fatalf("DeleteUser(1) error = %v", err)
	}
	if err := svc.DeleteUser(ctx, testEndpoint(), 1); terminal.KindOf(err) != terminal.KindNotFound {
		t.Errorf("second DeleteUser(1) kind = %v, want not_found", terminal.KindOf(err))
	}
	if err := svc.DeleteUserByUserID(ctx, testEndpoint(), "200"); err != nil {
		t.Fatalf("DeleteUserByUserID(200) error = %v", err)
	}
	if err := svc.DeleteUserByUserID(ctx, testEndpoint(), "200"); terminal.KindOf(err) != terminal.KindNotFound {
		t.Errorf("second DeleteUserByUserID kind = %v, want not_found", terminal.KindOf(err))
	}
	if len(fake.Terminal().Users) != 0 {
		t.Errorf("Users = %+v, want empty", fake.Terminal().Users)
	}
}

func TestService_DeleteUserByListedUserID(t *testing.T) {
	svc, fake, _ := newTestService(t)
	fake.Terminal().Users = []terminal.RawUser{
		{UID: 9, Name: "B"},
		{UID: 10, Name: "C", UserID: "9"},
	}
	ctx := context.Background()

	users, err := svc.ListUsers(ctx, testEndpoint())
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if users[0].UserID != "9" {
		t.Fatalf("listed user_id = %q, want 9", users[0].UserID)
	}

	if err := svc.DeleteUserByUserID(ctx, testEndpoint(), "9"); err != nil {
		t.Fatalf("DeleteUserByUserID(9) error = %v", err)
	}
	remaining := fake.Terminal().Users
	if len(remaining) != 1 || remaining[0].UID != 10 {
		t.Errorf("Users = %+v, want only uid 10", remaining)
	}
}

// ─── Attendance ─────────────────────────────────────────────────────

func seedAttendance(fake *terminaltest.Driver) {
	at := func(y int, m time.Month, d, hh int) time.Time { return time.Date(y, m, d, hh, 0, 0, 0, time.UTC) }
	fake.Terminal().Attendance = []terminal.RawAttendance{
		{UserID: "1", Timestamp: at(2024, 4, 30, 9)},
		{UserID: "1", Timestamp: at(2024, 5, 2, 9)},
		{UserID: "2", Timestamp: at(2024, 6, 20, 8)},
		{UserID: "1", Timestamp: at(2024, 6, 20, 17)},
	}
}

func TestService_AttendanceToday(t *testing.T) {
	svc, fake, _ := newTestService(t)
	seedAttendance(fake)

	got, err := svc.AttendanceToday(context.Background(), testEndpoint())
	if err != nil {
		t.Fatalf("AttendanceToday() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("AttendanceToday() returned %d events, want 2", len(got))
	}
}

func TestService_AttendanceMonthIncludesPreviousMonth(t *testing.T) {
	svc, fake, _ := newTestService(t)
	seedAttendance(fake)

	got, err := svc.AttendanceMonth(context.Background(), testEndpoint())
	if err != nil {
		t.Fatalf("AttendanceMonth() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("AttendanceMonth() returned %d events, want 3 (May 2 onwards)", len(got))
	}
}

func TestService_ListAttendanceAppliesAfterYear(t *testing.T) {
	fake := terminaltest.New()
	fake.Terminal().Attendance = []terminal.RawAttendance{
		{UserID: "1", Timestamp: time.Date(2024, 12, 31, 9, 0, 0, 0, time.UTC)},
		{UserID: "1", Timestamp: time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)},
	}
	svc := terminal.NewService(terminal.Options{Driver: fake, AfterYear: 2024})

	got, err := svc.ListAttendance(context.Background(), testEndpoint(), terminal.AttendanceFilter{})
	if err != nil {
		t.Fatalf("ListAttendance() error = %v", err)
	}
	if len(got) != 1 || got[0].Timestamp.Year() != 2025 {
		t.Errorf("ListAttendance() = %v, want only 2025", got)
	}
}

func TestService_ListAttendanceFilteredIgnoresAfterYear(t *testing.T) {
	fake := terminaltest.New()
	fake.Terminal().Attendance = []terminal.RawAttendance{
		{UserID: "7", Timestamp: time.Date(2024, 6, 20, 8, 0, 0, 0, time.UTC)},
		{UserID: "8", Timestamp: time.Date(2024, 6, 20, 9, 0, 0, 0, time.UTC)},
	}
	svc := terminal.NewService(terminal.Options{Driver: fake, AfterYear: 2024})
	day := terminal.Date{Year: 2024, Month: time.June, Day: 20}

	tests := []struct {
		name   string
		filter terminal.AttendanceFilter
		want   int
	}{
		{name: "user and date", filter: terminal.AttendanceFilter{UserID: "7", On: &day}, want: 1},
		{name: "date only", filter: terminal.AttendanceFilter{On: &day}, want: 2},
		{name: "user only", filter: terminal.AttendanceFilter{UserID: "8"}, want: 1},
		{name: "unfiltered", filter: terminal.AttendanceFilter{}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ListAttendance(context.Background(), testEndpoint(), tt.filter)
			if err != nil {
				t.Fatalf("ListAttendance() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ListAttendance() returned %d events, want %d", len(got), tt.want)
			}
		})
	}
}

// ─── Device ─────────────────────────────────────────────────────────

func TestService_DeviceSnapshots(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := context.Background()
	ep := testEndpoint()

	info, err := svc.DeviceInfo(ctx, ep)
	if err != nil {
		t.Fatalf("DeviceInfo() error = %v", err)
	}
	if v, ok := info.Get(terminal.FieldSerialNumber); !ok || v != "CKPG201060123" {
		t.Errorf("serial_number = %q, %v", v, ok)
	}

	net, err := svc.NetworkParams(ctx, ep)
	if err != nil || net.IP != "192.168.1.201" {
		t.Errorf("NetworkParams() = %+v, %v", net, err)
	}

	fake.Terminal().Users = []terminal.RawUser{{UID: 1}}
	mem, err := svc.MemoryUsage(ctx, ep)
	if err != nil || mem.Users != 1 || mem.UsersCapacity != 3000 {
		t.Errorf("MemoryUsage() = %+v, %v", mem, err)
	}
	if _, err := svc.MemorySizes(ctx, ep); err != nil {
		t.Errorf("MemorySizes() error = %v", err)
	}

	newTime := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	if err := svc.SetDeviceTime(ctx, ep, newTime); err != nil {
		t.Fatalf("SetDeviceTime() error = %v", err)
	}
	dt, err := svc.DeviceTime(ctx, ep)
	if err != nil || !dt.Time.Equal(newTime) {
		t.Errorf("DeviceTime() = %v, %v; want %v", dt.Time, err, newTime)
	}

	if err := svc.Restart(ctx, ep); err != nil {
		t.Errorf("Restart() error = %v", err)
	}
	if fake.Terminal().Restarts != 1 {
		t.Errorf("Restarts = %d, want 1", fake.Terminal().Restarts)
	}
}

func TestService_UnlockFallsBack(t *testing.T) {
	svc, fake, sk := newTestService(t)
	fake.FailDial(terminal.TransportTCP, errors.New("connection refused"))

	tr, err := svc.Unlock(context.Background(), testEndpoint(), 3)
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if tr != terminal.TransportUDP {
		t.Errorf("transport = %q, want udp", tr)
	}
	if got := fake.Terminal().Unlocks; len(got) != 1 || got[0] != 3*time.Second {
		t.Errorf("Unlocks = %v, want [3s]", got)
	}
	if sk.ops[0].Transport != terminal.TransportUDP {
		t.Errorf("audited transport = %q, want udp", sk.ops[0].Transport)
	}
}

func TestService_UnlockValidatesSeconds(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Unlock(context.Background(), testEndpoint(), 0); terminal.KindOf(err) != terminal.KindInvalid {
		t.Errorf("Unlock(0) kind = %v, want invalid", terminal.KindOf(err))
	}
}

func TestService_TestVoice(t *testing.T) {
	svc, fake, _ := newTestService(t)

	tr, err := svc.TestVoice(context.Background(), testEndpoint(), 1)
	if err != nil {
		t.Fatalf("TestVoice() error = %v", err)
	}
	if tr != terminal.TransportTCP {
		t.Errorf("transport = %q, want tcp", tr)
	}
	if got := fake.Terminal().Voices; len(got) != 1 || got[0] != 1 {
		t.Errorf("Voices = %v, want [1]", got)
	}
	if _, err := svc.TestVoice(context.Background(), testEndpoint(), 99); terminal.KindOf(err) != terminal.KindInvalid {
		t.Errorf("TestVoice(99) kind = %v, want invalid", terminal.KindOf(err))
	}
}

func TestService_Health(t *testing.T) {
	t.Run("fallback success", func(t *testing.T) {
		svc, fake, sk := newTestService(t)
		fake.FailDial(terminal.TransportTCP, errors.New("refused"))

		rep, err := svc.Health(context.Background(), testEndpoint())
		if err != nil {
			t.Fatalf("Health() error = %v", err)
		}
		if !rep.OK || rep.Transport != terminal.TransportUDP || rep.Time != "2024-06-20T09:30:00" {
			t.Errorf("Health() = %+v", rep)
		}
		if len(sk.probes) != 1 || len(sk.metrics) != 1 || !sk.metrics[0].OK || sk.metrics[0].Attempts != 2 {
			t.Errorf("probe side channels = %+v / %+v", sk.probes, sk.metrics)
		}
	})

	t.Run("both fail", func(t *testing.T) {
		svc, fake, sk := newTestService(t)
		fake.FailDial(terminal.TransportTCP, errors.New("tcp refused"))
		fake.FailDial(terminal.TransportUDP, errors.New("udp timeout"))

		rep, err := svc.Health(context.Background(), testEndpoint())
		if err != nil {
			t.Fatalf("Health() error = %v, want report", err)
		}
		if rep.OK {
			t.Error("OK = true, want false")
		}
		if rep.Error != "health over tcp: tcp refused" {
			t.Errorf("Error = %q", rep.Error)
		}
		if rep.UDPError != "health over udp: udp timeout" {
			t.Errorf("UDPError = %q", rep.UDPError)
		}
		if sk.metrics[0].OK {
			t.Error("metric should record failure")
		}
	})
}

func TestService_Status(t *testing.T) {
	svc, fake, _ := newTestService(t)

	rep, err := svc.Status(context.Background(), testEndpoint())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !rep.Connected || rep.Transport != terminal.TransportTCP || rep.LatencyMS == nil {
		t.Errorf("Status() = %+v", rep)
	}

	fake.FailDial(terminal.TransportTCP, errors.New("tcp refused"))
	fake.FailDial(terminal.TransportUDP, errors.New("udp refused"))
	rep, err = svc.Status(context.Background(), testEndpoint())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if rep.Connected || rep.Error == "" || rep.LatencyMS != nil {
		t.Errorf("Status() = %+v, want disconnected with error", rep)
	}
}

func TestService_ConnectReleasesSession(t *testing.T) {
	svc, fake, _ := newTestService(t)

	if err := svc.Connect(context.Background(), testEndpoint()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if n := fake.Disconnects(); n != 1 {
		t.Errorf("Disconnects() = %d, want 1", n)
	}
}

func TestService_ToggleUnsupported(t *testing.T) {
	svc, fake, _ := newTestService(t)

	err := svc.Toggle(context.Background(), testEndpoint())
	if terminal.KindOf(err) != terminal.KindUnsupported {
		t.Errorf("KindOf() = %v, want unsupported", terminal.KindOf(err))
	}
	if !errors.Is(err, terminal.ErrUnsupported) {
		t.Error("errors.Is(err, ErrUnsupported) = false")
	}
	if len(fake.Dials()) != 0 {
		t.Error("toggle should not contact the terminal")
	}
}

func TestService_SideChannelFailuresDoNotFailOperations(t *testing.T) {
	svc, _, sk := newTestService(t)
	sk.failWith = errors.New("broker down")

	if _, err := svc.CreateUser(context.Background(), testEndpoint(), terminal.UserCreate{UID: 9, Name: "Z"}); err != nil {
		t.Errorf("CreateUser() error = %v, want nil", err)
	}
	if rep, err := svc.Health(context.Background(), testEndpoint()); err != nil || !rep.OK {
		t.Errorf("Health() = %+v, %v", rep, err)
	}
}
