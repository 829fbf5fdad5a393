// Package terminaltest provides an in-memory terminal driver for tests.
//
// The fake counts dials and disconnects per transport and can be told to
// fail a dial, fail or panic inside a named session method, or fail the
// disconnect, which is what the session and fallback properties need.
package terminaltest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/terminal"
)

// Method names accepted by FailOp and PanicOp.
const (
	MethodUsers         = "Users"
	MethodSetUser       = "SetUser"
	MethodDeleteUser    = "DeleteUser"
	MethodAttendance    = "Attendance"
	MethodTime          = "Time"
	MethodSetTime       = "SetTime"
	MethodNetworkParams = "NetworkParams"
	MethodReadSizes     = "ReadSizes"
	MethodInfo          = "Info"
	MethodUnlock        = "Unlock"
	MethodTestVoice     = "TestVoice"
	MethodRestart       = "Restart"
)

// Terminal is the state behind the fake. Tests may read and seed the
// exported fields directly while no call is in flight.
type Terminal struct {
	Users      []terminal.RawUser
	Attendance []terminal.RawAttendance
	Clock      time.Time
	Network    terminal.NetworkParams
	Sizes      terminal.MemoryUsage

	// Info holds identity fields. A missing key reads as ErrUnsupported.
	Info map[terminal.InfoField]string

	// InfoErrors makes individual identity fields fail with the given error.
	InfoErrors map[terminal.InfoField]error

	Unlocks  []time.Duration
	Voices   []int
	Restarts int
}

// Driver is a terminal.Driver backed by a Terminal.
type Driver struct {
	mu sync.Mutex

	term    *Terminal
	commKey int

	dialErr       map[terminal.Transport]error
	opErr         map[string]error
	panicOn       map[string]bool
	disconnectErr error

	dials       []terminal.Transport
	disconnects int
	endpoints   []terminal.Endpoint
}

// New returns a driver with a terminal reporting every identity field.
func New() *Driver {
	return &Driver{
		term: &Terminal{
			Clock:   time.Date(2024, 6, 20, 9, 30, 0, 0, time.UTC),
			Network: terminal.NetworkParams{IP: "192.168.1.201", Mask: "255.255.255.0", Gateway: "192.168.1.1"},
			Sizes: terminal.MemoryUsage{
				UsersCapacity: 3000, FingersCapacity: 3000, RecordsCapacity: 100000, FacesCapacity: 400,
			},
			Info: map[terminal.InfoField]string{
				terminal.FieldDeviceName:      "K40",
				terminal.FieldFirmwareVersion: "Ver 6.60 Apr 28 2020",
				terminal.FieldSerialNumber:    "CKPG201060123",
				terminal.FieldPlatform:        "ZMM220_TFT",
				terminal.FieldMAC:             "00:17:61:12:34:56",
				terminal.FieldFaceVersion:     "7",
				terminal.FieldFPVersion:       "10",
			},
			InfoErrors: map[terminal.InfoField]error{},
		},
		dialErr: map[terminal.Transport]error{},
		opErr:   map[string]error{},
		panicOn: map[string]bool{},
	}
}

// Terminal returns the backing state.
func (d *Driver) Terminal() *Terminal { return d.term }

// RequireCommKey makes Dial reject endpoints with a different comm key.
func (d *Driver) RequireCommKey(key int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commKey = key
}

// FailDial makes every dial over t fail with err. A nil err clears it.
func (d *Driver) FailDial(t terminal.Transport, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.dialErr, t)
		return
	}
	d.dialErr[t] = err
}

// FailOp makes the named session method fail with err.
func (d *Driver) FailOp(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opErr[method] = err
}

// PanicOp makes the named session method panic.
func (d *Driver) PanicOp(method string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.panicOn[method] = true
}

// FailDisconnect makes Disconnect return err.
func (d *Driver) FailDisconnect(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnectErr = err
}

// Dials returns the transports dialled, in order, including failed dials.
func (d *Driver) Dials() []terminal.Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]terminal.Transport(nil), d.dials...)
}

// Disconnects returns how many times Disconnect was called.
func (d *Driver) Disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disconnects
}

// LastEndpoint returns the endpoint of the most recent dial.
func (d *Driver) LastEndpoint() terminal.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.endpoints) == 0 {
		return terminal.Endpoint{}
	}
	return d.endpoints[len(d.endpoints)-1]
}

// Dial implements terminal.Driver.
func (d *Driver) Dial(ctx context.Context, ep terminal.Endpoint) (terminal.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, ep.Transport)
	d.endpoints = append(d.endpoints, ep)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := d.dialErr[ep.Transport]; ok {
		return nil, err
	}
	if d.commKey != 0 && ep.CommKey != d.commKey {
		return nil, fmt.Errorf("%w: comm key rejected by %s", terminal.ErrAuthFailed, ep.Address())
	}
	return &session{d: d}, nil
}

type session struct {
	d      *Driver
	closed bool
}

// enter runs the failure injection for method. It returns with d.mu held
// on success; the caller must unlock.
func (s *session) enter(method string) error {
	s.d.mu.Lock()
	if s.closed {
		s.d.mu.Unlock()
		return terminal.ErrSessionClosed
	}
	if s.d.panicOn[method] {
		s.d.mu.Unlock()
		panic("terminaltest: injected panic in " + method)
	}
	if err := s.d.opErr[method]; err != nil {
		s.d.mu.Unlock()
		return err
	}
	return nil
}

func (s *session) Users(context.Context) ([]terminal.RawUser, error) {
	if err := s.enter(MethodUsers); err != nil {
		return nil, err
	}
	defer s.d.mu.Unlock()
	return append([]terminal.RawUser(nil), s.d.term.Users...), nil
}

func (s *session) SetUser(_ context.Context, u terminal.RawUser) error {
	if err := s.enter(MethodSetUser); err != nil {
		return err
	}
	defer s.d.mu.Unlock()
	for i := range s.d.term.Users {
		if s.d.term.Users[i].UID == u.UID {
			s.d.term.Users[i] = u
			return nil
		}
	}
	s.d.term.Users = append(s.d.term.Users, u)
	return nil
}

func (s *session) DeleteUser(_ context.Context, uid int) error {
	if err := s.enter(MethodDeleteUser); err != nil {
		return err
	}
	defer s.d.mu.Unlock()
	return s.removeWhere(func(u terminal.RawUser) bool { return u.UID == uid })
}

func (s *session) removeWhere(match func(terminal.RawUser) bool) error {
	kept := s.d.term.Users[:0]
	removed := false
	for _, u := range s.d.term.Users {
		if match(u) {
			removed = true
			continue
		}
		kept = append(kept, u)
	}
	s.d.term.Users = kept
	if !removed {
		return terminal.ErrNotFound
	}
	return nil
}

func (s *session) Attendance(context.Context) ([]terminal.RawAttendance, error) {
	if err := s.enter(MethodAttendance); err != nil {
		return nil, err
	}
	defer s.d.mu.Unlock()
	return append([]terminal.RawAttendance(nil), s.d.term.Attendance...), nil
}

func (s *session) Time(context.Context) (time.Time, error) {
	if err := s.enter(MethodTime); err != nil {
		return time.Time{}, err
	}
	defer s.d.mu.Unlock()
	return s.d.term.Clock, nil
}

func (s *session) SetTime(_ context.Context, t time.Time) error {
	if err := s.enter(MethodSetTime); err != nil {
		return err
	}
	defer s.d.mu.Unlock()
	s.d.term.Clock = t
	return nil
}

func (s *session) NetworkParams(context.Context) (terminal.NetworkParams, error) {
	if err := s.enter(MethodNetworkParams); err != nil {
		return terminal.NetworkParams{}, err
	}
	defer s.d.mu.Unlock()
	return s.d.term.Network, nil
}

func (s *session) ReadSizes(context.Context) (terminal.MemoryUsage, error) {
	if err := s.enter(MethodReadSizes); err != nil {
		return terminal.MemoryUsage{}, err
	}
	defer s.d.mu.Unlock()
	sizes := s.d.term.Sizes
	sizes.Users = len(s.d.term.Users)
	sizes.Records = len(s.d.term.Attendance)
	return sizes, nil
}

func (s *session) Info(_ context.Context, f terminal.InfoField) (string, error) {
	if err := s.enter(MethodInfo); err != nil {
		return "", err
	}
	defer s.d.mu.Unlock()
	if err := s.d.term.InfoErrors[f]; err != nil {
		return "", err
	}
	v, ok := s.d.term.Info[f]
	if !ok {
		return "", fmt.Errorf("%w: %s", terminal.ErrUnsupported, f)
	}
	return v, nil
}

func (s *session) Unlock(_ context.Context, d time.Duration) error {
	if err := s.enter(MethodUnlock); err != nil {
		return err
	}
	defer s.d.mu.Unlock()
	s.d.term.Unlocks = append(s.d.term.Unlocks, d)
	return nil
}

func (s *session) TestVoice(_ context.Context, index int) error {
	if err := s.enter(MethodTestVoice); err != nil {
		return err
	}
	defer s.d.mu.Unlock()
	s.d.term.Voices = append(s.d.term.Voices, index)
	return nil
}

func (s *session) Restart(context.Context) error {
	if err := s.enter(MethodRestart); err != nil {
		return err
	}
	defer s.d.mu.Unlock()
	s.d.term.Restarts++
	return nil
}

func (s *session) Disconnect() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.disconnects++
	s.closed = true
	return s.d.disconnectErr
}
