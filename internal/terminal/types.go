package terminal

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"
)

// TimestampLayout is the wire format for terminal wall-clock times.
// Terminals have no notion of timezone, so no offset is written.
const TimestampLayout = "2006-01-02T15:04:05"

// Transport is the network transport used to reach a terminal.
type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// ParseTransport converts "tcp" or "udp" to a Transport.
func ParseTransport(s string) (Transport, error) {
	switch Transport(s) {
	case TransportTCP, TransportUDP:
		return Transport(s), nil
	default:
		return "", invalidf("parse transport", "unknown transport %q", s)
	}
}

// Endpoint addresses one terminal. It is built fresh for every request
// and never mutated afterwards.
type Endpoint struct {
	Host      string
	Port      int
	CommKey   int
	Timeout   time.Duration
	Transport Transport
	OmitPing  bool
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String formats the endpoint for logs. The comm key is never included.
func (e Endpoint) String() string {
	if e.Transport == "" {
		return e.Address()
	}
	return string(e.Transport) + "://" + e.Address()
}

// WithTransport returns a copy of e using t.
func (e Endpoint) WithTransport(t Transport) Endpoint {
	e.Transport = t
	return e
}

// Validate reports a KindInvalid error for an unusable endpoint.
func (e Endpoint) Validate() error {
	switch {
	case e.Host == "":
		return invalidf("endpoint", "host is required")
	case e.Port < 1 || e.Port > 65535:
		return invalidf("endpoint", "port %d out of range", e.Port)
	case e.CommKey < 0:
		return invalidf("endpoint", "comm key must not be negative")
	case e.Timeout < 0:
		return invalidf("endpoint", "timeout must not be negative")
	}
	if _, err := ParseTransport(string(e.Transport)); err != nil {
		return err
	}
	return nil
}

// RawUser is a user record as the driver read it from the terminal.
// Strings may carry NUL padding from fixed-width device fields.
type RawUser struct {
	UID       int
	Name      string
	Privilege int
	Password  string
	GroupID   string
	UserID    string
	Card      int64
}

// UserRecord is a normalised terminal user.
//
// UID is the terminal's primary key. UserID is the secondary string key
// printed on badges and used by attendance records.
type UserRecord struct {
	UID       int    `json:"uid"`
	Name      string `json:"name"`
	Privilege int    `json:"privilege"`
	Password  string `json:"password,omitempty"`
	GroupID   string `json:"group_id"`
	UserID    string `json:"user_id"`
	Card      int64  `json:"card"`
}

// Privilege levels understood by the terminals.
const (
	PrivilegeUser  = 0
	PrivilegeAdmin = 14
)

// RawAttendance is an attendance punch as the driver read it.
// Timestamp is terminal wall-clock time; its location is not meaningful.
type RawAttendance struct {
	UID       int
	UserID    string
	Timestamp time.Time
	Status    int
	Punch     int
}

// AttendanceEvent is a normalised attendance punch. Timestamp is in the
// site timezone.
type AttendanceEvent struct {
	UserID    string
	Timestamp time.Time
	Status    int
	Punch     int
	UID       int
}

// MarshalJSON writes the event as {user_id, timestamp, status}.
func (a AttendanceEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID    string `json:"user_id"`
		Timestamp string `json:"timestamp"`
		Status    int    `json:"status"`
	}{
		UserID:    a.UserID,
		Timestamp: a.Timestamp.Format(TimestampLayout),
		Status:    a.Status,
	})
}

// InfoField names one device identity attribute.
type InfoField string

const (
	FieldDeviceName      InfoField = "device_name"
	FieldFirmwareVersion InfoField = "firmware_version"
	FieldSerialNumber    InfoField = "serial_number"
	FieldPlatform        InfoField = "platform"
	FieldMAC             InfoField = "mac"
	FieldFaceVersion     InfoField = "face_version"
	FieldFPVersion       InfoField = "fp_version"
)

// InfoFields lists every identity field in response order.
var InfoFields = []InfoField{
	FieldDeviceName,
	FieldFirmwareVersion,
	FieldSerialNumber,
	FieldPlatform,
	FieldMAC,
	FieldFaceVersion,
	FieldFPVersion,
}

// DeviceInfo is the terminal identity snapshot. A nil field means the
// terminal could not report it; all seven keys are always serialised.
type DeviceInfo struct {
	DeviceName      *string `json:"device_name"`
	FirmwareVersion *string `json:"firmware_version"`
	SerialNumber    *string `json:"serial_number"`
	Platform        *string `json:"platform"`
	MAC             *string `json:"mac"`
	FaceVersion     *string `json:"face_version"`
	FPVersion       *string `json:"fp_version"`
}

// field returns the slot for f.
func (d *DeviceInfo) field(f InfoField) **string {
	switch f {
	case FieldDeviceName:
		return &d.DeviceName
	case FieldFirmwareVersion:
		return &d.FirmwareVersion
	case FieldSerialNumber:
		return &d.SerialNumber
	case FieldPlatform:
		return &d.Platform
	case FieldMAC:
		return &d.MAC
	case FieldFaceVersion:
		return &d.FaceVersion
	case FieldFPVersion:
		return &d.FPVersion
	default:
		panic(fmt.Sprintf("terminal: unknown info field %q", f))
	}
}

// Get returns the value of f and whether the terminal reported it.
func (d DeviceInfo) Get(f InfoField) (string, bool) {
	p := *d.field(f)
	if p == nil {
		return "", false
	}
	return *p, true
}

// MemoryUsage reports record counts and capacities.
type MemoryUsage struct {
	Users           int `json:"users"`
	Fingers         int `json:"fingers"`
	Records         int `json:"records"`
	Faces           int `json:"faces"`
	UsersCapacity   int `json:"users_capacity"`
	FingersCapacity int `json:"fingers_capacity"`
	RecordsCapacity int `json:"records_capacity"`
	FacesCapacity   int `json:"faces_capacity"`
}

// NetworkParams is the terminal's IP configuration.
type NetworkParams struct {
	IP      string `json:"ip"`
	Mask    string `json:"mask"`
	Gateway string `json:"gateway"`
}

// DeviceTime is the terminal clock.
type DeviceTime struct {
	Time time.Time
}

// MarshalJSON writes {device_time}.
func (d DeviceTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"device_time": d.Time.Format(TimestampLayout),
	})
}
