package terminal

import (
	"strconv"
	"unicode/utf8"
)

// Field limits of the terminal user table.
const (
	MaxUID         = 65535
	MaxNameLength  = 24
	MaxPasswordLen = 8
	MaxUserIDLen   = 9
)

// DefaultGroupID is assigned to new users that name no group.
const DefaultGroupID = "1"

// UserCreate is the input for creating a user. Empty optional fields take
// defaults: user id = decimal UID, group = DefaultGroupID.
type UserCreate struct {
	UID       int
	Name      string
	Privilege int
	Password  string
	GroupID   string
	UserID    string
}

// Record returns the full record to write.
func (c UserCreate) Record() UserRecord {
	u := UserRecord{
		UID:       c.UID,
		Name:      c.Name,
		Privilege: c.Privilege,
		Password:  c.Password,
		GroupID:   c.GroupID,
		UserID:    c.UserID,
	}
	if u.UserID == "" {
		u.UserID = strconv.Itoa(u.UID)
	}
	if u.GroupID == "" {
		u.GroupID = DefaultGroupID
	}
	return u
}

// UserPatch is a partial update. Nil fields keep the value currently
// stored on the terminal.
type UserPatch struct {
	Name      *string
	Privilege *int
	Password  *string
	GroupID   *string
	UserID    *string
	Card      *int64
}

// MergeUser overlays p on current. UID never changes.
func MergeUser(current UserRecord, p UserPatch) UserRecord {
	merged := current
	if p.Name != nil {
		merged.Name = *p.Name
	}
	if p.Privilege != nil {
		merged.Privilege = *p.Privilege
	}
	if p.Password != nil {
		merged.Password = *p.Password
	}
	if p.GroupID != nil {
		merged.GroupID = *p.GroupID
	}
	if p.UserID != nil {
		merged.UserID = *p.UserID
	}
	if p.Card != nil {
		merged.Card = *p.Card
	}
	return merged
}

// ValidateUID reports a KindInvalid error for a UID outside 1..MaxUID.
func ValidateUID(uid int) error {
	if uid < 1 || uid > MaxUID {
		return invalidf("validate user", "uid %d out of range 1..%d", uid, MaxUID)
	}
	return nil
}

// Validate checks u against the terminal's field limits. An empty name is
// allowed because terminals store users enrolled without one.
func (u UserRecord) Validate() error {
	if err := ValidateUID(u.UID); err != nil {
		return err
	}
	switch {
	case utf8.RuneCountInString(u.Name) > MaxNameLength:
		return invalidf("validate user", "name longer than %d characters", MaxNameLength)
	case len(u.Password) > MaxPasswordLen:
		return invalidf("validate user", "password longer than %d characters", MaxPasswordLen)
	case len(u.UserID) > MaxUserIDLen:
		return invalidf("validate user", "user_id longer than %d characters", MaxUserIDLen)
	case u.Privilege < 0:
		return invalidf("validate user", "privilege must not be negative")
	case u.Card < 0:
		return invalidf("validate user", "card must not be negative")
	}
	return nil
}

func (u UserRecord) raw() RawUser {
	return RawUser{
		UID:       u.UID,
		Name:      u.Name,
		Privilege: u.Privilege,
		Password:  u.Password,
		GroupID:   u.GroupID,
		UserID:    u.UserID,
		Card:      u.Card,
	}
}

func findUser(users []UserRecord, uid int) (UserRecord, bool) {
	for _, u := range users {
		if u.UID == uid {
			return u, true
		}
	}
	return UserRecord{}, false
}

// findStoredUser looks uid up in the raw table without the display
// fallbacks NormalizeUser applies.
func findStoredUser(raw []RawUser, uid int) (UserRecord, bool) {
	for _, r := range raw {
		if r.UID == uid {
			return storedUser(r), true
		}
	}
	return UserRecord{}, false
}

func findUserByUserID(users []UserRecord, userID string) (UserRecord, bool) {
	for _, u := range users {
		if u.UserID == userID {
			return u, true
		}
	}
	return UserRecord{}, false
}
