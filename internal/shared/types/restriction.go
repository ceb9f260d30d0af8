package types

import (
	"fmt"
	"strings"
)

// RestrictionLevel is the background restriction level of a package.
// Higher values are more restrictive.
type RestrictionLevel int

const (
	LevelUnknown              RestrictionLevel = 0
	LevelExempted             RestrictionLevel = 10
	LevelAdaptiveBucket       RestrictionLevel = 20
	LevelRestrictedBucket     RestrictionLevel = 40
	LevelBackgroundRestricted RestrictionLevel = 50
	LevelHibernation          RestrictionLevel = 60
)

var levelNames = map[RestrictionLevel]string{
	LevelUnknown:              "unknown",
	LevelExempted:             "exempted",
	LevelAdaptiveBucket:       "adaptive_bucket",
	LevelRestrictedBucket:     "restricted_bucket",
	LevelBackgroundRestricted: "background_restricted",
	LevelHibernation:          "hibernation",
}

// String returns the string representation of the level
func (l RestrictionLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the defined levels
func (l RestrictionLevel) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// MarshalText implements encoding.TextMarshaler
func (l RestrictionLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *RestrictionLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseRestrictionLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseRestrictionLevel parses a level name, case-insensitively.
// Dashes are accepted in place of underscores.
func ParseRestrictionLevel(s string) (RestrictionLevel, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for level, n := range levelNames {
		if n == name {
			return level, nil
		}
	}
	return LevelUnknown, fmt.Errorf("unknown restriction level %q", s)
}

// MaxLevel returns the more restrictive of a and b
func MaxLevel(a, b RestrictionLevel) RestrictionLevel {
	if a > b {
		return a
	}
	return b
}

// MinLevel returns the less restrictive of a and b
func MinLevel(a, b RestrictionLevel) RestrictionLevel {
	if a < b {
		return a
	}
	return b
}

// StandbyBucket is the usage tier assigned by the standby subsystem.
type StandbyBucket int

const (
	BucketExempted   StandbyBucket = 5
	BucketActive     StandbyBucket = 10
	BucketWorkingSet StandbyBucket = 20
	BucketFrequent   StandbyBucket = 30
	BucketRare       StandbyBucket = 40
	BucketRestricted StandbyBucket = 45
	BucketNever      StandbyBucket = 50
)

var bucketNames = map[StandbyBucket]string{
	BucketExempted:   "exempted",
	BucketActive:     "active",
	BucketWorkingSet: "working_set",
	BucketFrequent:   "frequent",
	BucketRare:       "rare",
	BucketRestricted: "restricted",
	BucketNever:      "never",
}

// String returns the string representation of the bucket
func (b StandbyBucket) String() string {
	if name, ok := bucketNames[b]; ok {
		return name
	}
	return fmt.Sprintf("bucket(%d)", int(b))
}

// Valid reports whether b is one of the defined buckets
func (b StandbyBucket) Valid() bool {
	_, ok := bucketNames[b]
	return ok
}

// MarshalText implements encoding.TextMarshaler
func (b StandbyBucket) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *StandbyBucket) UnmarshalText(text []byte) error {
	parsed, err := ParseStandbyBucket(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseStandbyBucket parses a bucket name, case-insensitively
func ParseStandbyBucket(s string) (StandbyBucket, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for bucket, n := range bucketNames {
		if n == name {
			return bucket, nil
		}
	}
	return 0, fmt.Errorf("unknown standby bucket %q", s)
}

// MainReason says why a level transition happened.
type MainReason uint16

// SubReason qualifies a MainReason.
type SubReason uint16

const (
	reasonMainMask uint16 = 0xFF00
	reasonSubMask  uint16 = 0x00FF
)

const (
	MainUndefined      MainReason = 0x0000
	MainDefault        MainReason = 0x0100
	MainUsage          MainReason = 0x0300
	MainForcedByUser   MainReason = 0x0400
	MainForcedBySystem MainReason = 0x0600
)

const (
	SubUndefined         SubReason = 0x00
	SubSystemInteraction SubReason = 0x01
	SubFlagInteraction   SubReason = 0x02
	SubUserInteraction   SubReason = 0x03
)

// Reason packs a main and a sub reason into one value.
type Reason uint16

// NewReason packs main and sub into a Reason
func NewReason(main MainReason, sub SubReason) Reason {
	return Reason(uint16(main)&reasonMainMask | uint16(sub)&reasonSubMask)
}

// Main returns the main reason
func (r Reason) Main() MainReason {
	return MainReason(uint16(r) & reasonMainMask)
}

// Sub returns the sub reason
func (r Reason) Sub() SubReason {
	return SubReason(uint16(r) & reasonSubMask)
}

// String renders the reason as "main-sub" for diagnostics
func (r Reason) String() string {
	return r.Main().String() + "-" + r.Sub().String()
}

// ParseReason parses the "main-sub" form produced by String. A bare main
// name leaves the sub reason undefined.
func ParseReason(s string) (Reason, error) {
	mainName, subName, _ := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "-")
	var (
		main MainReason
		ok   bool
	)
	for _, m := range []MainReason{MainUndefined, MainDefault, MainUsage, MainForcedByUser, MainForcedBySystem} {
		if m.String() == mainName {
			main, ok = m, true
			break
		}
	}
	if !ok {
		return 0, fmt.Errorf("unknown reason %q", s)
	}
	if subName == "" {
		return NewReason(main, SubUndefined), nil
	}
	for _, candidate := range []SubReason{SubUndefined, SubSystemInteraction, SubFlagInteraction, SubUserInteraction} {
		if candidate.String() == subName {
			return NewReason(main, candidate), nil
		}
	}
	return 0, fmt.Errorf("unknown reason %q", s)
}

// String returns the string representation of the main reason
func (m MainReason) String() string {
	switch m {
	case MainUndefined:
		return "undefined"
	case MainDefault:
		return "default"
	case MainUsage:
		return "usage"
	case MainForcedByUser:
		return "forced_by_user"
	case MainForcedBySystem:
		return "forced_by_system"
	default:
		return fmt.Sprintf("main(%#04x)", uint16(m))
	}
}

// String returns the string representation of the sub reason
func (s SubReason) String() string {
	switch s {
	case SubUndefined:
		return "undefined"
	case SubSystemInteraction:
		return "system_interaction"
	case SubFlagInteraction:
		return "flag_interaction"
	case SubUserInteraction:
		return "user_interaction"
	default:
		return fmt.Sprintf("sub(%#02x)", uint16(s))
	}
}

// Common reasons used by the controller.
var (
	ReasonDefault       = NewReason(MainDefault, SubUndefined)
	ReasonUserFlag      = NewReason(MainForcedByUser, SubFlagInteraction)
	ReasonSystemForced  = NewReason(MainForcedBySystem, SubUndefined)
	ReasonUsageByUser   = NewReason(MainUsage, SubUserInteraction)
	ReasonUsageBySystem = NewReason(MainUsage, SubSystemInteraction)
)

// PerUserRange is the number of uids reserved for each user.
const PerUserRange = 100000

// UserID returns the user that owns uid
func UserID(uid int) int {
	return uid / PerUserRange
}

// AppID returns the user-independent part of uid
func AppID(uid int) int {
	return uid % PerUserRange
}

// UID composes a uid from a user and an app id
func UID(userID, appID int) int {
	return userID*PerUserRange + appID%PerUserRange
}
