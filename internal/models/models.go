package models

import (
	"time"
)

// PlaybackMode tells the media server how to rotate among multiple prerolls.
type PlaybackMode string

const (
	PlaybackRandom     PlaybackMode = "random"
	PlaybackSequential PlaybackMode = "sequential"
)

// Category groups preroll files under a playback mode.
type Category struct {
	ID           string       `gorm:"type:uuid;primaryKey"`
	Name         string       `gorm:"uniqueIndex"`
	Description  string       `gorm:"type:text"`
	PlaybackMode PlaybackMode `gorm:"type:varchar(16);default:'random'"`
	Prerolls     []Preroll    `gorm:"many2many:preroll_categories"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Preroll is a single video asset. Managed=false means the file is externally
// owned and must never be moved or deleted on disk.
type Preroll struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	Name       string `gorm:"index"`
	Path       string
	Tags       string `gorm:"type:text"`
	DurationMS int64
	Managed    bool       `gorm:"default:true"`
	Categories []Category `gorm:"many2many:preroll_categories"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ScheduleType enumerates recurrence types.
type ScheduleType string

const (
	ScheduleCustom  ScheduleType = "custom"
	ScheduleMonthly ScheduleType = "monthly"
	ScheduleYearly  ScheduleType = "yearly"
	ScheduleHoliday ScheduleType = "holiday"
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
)

// Weekday bits for weekly schedules, Sunday = bit 0.
const (
	WeekdaySunday uint8 = 1 << iota
	WeekdayMonday
	WeekdayTuesday
	WeekdayWednesday
	WeekdayThursday
	WeekdayFriday
	WeekdaySaturday
)

// Schedule is the recurrence + targeting unit. Date fields hold naive local
// wall-clock values; they are never timezone-shifted after storage. The engine
// treats schedules as read-only except for the LastRunAt/LastSignature stamps.
type Schedule struct {
	ID   string       `gorm:"type:uuid;primaryKey"`
	Name string       `gorm:"index"`
	Type ScheduleType `gorm:"type:varchar(16);index"`

	// custom/daily/weekly date range. EndDate nil means open-ended.
	StartDate *time.Time
	EndDate   *time.Time

	// Optional time-of-day window, "HH:MM". EndTime before StartTime denotes
	// an overnight window spanning midnight.
	StartTime string `gorm:"type:varchar(5)"`
	EndTime   string `gorm:"type:varchar(5)"`

	// yearly/holiday month-day window; year and timezone are irrelevant.
	StartMonth int
	StartDay   int
	EndMonth   int
	EndDay     int

	// holiday schedules may instead name an entry in the holiday calendar.
	HolidayName string `gorm:"type:varchar(64)"`

	// monthly day-of-month window.
	MonthDayStart int
	MonthDayEnd   int

	// weekly weekday bitmask, Sunday = bit 0.
	Weekdays uint8

	// Targeting: exactly one of CategoryID / SequenceID is expected.
	CategoryID *string `gorm:"type:uuid;index"`
	SequenceID *string `gorm:"type:uuid;index"`

	Exclusive bool
	Priority  int `gorm:"index"`
	// WinTie breaks priority ties among exclusive schedules.
	WinTie  bool
	Enabled bool `gorm:"default:true;index"`

	FallbackCategoryID *string `gorm:"type:uuid"`

	// Idempotence bookkeeping stamped by the scheduler; never edited by users.
	LastRunAt     *time.Time
	LastSignature string `gorm:"type:varchar(64)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BlockSpec is the stored shape of one sequence block. It is loosely typed on
// disk; the sequence resolver converts it into a tagged union and rejects
// unknown types.
type BlockSpec struct {
	Type       string   `json:"type"`
	CategoryID string   `json:"category_id,omitempty"`
	Count      int      `json:"count,omitempty"`
	PrerollIDs []string `json:"preroll_ids,omitempty"`
}

// Sequence is an ordered recipe of blocks assembling a concrete playlist.
type Sequence struct {
	ID          string      `gorm:"type:uuid;primaryKey"`
	Name        string      `gorm:"uniqueIndex"`
	Description string      `gorm:"type:text"`
	Blocks      []BlockSpec `gorm:"serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ServerKind enumerates supported media server types.
type ServerKind string

const (
	ServerPlex     ServerKind = "plex"
	ServerJellyfin ServerKind = "jellyfin"
)

// Platform describes the path grammar a media server host understands.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformPosix   Platform = "posix"
)

// MediaServer is a remote apply target.
type MediaServer struct {
	ID       string     `gorm:"type:uuid;primaryKey"`
	Name     string     `gorm:"uniqueIndex"`
	Kind     ServerKind `gorm:"type:varchar(16)"`
	BaseURL  string
	Token    string
	Platform Platform `gorm:"type:varchar(16);default:'posix'"`
	Enabled  bool     `gorm:"default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PathMapping rewrites a local storage prefix into the prefix a media server
// can read. Matching is longest-source-prefix wins; Position breaks ties.
type PathMapping struct {
	ID           string  `gorm:"type:uuid;primaryKey"`
	ServerID     *string `gorm:"type:uuid;index"` // nil = applies to all servers
	SourcePrefix string
	DestPrefix   string
	Position     int `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DispatchState enumerates the apply dispatcher's per-server states.
type DispatchState string

const (
	DispatchIdle        DispatchState = "idle"
	DispatchResolving   DispatchState = "resolving"
	DispatchTranslating DispatchState = "translating"
	DispatchDispatching DispatchState = "dispatching"
	DispatchApplied     DispatchState = "applied"
	DispatchFailed      DispatchState = "failed"
)

// ApplyState tracks the last apply attempt per media server. It is the only
// mutable shared state between ticks and manual triggers.
type ApplyState struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	ServerID string `gorm:"type:uuid;uniqueIndex"`

	State          DispatchState `gorm:"type:varchar(16)"`
	LastSignature  string        `gorm:"type:varchar(64)"`
	LastAppliedAt  *time.Time
	LastAttemptAt  *time.Time
	LastError      string `gorm:"type:text"`
	LastResolution string `gorm:"type:text"` // JSON snapshot for the dashboard

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides for GORM.
func (Category) TableName() string    { return "categories" }
func (Preroll) TableName() string     { return "prerolls" }
func (Schedule) TableName() string    { return "schedules" }
func (Sequence) TableName() string    { return "sequences" }
func (MediaServer) TableName() string { return "media_servers" }
func (PathMapping) TableName() string { return "path_mappings" }
func (ApplyState) TableName() string  { return "apply_states" }

// Delimiter returns the join delimiter the media server expects for this
// playback mode: shuffle uses ";", ordered playlists use ",".
func (m PlaybackMode) Delimiter() string {
	if m == PlaybackSequential {
		return ","
	}
	return ";"
}

// HasWeekday reports whether the weekly schedule includes the given weekday.
func (s *Schedule) HasWeekday(wd time.Weekday) bool {
	return s.Weekdays&(1<<uint8(wd)) != 0
}

// TargetsSequence reports whether the schedule targets a block sequence
// rather than a plain category.
func (s *Schedule) TargetsSequence() bool {
	return s.SequenceID != nil && *s.SequenceID != ""
}
