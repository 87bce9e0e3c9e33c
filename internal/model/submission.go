package model

import (
	"fmt"
	"time"
)

// Source is a monitored application, keyed by its bundle identifier.
type Source struct {
	ID       int64   `json:"id" yaml:"id"`
	RemoteID *string `json:"remote_id,omitempty" yaml:"remote_id,omitempty"` // App Store Connect app id
	BundleID string  `json:"bundle_id" yaml:"bundle_id"`
	Name     *string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Metadata is the descriptive pass-through data reported with a submission.
// Every field is optional and immutable once stored.
type Metadata struct {
	DeviceModel        *string `json:"device_model,omitempty" yaml:"device_model,omitempty"`
	OSVersion          *string `json:"os_version,omitempty" yaml:"os_version,omitempty"`
	AppPlatform        *string `json:"app_platform,omitempty" yaml:"app_platform,omitempty"`
	DevicePlatform     *string `json:"device_platform,omitempty" yaml:"device_platform,omitempty"`
	DeviceFamily       *string `json:"device_family,omitempty" yaml:"device_family,omitempty"`
	Architecture       *string `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	ConnectionType     *string `json:"connection_type,omitempty" yaml:"connection_type,omitempty"`
	Locale             *string `json:"locale,omitempty" yaml:"locale,omitempty"`
	TimeZone           *string `json:"time_zone,omitempty" yaml:"time_zone,omitempty"`
	BatteryPercentage  *int64  `json:"battery_pct,omitempty" yaml:"battery_pct,omitempty"`
	AppUptimeMillis    *int64  `json:"app_uptime_ms,omitempty" yaml:"app_uptime_ms,omitempty"`
	DiskBytesAvailable *int64  `json:"disk_bytes_available,omitempty" yaml:"disk_bytes_available,omitempty"`
	DiskBytesTotal     *int64  `json:"disk_bytes_total,omitempty" yaml:"disk_bytes_total,omitempty"`
	ScreenWidth        *int64  `json:"screen_width,omitempty" yaml:"screen_width,omitempty"`
	ScreenHeight       *int64  `json:"screen_height,omitempty" yaml:"screen_height,omitempty"`
	BuildBundleID      *string `json:"build_bundle_id,omitempty" yaml:"build_bundle_id,omitempty"`
	BuildID            *string `json:"build_id,omitempty" yaml:"build_id,omitempty"`
	TesterEmail        *string `json:"tester_email,omitempty" yaml:"tester_email,omitempty"`
	TesterComment      *string `json:"tester_comment,omitempty" yaml:"tester_comment,omitempty"`
}

// Submission is a stored crash report or feedback item.
type Submission struct {
	// ===== Identity =====
	ID           int64  `json:"id" yaml:"id"`
	SourceID     int64  `json:"source_id" yaml:"source_id"`
	Kind         Kind   `json:"kind" yaml:"kind"`
	SubmissionID string `json:"submission_id" yaml:"submission_id"`

	// ===== Timestamps =====
	CreatedAt time.Time `json:"created_at" yaml:"created_at"` // remote, authoritative
	SyncedAt  time.Time `json:"synced_at" yaml:"synced_at"`   // local clock

	Metadata `yaml:",inline"`

	// ===== Artifact (mutated by recovery) =====
	HasArtifact       bool    `json:"has_artifact" yaml:"has_artifact"`
	ArtifactPath      *string `json:"artifact_path,omitempty" yaml:"artifact_path,omitempty"`
	ArtifactMediaType *string `json:"artifact_media_type,omitempty" yaml:"artifact_media_type,omitempty"`

	// ===== Review (mutated by the review state machine) =====
	Status      Status     `json:"status" yaml:"status"`
	FixedAt     *time.Time `json:"fixed_at,omitempty" yaml:"fixed_at,omitempty"`
	Notes       *string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	DuplicateOf *int64     `json:"duplicate_of,omitempty" yaml:"duplicate_of,omitempty"`

	// ===== Joined from sources =====
	SourceBundleID string  `json:"app_bundle_id" yaml:"app_bundle_id"`
	SourceName     *string `json:"app_name,omitempty" yaml:"app_name,omitempty"`
}

// NewSubmission is the insert payload for a submission first seen remotely.
type NewSubmission struct {
	Kind         Kind
	SourceID     int64
	SubmissionID string
	CreatedAt    time.Time
	Metadata
}

// Validate checks that the fields required for insertion are present.
func (n *NewSubmission) Validate() error {
	if !n.Kind.Valid() {
		return fmt.Errorf("invalid kind %q", n.Kind)
	}
	if n.SubmissionID == "" {
		return fmt.Errorf("submission_id is required")
	}
	if n.SourceID <= 0 {
		return fmt.Errorf("source_id is required")
	}
	return nil
}

// DefaultListLimit is applied when a Filter carries no positive limit.
const DefaultListLimit = 50

// Filter restricts ListSubmissions. Zero-valued fields mean "no restriction",
// except Limit, which is always applied.
type Filter struct {
	Kind     Kind
	Statuses []Status
	Since    *time.Time
	BundleID string
	Limit    int
}

// GroupCount is one row of a top-N breakdown.
type GroupCount struct {
	Value string `json:"value" yaml:"value"`
	Count int    `json:"count" yaml:"count"`
}

// Stats summarises the submissions of one kind.
type Stats struct {
	Kind     Kind           `json:"kind" yaml:"kind"`
	Total    int            `json:"total" yaml:"total"`
	ByStatus map[Status]int `json:"by_status" yaml:"by_status"`
	ByDevice []GroupCount   `json:"by_device" yaml:"by_device"`
	ByOS     []GroupCount   `json:"by_os" yaml:"by_os"`
	Unfixed  int            `json:"unfixed" yaml:"unfixed"`
}

// ComputeUnfixed derives Unfixed from Total and ByStatus:
// total minus fixed, wontfix and duplicate.
func (s *Stats) ComputeUnfixed() int {
	return s.Total - s.ByStatus[StatusFixed] - s.ByStatus[StatusWontFix] - s.ByStatus[StatusDuplicate]
}

// RemoteApp is an application as reported by App Store Connect.
type RemoteApp struct {
	ID       string  `json:"id" yaml:"id"`
	BundleID *string `json:"bundle_id,omitempty" yaml:"bundle_id,omitempty"`
	Name     *string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Page is one page of remote submissions. SourceID is left zero on each entry;
// the sync engine fills it in. Next is empty on the last page.
type Page struct {
	Entries []NewSubmission
	Next    string
}

// Artifact is a downloaded crash log or screenshot.
type Artifact struct {
	Data      []byte
	MediaType string
}
