package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asccrash/asccrash/internal/model"
)

// submissionColumns must stay in sync with scanSubmission.
const submissionColumns = `
	s.id, s.source_id, s.kind, s.submission_id, s.created_at, s.synced_at,
	s.device_model, s.os_version, s.app_platform, s.device_platform, s.device_family,
	s.architecture, s.connection_type, s.locale, s.time_zone,
	s.battery_pct, s.app_uptime_ms, s.disk_bytes_available, s.disk_bytes_total,
	s.screen_width, s.screen_height, s.build_bundle_id, s.build_id,
	s.tester_email, s.tester_comment,
	s.has_artifact, s.artifact_path, s.artifact_media_type,
	s.status, s.fixed_at, s.notes, s.duplicate_of,
	a.bundle_id, a.name`

const submissionFrom = `
	FROM submissions s
	JOIN sources a ON a.id = s.source_id`

// now is swapped in tests.
var now = time.Now

// InsertSubmission inserts a submission first seen remotely.
//
// A submission whose (kind, submission_id) already exists is left untouched
// and inserted is false. The metadata of a stored row is never updated.
func (s *Store) InsertSubmission(ctx context.Context, sub model.NewSubmission) (id int64, inserted bool, err error) {
	if err := sub.Validate(); err != nil {
		return 0, false, fmt.Errorf("invalid submission: %w", err)
	}

	query := `
	INSERT INTO submissions (
		source_id, kind, submission_id, created_at, synced_at,
		device_model, os_version, app_platform, device_platform, device_family,
		architecture, connection_type, locale, time_zone,
		battery_pct, app_uptime_ms, disk_bytes_available, disk_bytes_total,
		screen_width, screen_height, build_bundle_id, build_id,
		tester_email, tester_comment
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(kind, submission_id) DO NOTHING
	`

	m := sub.Metadata
	res, err := s.conn.ExecContext(ctx, query,
		sub.SourceID,
		string(sub.Kind),
		sub.SubmissionID,
		formatTime(sub.CreatedAt),
		formatTime(now()),
		stringToNull(m.DeviceModel),
		stringToNull(m.OSVersion),
		stringToNull(m.AppPlatform),
		stringToNull(m.DevicePlatform),
		stringToNull(m.DeviceFamily),
		stringToNull(m.Architecture),
		stringToNull(m.ConnectionType),
		stringToNull(m.Locale),
		stringToNull(m.TimeZone),
		intToNull(m.BatteryPercentage),
		intToNull(m.AppUptimeMillis),
		intToNull(m.DiskBytesAvailable),
		intToNull(m.DiskBytesTotal),
		intToNull(m.ScreenWidth),
		intToNull(m.ScreenHeight),
		stringToNull(m.BuildBundleID),
		stringToNull(m.BuildID),
		stringToNull(m.TesterEmail),
		stringToNull(m.TesterComment),
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert %s %s: %w", sub.Kind, sub.SubmissionID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return 0, false, nil
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read inserted id: %w", err)
	}
	return id, true, nil
}

// GetSubmission retrieves one submission of the given kind by local id.
// Returns ErrNotFound if no such row exists.
func (s *Store) GetSubmission(ctx context.Context, kind model.Kind, id int64) (*model.Submission, error) {
	query := `SELECT` + submissionColumns + submissionFrom + `
	WHERE s.id = ? AND s.kind = ?`

	sub, err := scanSubmission(s.conn.QueryRowContext(ctx, query, id, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s #%d: %w", kind.Label(), id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s #%d: %w", kind.Label(), id, err)
	}
	return sub, nil
}

// ListSubmissions retrieves submissions matching the filter, newest first.
// The limit is always applied; a non-positive limit becomes DefaultListLimit.
func (s *Store) ListSubmissions(ctx context.Context, filter model.Filter) ([]*model.Submission, error) {
	var conditions []string
	var args []interface{}

	if filter.Kind != "" {
		conditions = append(conditions, "s.kind = ?")
		args = append(args, string(filter.Kind))
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conditions = append(conditions, "s.status IN ("+strings.Join(placeholders, ",")+")")
	}

	if filter.Since != nil {
		conditions = append(conditions, "s.created_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}

	if filter.BundleID != "" {
		conditions = append(conditions, "a.bundle_id = ?")
		args = append(args, filter.BundleID)
	}

	query := `SELECT` + submissionColumns + submissionFrom
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY s.created_at DESC, s.id DESC LIMIT ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = model.DefaultListLimit
	}
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

// MissingArtifacts returns submissions of kind still lacking an artifact,
// newest first. A sourceID of 0 means all sources.
func (s *Store) MissingArtifacts(ctx context.Context, kind model.Kind, sourceID int64) ([]*model.Submission, error) {
	query := `SELECT` + submissionColumns + submissionFrom + `
	WHERE s.kind = ? AND s.has_artifact = 0`
	args := []interface{}{string(kind)}

	if sourceID != 0 {
		query += " AND s.source_id = ?"
		args = append(args, sourceID)
	}
	query += " ORDER BY s.created_at DESC, s.id DESC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query missing artifacts: %w", err)
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

// SetArtifact records the local artifact path (and media type, for feedback).
// Returns false when no row matched.
func (s *Store) SetArtifact(ctx context.Context, id int64, path string, mediaType *string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("artifact path is required")
	}

	query := `
	UPDATE submissions SET
		has_artifact = 1,
		artifact_path = ?,
		artifact_media_type = COALESCE(?, artifact_media_type)
	WHERE id = ?
	`
	res, err := s.conn.ExecContext(ctx, query, path, stringToNull(mediaType), id)
	if err != nil {
		return false, fmt.Errorf("failed to set artifact for #%d: %w", id, err)
	}
	return matched(res)
}

// SetStatus changes the review status of a submission.
//
// fixed_at is set to the current time when status is fixed and left as is
// otherwise. notes replaces the stored notes only when non-nil. duplicate_of
// is cleared; use MarkDuplicate to reach the duplicate status.
func (s *Store) SetStatus(ctx context.Context, kind model.Kind, id int64, status model.Status, notes *string) (bool, error) {
	if !status.Valid() || status == model.StatusDuplicate {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var fixedAt sql.NullString
	if status == model.StatusFixed {
		fixedAt = sql.NullString{String: formatTime(now()), Valid: true}
	}

	query := `
	UPDATE submissions SET
		status = ?,
		fixed_at = COALESCE(?, fixed_at),
		notes = COALESCE(?, notes),
		duplicate_of = NULL
	WHERE id = ? AND kind = ?
	`
	res, err := s.conn.ExecContext(ctx, query, string(status), fixedAt, stringToNull(notes), id, string(kind))
	if err != nil {
		return false, fmt.Errorf("failed to set status of %s #%d: %w", kind.Label(), id, err)
	}
	return matched(res)
}

// MarkDuplicate sets status duplicate and the duplicate-of reference.
// The caller checks that ofID exists; the foreign key rejects a dangling id.
func (s *Store) MarkDuplicate(ctx context.Context, kind model.Kind, id, ofID int64) (bool, error) {
	query := `
	UPDATE submissions SET
		status = 'duplicate',
		duplicate_of = ?
	WHERE id = ? AND kind = ?
	`
	res, err := s.conn.ExecContext(ctx, query, ofID, id, string(kind))
	if err != nil {
		return false, fmt.Errorf("failed to mark %s #%d as duplicate: %w", kind.Label(), id, err)
	}
	return matched(res)
}

// Reopen resets a submission to new and clears fixed_at, notes and duplicate_of.
func (s *Store) Reopen(ctx context.Context, kind model.Kind, id int64) (bool, error) {
	query := `
	UPDATE submissions SET
		status = 'new',
		fixed_at = NULL,
		notes = NULL,
		duplicate_of = NULL
	WHERE id = ? AND kind = ?
	`
	res, err := s.conn.ExecContext(ctx, query, id, string(kind))
	if err != nil {
		return false, fmt.Errorf("failed to reopen %s #%d: %w", kind.Label(), id, err)
	}
	return matched(res)
}

func matched(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*model.Submission, error) {
	var sub model.Submission
	var kind, status, createdAt, syncedAt string
	var deviceModel, osVersion, appPlatform, devicePlatform, deviceFamily sql.NullString
	var architecture, connectionType, locale, timeZone sql.NullString
	var battery, uptime, diskAvail, diskTotal, screenW, screenH sql.NullInt64
	var buildBundleID, buildID, testerEmail, testerComment sql.NullString
	var hasArtifact int
	var artifactPath, mediaType sql.NullString
	var fixedAt, notes sql.NullString
	var duplicateOf sql.NullInt64
	var sourceName sql.NullString

	err := row.Scan(
		&sub.ID, &sub.SourceID, &kind, &sub.SubmissionID, &createdAt, &syncedAt,
		&deviceModel, &osVersion, &appPlatform, &devicePlatform, &deviceFamily,
		&architecture, &connectionType, &locale, &timeZone,
		&battery, &uptime, &diskAvail, &diskTotal,
		&screenW, &screenH, &buildBundleID, &buildID,
		&testerEmail, &testerComment,
		&hasArtifact, &artifactPath, &mediaType,
		&status, &fixedAt, &notes, &duplicateOf,
		&sub.SourceBundleID, &sourceName,
	)
	if err != nil {
		return nil, err
	}

	sub.Kind = model.Kind(kind)
	sub.Status = model.Status(status)

	if sub.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if t, err := parseTime(syncedAt); err == nil {
		sub.SyncedAt = t
	}

	sub.Metadata = model.Metadata{
		DeviceModel:        nullToString(deviceModel),
		OSVersion:          nullToString(osVersion),
		AppPlatform:        nullToString(appPlatform),
		DevicePlatform:     nullToString(devicePlatform),
		DeviceFamily:       nullToString(deviceFamily),
		Architecture:       nullToString(architecture),
		ConnectionType:     nullToString(connectionType),
		Locale:             nullToString(locale),
		TimeZone:           nullToString(timeZone),
		BatteryPercentage:  nullToInt(battery),
		AppUptimeMillis:    nullToInt(uptime),
		DiskBytesAvailable: nullToInt(diskAvail),
		DiskBytesTotal:     nullToInt(diskTotal),
		ScreenWidth:        nullToInt(screenW),
		ScreenHeight:       nullToInt(screenH),
		BuildBundleID:      nullToString(buildBundleID),
		BuildID:            nullToString(buildID),
		TesterEmail:        nullToString(testerEmail),
		TesterComment:      nullToString(testerComment),
	}

	sub.HasArtifact = hasArtifact != 0
	sub.ArtifactPath = nullToString(artifactPath)
	sub.ArtifactMediaType = nullToString(mediaType)
	sub.FixedAt = nullToTime(fixedAt)
	sub.Notes = nullToString(notes)
	sub.DuplicateOf = nullToInt(duplicateOf)
	sub.SourceName = nullToString(sourceName)

	return &sub, nil
}

func scanSubmissions(rows *sql.Rows) ([]*model.Submission, error) {
	var subs []*model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}
	return subs, nil
}
