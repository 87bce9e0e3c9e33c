package store

import (
	"context"
	"fmt"

	"github.com/asccrash/asccrash/internal/model"
)

// topN bounds the device and OS breakdowns.
const topN = 15

// Stats summarises submissions of kind, optionally restricted to one bundle id.
func (s *Store) Stats(ctx context.Context, kind model.Kind, bundleID string) (*model.Stats, error) {
	where := " WHERE s.kind = ?"
	args := []interface{}{string(kind)}
	if bundleID != "" {
		where += " AND a.bundle_id = ?"
		args = append(args, bundleID)
	}

	stats := &model.Stats{
		Kind:     kind,
		ByStatus: make(map[model.Status]int),
		ByDevice: []model.GroupCount{},
		ByOS:     []model.GroupCount{},
	}

	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*)`+submissionFrom+where, args...).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", kind.Plural(), err)
	}

	statusRows, err := s.topGroups(ctx, `SELECT s.status, COUNT(*)`+submissionFrom+where+
		` GROUP BY s.status`, args)
	if err != nil {
		return nil, fmt.Errorf("failed to group by status: %w", err)
	}
	for _, g := range statusRows {
		stats.ByStatus[model.Status(g.Value)] = g.Count
	}

	if stats.ByDevice, err = s.topGroups(ctx, `SELECT s.device_model, COUNT(*)`+submissionFrom+where+
		` AND s.device_model IS NOT NULL GROUP BY s.device_model ORDER BY COUNT(*) DESC, s.device_model ASC LIMIT ?`,
		append(args, topN)); err != nil {
		return nil, fmt.Errorf("failed to group by device: %w", err)
	}

	if stats.ByOS, err = s.topGroups(ctx, `SELECT s.os_version, COUNT(*)`+submissionFrom+where+
		` AND s.os_version IS NOT NULL GROUP BY s.os_version ORDER BY COUNT(*) DESC, s.os_version ASC LIMIT ?`,
		append(args, topN)); err != nil {
		return nil, fmt.Errorf("failed to group by os: %w", err)
	}

	stats.Unfixed = stats.ComputeUnfixed()
	return stats, nil
}

func (s *Store) topGroups(ctx context.Context, query string, args []interface{}) ([]model.GroupCount, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []model.GroupCount{}
	for rows.Next() {
		var g model.GroupCount
		if err := rows.Scan(&g.Value, &g.Count); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Counts returns the number of submissions of kind and how many are still open.
func (s *Store) Counts(ctx context.Context, kind model.Kind) (total, unfixed int, err error) {
	query := `
	SELECT COUNT(*), COALESCE(SUM(CASE WHEN status IN ('new','investigating') THEN 1 ELSE 0 END), 0)
	FROM submissions
	WHERE kind = ?
	`
	if err := s.conn.QueryRowContext(ctx, query, string(kind)).Scan(&total, &unfixed); err != nil {
		return 0, 0, fmt.Errorf("failed to count %s: %w", kind.Plural(), err)
	}
	return total, unfixed, nil
}
