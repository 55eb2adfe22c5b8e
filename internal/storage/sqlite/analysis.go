package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"floorbot/internal/domain"
)

// CountPartHistory counts ledger rows mentioning part (exact code or a
// case-insensitive name match), optionally limited to one machine. It
// returns the all-time total and the count since now minus 30 days.
func (s *Store) CountPartHistory(ctx context.Context, companyID, part, machineCode string, now time.Time) (total, last30 int, err error) {
	part = strings.TrimSpace(part)
	if part == "" {
		return 0, 0, nil
	}
	cutoff := now.UTC().AddDate(0, 0, -30)

	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
		FROM machine_history
		WHERE company_id = ? AND (part_code = ? OR lower(part_name) LIKE '%' || lower(?) || '%')`
	args := []any{cutoff, companyID, part, part}
	if code := strings.TrimSpace(machineCode); code != "" {
		query += ` AND machine_code = ?`
		args = append(args, code)
	}

	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total, &last30); err != nil {
		return 0, 0, fmt.Errorf("count part history: %w", err)
	}
	return total, last30, nil
}

// FailurePatterns groups open failure events created since `since` by
// machine and returns the groups with at least minFails events, largest
// first. Events with no machine identity are ignored.
func (s *Store) FailurePatterns(ctx context.Context, companyID string, since time.Time, minFails int) ([]domain.FailureGroup, error) {
	placeholders := make([]string, len(domain.FailureCategories))
	args := []any{companyID, string(domain.EventOpen), since.UTC()}
	for i, c := range domain.FailureCategories {
		placeholders[i] = "?"
		args = append(args, string(c))
	}
	args = append(args, minFails)

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(MAX(machine_code), ''), COALESCE(MAX(machine_name), ''), COUNT(*) AS n
		 FROM operational_events
		 WHERE company_id = ? AND status = ? AND created_at >= ?
		   AND event_type IN (`+strings.Join(placeholders, ", ")+`)
		   AND (machine_code <> '' OR machine_name <> '')
		 GROUP BY CASE WHEN machine_code <> '' THEN machine_code ELSE lower(trim(machine_name)) END
		 HAVING COUNT(*) >= ?
		 ORDER BY n DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query failure patterns: %w", err)
	}
	defer rows.Close()

	var groups []domain.FailureGroup
	for rows.Next() {
		var g domain.FailureGroup
		if err := rows.Scan(&g.MachineCode, &g.MachineName, &g.Count); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
