package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"floorbot/internal/domain"
)

// PostgresDirectory reads users and departments from the database owned by
// the administration system.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(ctx context.Context, dsn string) (*PostgresDirectory, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgxpool config: %w", err)
	}
	config.MaxConns = 5
	config.MaxConnIdleTime = 5 * time.Minute
	config.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to directory: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping directory: %w", err)
	}
	return &PostgresDirectory{pool: pool}, nil
}

func (d *PostgresDirectory) Close() {
	d.pool.Close()
}

func (d *PostgresDirectory) ListActiveUsersByLevels(ctx context.Context, companyID string, levels []int, department string) ([]domain.User, error) {
	if len(levels) == 0 {
		return nil, nil
	}
	query, args := buildUsersQuery(companyID, levels, department)
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query directory users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Phone, &u.WhatsApp, &u.HierarchyLevel, &u.Department); err != nil {
			return nil, fmt.Errorf("scan directory user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func buildUsersQuery(companyID string, levels []int, department string) (string, []any) {
	lv := make([]int32, len(levels))
	for i, l := range levels {
		lv[i] = int32(l)
	}
	query := `SELECT u.id::text, u.name, COALESCE(u.phone, ''), COALESCE(u.whatsapp_number, ''),
		u.hierarchy_level, COALESCE(NULLIF(u.department, ''), d.name, '')
	FROM users u
	LEFT JOIN departments d ON d.id = u.department_id
	WHERE u.company_id = $1 AND u.is_active AND u.deleted_at IS NULL
	  AND u.hierarchy_level = ANY($2)`
	args := []any{companyID, lv}
	if dept := strings.TrimSpace(department); dept != "" {
		query += `
	  AND (lower(u.department) = lower($3) OR lower(d.name) = lower($3))`
		args = append(args, dept)
	}
	query += `
	ORDER BY u.hierarchy_level, u.name`
	return query, args
}
