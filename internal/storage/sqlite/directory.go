package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"floorbot/internal/domain"
)

// ListActiveUsersByLevels serves the organizational directory from the local
// users table, ordered by ascending hierarchy level. An empty department
// matches everyone; otherwise it is compared case-insensitively against the
// user's free-text department or the linked department's name.
func (s *Store) ListActiveUsersByLevels(ctx context.Context, companyID string, levels []int, department string) ([]domain.User, error) {
	if len(levels) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(levels))
	args := []any{companyID}
	for i, l := range levels {
		placeholders[i] = "?"
		args = append(args, l)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.name, u.phone, u.whatsapp_number, u.hierarchy_level, u.department, COALESCE(d.name, '')
		 FROM users u
		 LEFT JOIN departments d ON d.id = u.department_id
		 WHERE u.company_id = ? AND u.active = 1 AND u.deleted_at IS NULL
		   AND u.hierarchy_level IN (`+strings.Join(placeholders, ", ")+`)
		 ORDER BY u.hierarchy_level, u.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list users by level: %w", err)
	}
	defer rows.Close()

	// sqlite's lower() is ASCII-only, so department names are compared here.
	dept := strings.TrimSpace(department)
	var users []domain.User
	for rows.Next() {
		var (
			u        domain.User
			id       int64
			deptName string
		)
		if err := rows.Scan(&id, &u.Name, &u.Phone, &u.WhatsApp, &u.HierarchyLevel, &u.Department, &deptName); err != nil {
			return nil, err
		}
		if dept != "" && !strings.EqualFold(strings.TrimSpace(u.Department), dept) && !strings.EqualFold(deptName, dept) {
			continue
		}
		if strings.TrimSpace(u.Department) == "" {
			u.Department = deptName
		}
		u.ID = strconv.FormatInt(id, 10)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) AddDepartment(ctx context.Context, companyID, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO departments (company_id, name) VALUES (?, ?)`, companyID, name)
	if err != nil {
		return 0, fmt.Errorf("insert department: %w", err)
	}
	return res.LastInsertId()
}

// DirectoryUser is one row of the local users table.
type DirectoryUser struct {
	Name           string
	Phone          string
	WhatsApp       string
	HierarchyLevel int
	Department     string
	DepartmentID   int64
	Inactive       bool
	DeletedAt      *time.Time
}

func (s *Store) AddUser(ctx context.Context, companyID string, u DirectoryUser) (int64, error) {
	var deptID sql.NullInt64
	if u.DepartmentID > 0 {
		deptID = sql.NullInt64{Int64: u.DepartmentID, Valid: true}
	}
	var deleted sql.NullTime
	if u.DeletedAt != nil {
		deleted = sql.NullTime{Time: u.DeletedAt.UTC(), Valid: true}
	}
	active := 1
	if u.Inactive {
		active = 0
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (company_id, name, phone, whatsapp_number, hierarchy_level, department, department_id, active, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		companyID, u.Name, u.Phone, u.WhatsApp, u.HierarchyLevel, u.Department, deptID, active, deleted)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}
