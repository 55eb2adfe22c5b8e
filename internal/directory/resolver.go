package directory

import (
	"context"
	"fmt"
	"log"
	"sort"

	"floorbot/internal/domain"
)

// RoleLevels maps an escalation tier to the hierarchy levels that hold it.
// Lower levels sit higher in the organization.
var RoleLevels = map[domain.Target][]int{
	domain.TargetExecutive:    {0, 1},
	domain.TargetManagement:   {2},
	domain.TargetCoordination: {3},
	domain.TargetSupervision:  {4},
}

// Directory is the organizational user directory.
type Directory interface {
	ListActiveUsersByLevels(ctx context.Context, companyID string, levels []int, department string) ([]domain.User, error)
}

type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// LevelsFor returns the sorted, de-duplicated hierarchy levels for targets.
// Unknown targets are ignored.
func LevelsFor(targets []domain.Target) []int {
	seen := make(map[int]bool)
	var levels []int
	for _, t := range targets {
		for _, l := range RoleLevels[t] {
			if !seen[l] {
				seen[l] = true
				levels = append(levels, l)
			}
		}
	}
	sort.Ints(levels)
	return levels
}

// Resolve lists the active users holding any of targets, optionally
// restricted to department, most senior first.
func (r *Resolver) Resolve(ctx context.Context, companyID string, targets []domain.Target, department string) ([]domain.User, error) {
	levels := LevelsFor(targets)
	if len(levels) == 0 {
		return nil, nil
	}
	users, err := r.dir.ListActiveUsersByLevels(ctx, companyID, levels, department)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].HierarchyLevel < users[j].HierarchyLevel
	})
	log.Printf("directory resolve company=%s targets=%v department=%q users=%d", companyID, targets, department, len(users))
	return users, nil
}
