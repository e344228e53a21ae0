package activity

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/pogilapp/server/core"
)

var (
	ErrDuplicateStudent = errors.New("A student can only be in one group")
	ErrInvalidGroupRole = errors.New(groupRoleText)
)

// AssignGroups shuffles the students uniformly and chunks them into groups of size; the last
// group may be smaller. Roles follow GroupRoles by position within each group.
func AssignGroups(studentIDs []int, size int, rnd *rand.Rand) []NewGroup {
	if size <= 0 {
		size = len(GroupRoles)
	}
	shuffled := make([]int, len(studentIDs))
	copy(shuffled, studentIDs)
	rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	groups := make([]NewGroup, 0, (len(shuffled)+size-1)/size)
	for start := 0; start < len(shuffled); start += size {
		end := start + size
		if end > len(shuffled) {
			end = len(shuffled)
		}
		members := make([]NewMember, 0, end-start)
		for i, id := range shuffled[start:end] {
			members = append(members, NewMember{StudentID: id, Role: GroupRoles[i%len(GroupRoles)]})
		}
		groups = append(groups, NewGroup{Members: members})
	}
	return groups
}

func minStudentsError(min int) error {
	return core.NewValidationMessage(fmt.Sprintf("At least %d students are required", min))
}

// validateGroups checks a manual group layout and returns the ids of its students.
func validateGroups(groups []NewGroup, minStudents int) ([]int, error) {
	ids := make([]int, 0, len(groups)*len(GroupRoles))
	seen := make(map[int]bool)
	for _, g := range groups {
		if len(g.Members) == 0 {
			return nil, core.NewValidationMessage("Groups cannot be empty")
		}
		for _, m := range g.Members {
			if m.StudentID <= 0 {
				return nil, core.NewValidationMessage("Invalid student_id")
			}
			if !IsValidGroupRole(m.Role) {
				return nil, core.NewValidationError(ErrInvalidGroupRole)
			}
			if seen[m.StudentID] {
				return nil, core.NewValidationError(ErrDuplicateStudent)
			}
			seen[m.StudentID] = true
			ids = append(ids, m.StudentID)
		}
	}
	if len(groups) == 0 || len(ids) < minStudents {
		return nil, minStudentsError(minStudents)
	}
	return ids, nil
}
