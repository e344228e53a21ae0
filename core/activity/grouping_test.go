package activity

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pogilapp/server/core"
)

func seq(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

func TestAssignGroups(t *testing.T) {
	tests := []struct {
		name      string
		students  int
		size      int
		wantSizes []int
	}{
		{name: "Exact multiple", students: 8, size: 4, wantSizes: []int{4, 4}},
		{name: "Smaller last group", students: 10, size: 4, wantSizes: []int{4, 4, 2}},
		{name: "Single group", students: 4, size: 4, wantSizes: []int{4}},
		{name: "Fewer than size", students: 3, size: 4, wantSizes: []int{3}},
		{name: "No students", students: 0, size: 4, wantSizes: []int{}},
		{name: "Invalid size falls back to roles count", students: 5, size: 0, wantSizes: []int{4, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			students := seq(tt.students)
			groups := AssignGroups(students, tt.size, rand.New(rand.NewSource(42)))

			sizes := make([]int, 0, len(groups))
			var got []int
			for _, g := range groups {
				sizes = append(sizes, len(g.Members))
				for i, m := range g.Members {
					assert.Equal(t, GroupRoles[i%len(GroupRoles)], m.Role)
					got = append(got, m.StudentID)
				}
			}
			assert.Equal(t, tt.wantSizes, sizes)

			sort.Ints(got)
			if tt.students == 0 {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, students, got, "every student is placed exactly once")
			}
			assert.Equal(t, seq(tt.students), students, "input must not be reordered")
		})
	}
}

func TestAssignGroups_Shuffles(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	first := map[int]bool{}
	for i := 0; i < 50; i++ {
		groups := AssignGroups(seq(8), 4, rnd)
		first[groups[0].Members[0].StudentID] = true
	}
	assert.Greater(t, len(first), 1, "facilitator of group 1 should vary across shuffles")
}

func TestValidateGroups(t *testing.T) {
	group := func(members ...NewMember) NewGroup { return NewGroup{Members: members} }
	fac := func(id int) NewMember { return NewMember{StudentID: id, Role: RoleFacilitator} }
	full := group(fac(1), NewMember{2, RoleSpokesperson}, NewMember{3, RoleAnalyst}, NewMember{4, RoleQC})

	tests := []struct {
		name    string
		groups  []NewGroup
		wantIDs []int
		wantErr string
	}{
		{name: "Valid", groups: []NewGroup{full}, wantIDs: []int{1, 2, 3, 4}},
		{name: "Valid across groups", groups: []NewGroup{group(fac(1), fac(2)), group(fac(3), fac(4))}, wantIDs: []int{1, 2, 3, 4}},
		{name: "No groups", groups: nil, wantErr: "At least 4 students are required"},
		{name: "Too few students", groups: []NewGroup{group(fac(1), fac(2), fac(3))}, wantErr: "At least 4 students are required"},
		{name: "Empty group", groups: []NewGroup{full, group()}, wantErr: "Groups cannot be empty"},
		{name: "Duplicate student", groups: []NewGroup{full, group(fac(4))}, wantErr: ErrDuplicateStudent.Error()},
		{name: "Invalid role", groups: []NewGroup{group(fac(1), NewMember{2, "captain"}, fac(3), fac(4))}, wantErr: ErrInvalidGroupRole.Error()},
		{name: "Invalid student", groups: []NewGroup{group(fac(0), fac(2), fac(3), fac(4))}, wantErr: "Invalid student_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := validateGroups(tt.groups, 4)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, core.IsValidationError(err))
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}
