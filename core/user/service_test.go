package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/user"
	inmemdb "github.com/pogilapp/server/storage/database/inmem"
	testutil "github.com/pogilapp/server/tests"
)

func TestService_Create(t *testing.T) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	svc := user.NewService(repo)
	ctx := context.Background()

	usr, err := svc.Create(ctx, user.NewUser{Name: "Ada", Email: "ada@example.com", Password: "Tr0ub4dor&3x"})
	require.NoError(t, err)
	assert.NotZero(t, usr.ID)
	assert.Equal(t, user.RoleStudent, usr.Role, "role defaults to student")
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("Tr0ub4dor&3x"))

	err = svc.CheckEmailUniqueness(ctx, "ada@example.com")
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))
	assert.NoError(t, svc.CheckEmailUniqueness(ctx, "ada@example.com", usr), "excluded users are ignored")

	got, err := svc.GetByEmail(ctx, "  ADA@example.com ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = svc.GetByEmail(ctx, "")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_SetRole(t *testing.T) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	svc := user.NewService(repo)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Bob", "bob@example.com", "", user.RoleStudent, true)

	tests := []struct {
		name     string
		id       int
		role     string
		wantRole string
		wantErr  func(error) bool
	}{
		{name: "Promote", id: usr.ID, role: user.RoleInstructor, wantRole: user.RoleInstructor},
		{name: "Invalid role", id: usr.ID, role: "admin", wantErr: core.IsValidationError},
		{name: "Unknown user", id: 9999, role: user.RoleRoot, wantErr: func(err error) bool { return errors.Cause(err) == user.ErrNotFound }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.SetRole(ctx, tt.id, tt.role)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, got.Role)

			stored, err := svc.GetByID(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, stored.Role)
		})
	}
}

func TestService_Query(t *testing.T) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	svc := user.NewService(repo)
	ctx := context.Background()

	carl := testutil.CreateUser(t, repo, "Carl", "carl@example.com", "", user.RoleInstructor, true)
	ada := testutil.CreateUser(t, repo, "Ada", "ada@school.edu", "", user.RoleStudent, true)
	bob := testutil.CreateUser(t, repo, "Bob", "bob@example.com", "", user.RoleStudent, false)
	inactive := false

	tests := []struct {
		name     string
		filter   *user.QueryFilter
		ordering []core.DBOrdering
		want     []user.User
	}{
		{name: "All", filter: &user.QueryFilter{}, want: []user.User{carl, ada, bob}},
		{name: "Search", filter: &user.QueryFilter{Search: "EXAMPLE"}, want: []user.User{carl, bob}},
		{name: "Roles", filter: &user.QueryFilter{Roles: []string{user.RoleStudent}}, want: []user.User{ada, bob}},
		{name: "Inactive", filter: &user.QueryFilter{IsActive: &inactive}, want: []user.User{bob}},
		{
			name:     "Ordered by name",
			filter:   &user.QueryFilter{},
			ordering: []core.DBOrdering{{Field: "name", Ascending: true}},
			want:     []user.User{ada, bob, carl},
		},
		{
			name:     "Ordered by role then name descending",
			filter:   &user.QueryFilter{},
			ordering: []core.DBOrdering{{Field: "role", Ascending: true}, {Field: "name"}},
			want:     []user.User{carl, bob, ada},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Query(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			assert.Equal(t, testutil.IDs(tt.want), testutil.IDs(got))
		})
	}
}

func TestService_GetManyByID(t *testing.T) {
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	svc := user.NewService(repo)
	ctx := context.Background()
	a := testutil.CreateUser(t, repo, "A", "a@example.com", "", user.RoleStudent, true)
	b := testutil.CreateUser(t, repo, "B", "b@example.com", "", user.RoleStudent, true)

	got, err := svc.GetManyByID(ctx, []int{b.ID, a.ID, b.ID, 9999})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{a.ID, b.ID}, testutil.IDs(got))

	got, err = svc.GetManyByID(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
