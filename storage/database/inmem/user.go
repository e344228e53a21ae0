package inmemdb

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/user"
)

var userOrderings = map[string]string{"id": "id", "name": "name", "email": "email", "role": "role", "created_at": "created_at"}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.t.users))
	for _, u := range repo.db.t.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.t.users {
		if strings.EqualFold(usr.Email, email) && !isExcluded(usr, excludedUsers) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr.ID = repo.db.nextPK()
	repo.db.t.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := repo.query()
	if filter != nil && !filter.IsEmpty() {
		search := strings.ToLower(filter.Search)
		filtered := users[:0]
		for _, u := range users {
			if search != "" &&
				!strings.Contains(strings.ToLower(u.Email), search) &&
				!strings.Contains(strings.ToLower(u.Name), search) {
				continue
			}
			if filter.Roles != nil && !containsString(filter.Roles, u.Role) {
				continue
			}
			if filter.IsActive != nil && u.IsActive != *filter.IsActive {
				continue
			}
			filtered = append(filtered, u)
		}
		users = filtered
	}

	if ordering = core.FilterOrderings(ordering, userOrderings); len(ordering) > 0 {
		sort.SliceStable(users, func(i, j int) bool {
			for _, ord := range ordering {
				a, b := userField(users[i], ord.Field), userField(users[j], ord.Field)
				if a == b {
					continue
				}
				if ord.Ascending {
					return a < b
				}
				return a > b
			}
			return false
		})
	}
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != 0 {
		if usr, ok := repo.db.t.users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.t.users {
		if filter.Email != "" && strings.EqualFold(usr.Email, filter.Email) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUsersByID(_ context.Context, ids []int, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0, len(ids))
	for _, id := range core.UniqueInts(ids) {
		if usr, ok := repo.db.t.users[id]; ok {
			users = append(users, usr)
		}
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.t.users[usr.ID] = usr
	return usr, nil
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, u := range excludedUsers {
		if u.ID == usr.ID {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// userField returns a sortable representation of the named column.
func userField(u user.User, field string) string {
	switch field {
	case "name":
		return strings.ToLower(u.Name)
	case "email":
		return strings.ToLower(u.Email)
	case "role":
		return u.Role
	case "created_at":
		return u.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000")
	default:
		return fmt.Sprintf("%020d", u.ID)
	}
}
