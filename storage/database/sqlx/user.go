package sqlxrepos

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/user"
)

const userColumns = "id, name, email, role, is_active, password_hash, created_at, updated_at, last_login"

var userOrderings = map[string]string{
	"id":         "id",
	"name":       "name",
	"email":      "email",
	"role":       "role",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRepository struct {
	repo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{repo{exec: exec}}
}

func (r *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	q := psql.Select("COUNT(*)").From("users").Where("LOWER(email) = LOWER(?)", email)
	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q = q.Where(sq.NotEq{"id": ids})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var count int
	if err = r.getExec(exec).GetContext(ctx, &count, query, args...); err != nil {
		return errors.Wrap(err, "counting users")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (r *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	query, args, err := psql.Insert("users").
		Columns("name", "email", "role", "is_active", "password_hash", "created_at", "updated_at", "last_login").
		Values(usr.Name, usr.Email, usr.Role, usr.IsActive, usr.PasswordHash, usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(), usr.LastLogin).
		Suffix("RETURNING " + userColumns).
		ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}

	var created user.User
	if err = r.getExec(exec).GetContext(ctx, &created, query, args...); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return created, nil
}

func (r *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	q := psql.Select(userColumns).From("users")
	if filter != nil {
		if filter.Search != "" {
			pattern := "%" + strings.ToLower(filter.Search) + "%"
			q = q.Where(sq.Or{
				sq.Expr("LOWER(name) LIKE ?", pattern),
				sq.Expr("LOWER(email) LIKE ?", pattern),
			})
		}
		if filter.Roles != nil {
			q = q.Where(sq.Eq{"role": filter.Roles})
		}
		if filter.IsActive != nil {
			q = q.Where(sq.Eq{"is_active": *filter.IsActive})
		}
	}

	ordering = core.FilterOrderings(ordering, userOrderings)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "id", Ascending: true}}
	}
	for _, ord := range ordering {
		q = q.OrderBy(ord.String())
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	users := make([]user.User, 0)
	if err = r.getExec(exec).SelectContext(ctx, &users, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	return users, nil
}

func (r *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := psql.Select(userColumns).From("users").Limit(1)
	switch {
	case filter.ID != 0:
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Email != "":
		q = q.Where("LOWER(email) = LOWER(?)", filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}

	query, args, err := q.ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}
	var usr user.User
	if err = r.getExec(exec).GetContext(ctx, &usr, query, args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound)
	}
	return usr, nil
}

func (r *userRepository) GetUsersByID(ctx context.Context, ids []int, exec ...core.DBExecutor) ([]user.User, error) {
	users := make([]user.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	query, args, err := psql.Select(userColumns).From("users").Where(sq.Eq{"id": ids}).OrderBy("id").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	if err = r.getExec(exec).SelectContext(ctx, &users, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	return users, nil
}

func (r *userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	query, args, err := psql.Update("users").SetMap(map[string]interface{}{
		"name":          usr.Name,
		"email":         usr.Email,
		"role":          usr.Role,
		"is_active":     usr.IsActive,
		"password_hash": usr.PasswordHash,
		"updated_at":    usr.UpdatedAt.UTC(),
		"last_login":    usr.LastLogin,
	}).Where(sq.Eq{"id": usr.ID}).Suffix("RETURNING " + userColumns).ToSql()
	if err != nil {
		return user.User{}, errors.Wrap(err, "building query")
	}

	var updated user.User
	if err = r.getExec(exec).GetContext(ctx, &updated, query, args...); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound)
	}
	return updated, nil
}
