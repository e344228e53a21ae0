package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/activity"
)

const (
	activityColumns = "id, name, title, sheet_url, created_at"
	instanceColumns = "ai.id, ai.activity_id, ai.course_id, ai.group_number, ai.created_at, " +
		"a.name AS activity_name, a.title AS activity_title, a.sheet_url"
)

type activityRepository struct {
	repo
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(exec core.DBExecutor) activity.Repository {
	return &activityRepository{repo{exec: exec}}
}

func (r *activityRepository) CreateActivity(ctx context.Context, a activity.Activity, exec ...core.DBExecutor) (activity.Activity, error) {
	query, args, err := psql.Insert("pogil_activities").
		Columns("name", "title", "sheet_url", "created_at").
		Values(a.Name, a.Title, a.SheetURL, a.CreatedAt.UTC()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return activity.Activity{}, errors.Wrap(err, "building query")
	}
	if err = r.getExec(exec).GetContext(ctx, &a.ID, query, args...); err != nil {
		if isUniqueViolation(err) {
			return activity.Activity{}, activity.ErrActivityExists
		}
		return activity.Activity{}, errors.Wrap(err, "inserting activity")
	}
	return a, nil
}

func (r *activityRepository) GetActivity(ctx context.Context, filter activity.ActivityFilter, exec ...core.DBExecutor) (activity.Activity, error) {
	q := psql.Select(activityColumns).From("pogil_activities")
	switch {
	case filter.ID != 0:
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Name != "":
		q = q.Where(sq.Eq{"name": filter.Name})
	default:
		return activity.Activity{}, activity.ErrActivityNotFound
	}

	query, args, err := q.ToSql()
	if err != nil {
		return activity.Activity{}, errors.Wrap(err, "building query")
	}
	var a activity.Activity
	if err = r.getExec(exec).GetContext(ctx, &a, query, args...); err != nil {
		return activity.Activity{}, trapNoRowsErr(err, activity.ErrActivityNotFound)
	}
	return a, nil
}

func (r *activityRepository) QueryActivities(ctx context.Context, exec ...core.DBExecutor) ([]activity.Activity, error) {
	acts := make([]activity.Activity, 0)
	query := "SELECT " + activityColumns + " FROM pogil_activities ORDER BY id"
	if err := r.getExec(exec).SelectContext(ctx, &acts, query); err != nil {
		return nil, errors.Wrap(err, "selecting activities")
	}
	return acts, nil
}

func (r *activityRepository) QueryCourseActivities(ctx context.Context, courseID int, exec ...core.DBExecutor) ([]activity.CourseActivity, error) {
	const query = `
		SELECT a.id AS activity_id, a.name AS activity_name, a.title, a.sheet_url,
		       latest.id AS instance_id,
		       EXISTS (SELECT 1 FROM activity_groups ag WHERE ag.activity_instance_id = latest.id) AS is_ready
		FROM pogil_activities a
		LEFT JOIN LATERAL (
		    SELECT ai.id FROM activity_instances ai
		    WHERE ai.activity_id = a.id AND ai.course_id = $1
		    ORDER BY ai.id DESC
		    LIMIT 1
		) latest ON TRUE
		ORDER BY a.id`

	acts := make([]activity.CourseActivity, 0)
	if err := r.getExec(exec).SelectContext(ctx, &acts, query, courseID); err != nil {
		return nil, errors.Wrap(err, "selecting course activities")
	}
	return acts, nil
}

func (r *activityRepository) CreateInstance(ctx context.Context, inst activity.Instance, exec ...core.DBExecutor) (activity.Instance, error) {
	query, args, err := psql.Insert("activity_instances").
		Columns("activity_id", "course_id", "group_number", "created_at").
		Values(inst.ActivityID, inst.CourseID, inst.GroupNumber, inst.CreatedAt.UTC()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return activity.Instance{}, errors.Wrap(err, "building query")
	}
	if err = r.getExec(exec).GetContext(ctx, &inst.ID, query, args...); err != nil {
		return activity.Instance{}, errors.Wrap(err, "inserting instance")
	}
	return inst, nil
}

func (r *activityRepository) selectInstance() sq.SelectBuilder {
	return psql.Select(instanceColumns).From("activity_instances ai").Join("pogil_activities a ON a.id = ai.activity_id")
}

func (r *activityRepository) getInstance(ctx context.Context, q sq.SelectBuilder, exec []core.DBExecutor) (activity.Instance, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return activity.Instance{}, errors.Wrap(err, "building query")
	}
	var inst activity.Instance
	if err = r.getExec(exec).GetContext(ctx, &inst, query, args...); err != nil {
		return activity.Instance{}, trapNoRowsErr(err, activity.ErrInstanceNotFound)
	}
	return inst, nil
}

func (r *activityRepository) GetInstance(ctx context.Context, id int, exec ...core.DBExecutor) (activity.Instance, error) {
	return r.getInstance(ctx, r.selectInstance().Where(sq.Eq{"ai.id": id}), exec)
}

func (r *activityRepository) FindGeneralInstance(ctx context.Context, activityID, courseID int, exec ...core.DBExecutor) (activity.Instance, error) {
	q := r.selectInstance().
		Where(sq.Eq{"ai.activity_id": activityID, "ai.course_id": courseID, "ai.group_number": nil}).
		OrderBy("ai.id").
		Limit(1)
	return r.getInstance(ctx, q, exec)
}

func (r *activityRepository) CreateGroups(ctx context.Context, instanceID int, groups []activity.NewGroup, exec ...core.DBExecutor) error {
	ex := r.getExec(exec)
	for i, g := range groups {
		var groupID int
		err := ex.QueryRowxContext(ctx,
			"INSERT INTO activity_groups (activity_instance_id, group_number) VALUES ($1, $2) RETURNING id",
			instanceID, i+1,
		).Scan(&groupID)
		if err != nil {
			return errors.Wrapf(err, "inserting group %d", i+1)
		}
		if len(g.Members) == 0 {
			continue
		}

		q := psql.Insert("group_members").Columns("activity_group_id", "student_id", "role")
		for _, m := range g.Members {
			q = q.Values(groupID, m.StudentID, m.Role)
		}
		query, args, err := q.ToSql()
		if err != nil {
			return errors.Wrap(err, "building query")
		}
		if _, err = ex.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrapf(err, "inserting members of group %d", i+1)
		}
	}
	return nil
}

func (r *activityRepository) DeleteGroups(ctx context.Context, instanceID int, exec ...core.DBExecutor) error {
	// members cascade
	_, err := r.getExec(exec).ExecContext(ctx, "DELETE FROM activity_groups WHERE activity_instance_id = $1", instanceID)
	return errors.Wrap(err, "deleting groups")
}

func (r *activityRepository) QueryGroups(ctx context.Context, instanceID int, exec ...core.DBExecutor) ([]activity.Group, error) {
	ex := r.getExec(exec)

	groups := make([]activity.Group, 0)
	err := ex.SelectContext(ctx, &groups,
		"SELECT id, activity_instance_id, group_number FROM activity_groups WHERE activity_instance_id = $1 ORDER BY group_number",
		instanceID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting groups")
	}
	if len(groups) == 0 {
		return groups, nil
	}

	members := make([]activity.Member, 0)
	err = ex.SelectContext(ctx, &members, `
		SELECT gm.activity_group_id, gm.student_id, u.name, u.email, gm.role
		FROM group_members gm
		JOIN activity_groups ag ON ag.id = gm.activity_group_id
		JOIN users u ON u.id = gm.student_id
		WHERE ag.activity_instance_id = $1
		ORDER BY gm.id`,
		instanceID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting group members")
	}

	idx := make(map[int]int, len(groups))
	for i, g := range groups {
		idx[g.ID] = i
		groups[i].Members = make([]activity.Member, 0, len(activity.GroupRoles))
	}
	for _, m := range members {
		if i, ok := idx[m.GroupID]; ok {
			groups[i].Members = append(groups[i].Members, m)
		}
	}
	return groups, nil
}

func (r *activityRepository) CountGroups(ctx context.Context, instanceID int, exec ...core.DBExecutor) (int, error) {
	var n int
	err := r.getExec(exec).GetContext(ctx, &n, "SELECT COUNT(*) FROM activity_groups WHERE activity_instance_id = $1", instanceID)
	return n, errors.Wrap(err, "counting groups")
}

func (r *activityRepository) IsGroupMember(ctx context.Context, instanceID, userID int, exec ...core.DBExecutor) (bool, error) {
	var ok bool
	err := r.getExec(exec).GetContext(ctx, &ok, `
		SELECT EXISTS (
		    SELECT 1 FROM group_members gm
		    JOIN activity_groups ag ON ag.id = gm.activity_group_id
		    WHERE ag.activity_instance_id = $1 AND gm.student_id = $2
		)`,
		instanceID, userID,
	)
	return ok, errors.Wrap(err, "checking group membership")
}

func (r *activityRepository) UpsertHeartbeat(ctx context.Context, hb activity.Heartbeat, exec ...core.DBExecutor) error {
	_, err := r.getExec(exec).ExecContext(ctx, `
		INSERT INTO activity_heartbeats (activity_instance_id, user_id, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (activity_instance_id, user_id) DO UPDATE SET updated_at = EXCLUDED.updated_at`,
		hb.InstanceID, hb.UserID, hb.UpdatedAt.UTC(),
	)
	return errors.Wrap(err, "upserting heartbeat")
}

func (r *activityRepository) QueryHeartbeats(ctx context.Context, filter activity.HeartbeatFilter, exec ...core.DBExecutor) ([]activity.Heartbeat, error) {
	members := psql.Select("1").
		From("group_members gm").
		Join("activity_groups ag ON ag.id = gm.activity_group_id").
		Where("ag.activity_instance_id = ah.activity_instance_id").
		Where("gm.student_id = ah.user_id")
	if filter.GroupID != 0 {
		members = members.Where(sq.Eq{"ag.id": filter.GroupID})
	}

	q := psql.Select("ah.activity_instance_id", "ah.user_id", "ah.updated_at").
		From("activity_heartbeats ah").
		Where(sq.Eq{"ah.activity_instance_id": filter.InstanceID}).
		Where(sq.GtOrEq{"ah.updated_at": filter.Since.UTC()}).
		Where(sq.Expr("EXISTS (?)", members)).
		OrderBy("ah.updated_at", "ah.user_id")

	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	hbs := make([]activity.Heartbeat, 0)
	if err = r.getExec(exec).SelectContext(ctx, &hbs, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting heartbeats")
	}
	return hbs, nil
}
