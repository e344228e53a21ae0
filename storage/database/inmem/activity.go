package inmemdb

import (
	"context"
	"sort"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/activity"
)

type activityRepository struct {
	db *DB
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *DB) activity.Repository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateActivity(_ context.Context, a activity.Activity, _ ...core.DBExecutor) (activity.Activity, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, act := range repo.db.t.activities {
		if act.Name == a.Name {
			return activity.Activity{}, activity.ErrActivityExists
		}
	}
	a.ID = repo.db.nextPK()
	repo.db.t.activities[a.ID] = a
	return a, nil
}

func (repo *activityRepository) GetActivity(_ context.Context, filter activity.ActivityFilter, _ ...core.DBExecutor) (activity.Activity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != 0 {
		if a, ok := repo.db.t.activities[filter.ID]; ok {
			return a, nil
		}
		return activity.Activity{}, activity.ErrActivityNotFound
	}
	for _, a := range repo.db.t.activities {
		if filter.Name != "" && a.Name == filter.Name {
			return a, nil
		}
	}
	return activity.Activity{}, activity.ErrActivityNotFound
}

func (repo *activityRepository) activities() []activity.Activity {
	acts := make([]activity.Activity, 0, len(repo.db.t.activities))
	for _, a := range repo.db.t.activities {
		acts = append(acts, a)
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].ID < acts[j].ID })
	return acts
}

func (repo *activityRepository) QueryActivities(_ context.Context, _ ...core.DBExecutor) ([]activity.Activity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.activities(), nil
}

func (repo *activityRepository) QueryCourseActivities(_ context.Context, courseID int, _ ...core.DBExecutor) ([]activity.CourseActivity, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	acts := repo.activities()
	res := make([]activity.CourseActivity, 0, len(acts))
	for _, a := range acts {
		ca := activity.CourseActivity{ActivityID: a.ID, ActivityName: a.Name, Title: a.Title, SheetURL: a.SheetURL}
		latest := 0
		for _, inst := range repo.db.t.instances {
			if inst.ActivityID == a.ID && inst.CourseID == courseID && inst.ID > latest {
				latest = inst.ID
			}
		}
		if latest != 0 {
			ca.InstanceID.SetValid(latest)
			ca.IsReady = repo.countGroups(latest) > 0
		}
		res = append(res, ca)
	}
	return res, nil
}

// withActivity fills the joined activity columns; mu must be held.
func (repo *activityRepository) withActivity(inst activity.Instance) activity.Instance {
	if a, ok := repo.db.t.activities[inst.ActivityID]; ok {
		inst.ActivityName = a.Name
		inst.ActivityTitle = a.Title
		inst.SheetURL = a.SheetURL
	}
	return inst
}

func (repo *activityRepository) CreateInstance(_ context.Context, inst activity.Instance, _ ...core.DBExecutor) (activity.Instance, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.activities[inst.ActivityID]; !ok {
		return activity.Instance{}, activity.ErrActivityNotFound
	}
	inst.ID = repo.db.nextPK()
	inst = repo.withActivity(inst)
	repo.db.t.instances[inst.ID] = inst
	return inst, nil
}

func (repo *activityRepository) GetInstance(_ context.Context, id int, _ ...core.DBExecutor) (activity.Instance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if inst, ok := repo.db.t.instances[id]; ok {
		return repo.withActivity(inst), nil
	}
	return activity.Instance{}, activity.ErrInstanceNotFound
}

func (repo *activityRepository) FindGeneralInstance(_ context.Context, activityID, courseID int, _ ...core.DBExecutor) (activity.Instance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var found *activity.Instance
	for _, inst := range repo.db.t.instances {
		inst := inst
		if inst.ActivityID != activityID || inst.CourseID != courseID || inst.GroupNumber.Valid {
			continue
		}
		if found == nil || inst.ID < found.ID {
			found = &inst
		}
	}
	if found == nil {
		return activity.Instance{}, activity.ErrInstanceNotFound
	}
	return repo.withActivity(*found), nil
}

func (repo *activityRepository) CreateGroups(_ context.Context, instanceID int, groups []activity.NewGroup, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.t.instances[instanceID]; !ok {
		return activity.ErrInstanceNotFound
	}
	for i, ng := range groups {
		g := activity.Group{ID: repo.db.nextPK(), InstanceID: instanceID, GroupNumber: i + 1}
		for _, nm := range ng.Members {
			m := activity.Member{GroupID: g.ID, StudentID: nm.StudentID, Role: nm.Role}
			if usr, ok := repo.db.t.users[nm.StudentID]; ok {
				m.Name, m.Email = usr.Name, usr.Email
			}
			g.Members = append(g.Members, m)
		}
		repo.db.t.groups[g.ID] = g
	}
	return nil
}

func (repo *activityRepository) DeleteGroups(_ context.Context, instanceID int, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for id, g := range repo.db.t.groups {
		if g.InstanceID == instanceID {
			delete(repo.db.t.groups, id)
		}
	}
	return nil
}

// groups returns the instance's groups by number; mu must be held.
func (repo *activityRepository) groups(instanceID int) []activity.Group {
	groups := make([]activity.Group, 0)
	for _, g := range repo.db.t.groups {
		if g.InstanceID == instanceID {
			g.Members = append([]activity.Member(nil), g.Members...)
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].GroupNumber < groups[j].GroupNumber })
	return groups
}

func (repo *activityRepository) countGroups(instanceID int) int {
	return len(repo.groups(instanceID))
}

func (repo *activityRepository) QueryGroups(_ context.Context, instanceID int, _ ...core.DBExecutor) ([]activity.Group, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.groups(instanceID), nil
}

func (repo *activityRepository) CountGroups(_ context.Context, instanceID int, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.countGroups(instanceID), nil
}

func (repo *activityRepository) IsGroupMember(_ context.Context, instanceID, userID int, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, g := range repo.groups(instanceID) {
		for _, m := range g.Members {
			if m.StudentID == userID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (repo *activityRepository) UpsertHeartbeat(_ context.Context, hb activity.Heartbeat, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.t.heartbeats[[2]int{hb.InstanceID, hb.UserID}] = hb
	return nil
}

func (repo *activityRepository) QueryHeartbeats(_ context.Context, filter activity.HeartbeatFilter, _ ...core.DBExecutor) ([]activity.Heartbeat, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	members := make(map[int]bool)
	for _, g := range repo.groups(filter.InstanceID) {
		if filter.GroupID != 0 && g.ID != filter.GroupID {
			continue
		}
		for _, m := range g.Members {
			members[m.StudentID] = true
		}
	}

	hbs := make([]activity.Heartbeat, 0)
	for _, hb := range repo.db.t.heartbeats {
		if hb.InstanceID == filter.InstanceID && members[hb.UserID] && !hb.UpdatedAt.Before(filter.Since) {
			hbs = append(hbs, hb)
		}
	}
	sort.Slice(hbs, func(i, j int) bool {
		if hbs[i].UpdatedAt.Equal(hbs[j].UpdatedAt) {
			return hbs[i].UserID < hbs[j].UserID
		}
		return hbs[i].UpdatedAt.Before(hbs[j].UpdatedAt)
	})
	return hbs, nil
}
