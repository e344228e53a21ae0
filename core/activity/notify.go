package activity

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pogilapp/server/core"
)

type roleAssignmentData struct {
	Name          string
	GroupNumber   int
	ActivityTitle string
	CourseName    string
	Role          string
}

// notifyMembers mails every group member of inst their group number and role.
// Failures are logged; they never undo the group setup.
func (svc *service) notifyMembers(ctx context.Context, inst Instance) {
	if !svc.Conf.NotifyMembers || svc.MailSvc == nil {
		return
	}

	groups, err := svc.Repo.QueryGroups(ctx, inst.ID)
	if err != nil {
		svc.Logger.Error("notifying group members", err)
		return
	}
	c, err := svc.CourseSvc.Get(ctx, inst.CourseID)
	if err != nil {
		svc.Logger.Error("notifying group members", err)
		return
	}

	title := inst.ActivityTitle
	if title == "" {
		title = inst.ActivityName
	}

	msgs := make([]*core.EmailMessage, 0, len(groups)*len(GroupRoles))
	for _, g := range groups {
		for _, m := range g.Members {
			if m.Email == "" {
				continue
			}
			msgs = append(msgs, &core.EmailMessage{
				To:           []mail.Address{{Name: m.Name, Address: m.Email}},
				Subject:      fmt.Sprintf("%s: group %d", title, g.GroupNumber),
				TemplateName: "role_assignment",
				TemplateData: roleAssignmentData{
					Name:          m.Name,
					GroupNumber:   g.GroupNumber,
					ActivityTitle: title,
					CourseName:    c.Name,
					Role:          m.Role,
				},
			})
		}
	}
	if len(msgs) > 0 {
		svc.MailSvc.SendMessages(msgs...)
	}
}
