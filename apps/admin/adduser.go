package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pogilapp/server/core"
	"github.com/pogilapp/server/core/user"
)

// addUser sets the role & password of the user with email, creating it when missing.
func (cli *commandLine) addUser(name, email, role, pwd string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	role = core.CleanString(role, true /* lower */)

	if err := cli.validate.Var(email, "required,email"); err != nil {
		msg := "must be a valid email address"
		return core.NewValidationError(errors.New(msg), core.FieldError{Field: "email", Error: msg})
	}
	if !user.IsValidRole(role) {
		return core.NewValidationMessage("invalid role; expected one of root, instructor or student")
	}
	if err := user.CheckPassword(pwd, name, email, cli.translator); err != nil {
		return err
	}

	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	switch errors.Cause(err) {
	case nil:
		if usr, err = cli.usrSvc.SetRole(ctx, usr.ID, role); err != nil {
			return errors.Wrap(err, "updating role")
		}
		if _, err = cli.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
			return errors.Wrap(err, "updating password")
		}
		cli.logger.Info("user updated", map[string]interface{}{"id": usr.ID, "email": email, "role": role})
		return nil
	case user.ErrNotFound:
		usr, err = cli.usrSvc.Create(ctx, user.NewUser{
			Name:            name,
			Email:           email,
			Role:            role,
			Password:        pwd,
			PasswordConfirm: pwd,
		})
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		cli.logger.Info("user created", map[string]interface{}{"id": usr.ID, "email": email, "role": role})
		return nil
	default:
		return err
	}
}
