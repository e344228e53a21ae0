package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pogilapp/server/core/user"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := user.CheckPassword(pwd, usr.Name, usr.Email, cli.translator); err != nil {
		return err
	}
	if _, err := cli.usrSvc.SetPassword(ctx, usr, pwd); err != nil {
		return errors.Wrap(err, "updating password")
	}
	return nil
}
