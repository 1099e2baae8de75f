package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core"
	"github.com/trezcool/wellbeing/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd string, isAdmin bool) error {
	email = core.CleanString(email, true /* lower */)
	if err := cli.validate.Var(email, "required,email"); err != nil {
		return errors.Wrap(err, "invalid email")
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	exists := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		now := user.NowFunc().UTC()
		usr = user.User{Email: email, Roles: []string{}, CreatedAt: now}
	}
	if name = core.CleanString(name); name != "" {
		usr.Name = name
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	usr.UpdatedAt = user.NowFunc().UTC()
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
