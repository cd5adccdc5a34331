// Package system holds the collaborators that touch the operating system:
// account provisioning, login configuration and display manager control.
// The flow only sees the narrow interfaces below.
package system

import (
	"context"
	"errors"
)

// ErrNoGroup is returned when the users group does not exist.
var ErrNoGroup = errors.New("group does not exist")

// Provisioner manages user accounts.
type Provisioner interface {
	UserExists(name string) bool
	CreateUser(ctx context.Context, name string) error
	DeleteUser(ctx context.Context, name string) error
	DeleteAllUsers(ctx context.Context) error
	// Users lists the members of the kano users group.
	Users() ([]string, error)
	RestoreFactorySettings(ctx context.Context) error
}

// ConfigEditor edits login configuration.
type ConfigEditor interface {
	EnableConsoleAutologin(ctx context.Context, user string) error
	DisableConsoleAutologin(ctx context.Context) error
	SetDMAutologin(ctx context.Context, user string) error
	UnsetDMAutologin(ctx context.Context) error
}

// ServiceController starts and enables the display manager.
type ServiceController interface {
	EnableDMAutostart(ctx context.Context) error
	DisableDMAutostart(ctx context.Context) error
	StartDM(ctx context.Context) error
}

// Shell hands the terminal to the new user.
type Shell interface {
	// RabbitHole opens name's shell next to a rabbithole directory and
	// returns once they have gone down it or left the shell.
	RabbitHole(ctx context.Context, name string) error
}

// Collaborators bundles the collaborator interfaces. Shell is optional.
type Collaborators struct {
	Provisioner Provisioner
	Config      ConfigEditor
	Services    ServiceController
	Shell       Shell
}

// ReconfigureAutostart picks the login policy from the number of kano users:
// with none the console logs in as root and the display manager stays off,
// with one that user is logged in everywhere, with more everyone goes
// through the display manager greeter.
func (c Collaborators) ReconfigureAutostart(ctx context.Context) error {
	users, err := c.Provisioner.Users()
	if err != nil && !errors.Is(err, ErrNoGroup) {
		return err
	}

	var steps []func() error
	switch len(users) {
	case 0:
		steps = []func() error{
			func() error { return c.Config.EnableConsoleAutologin(ctx, "root") },
			func() error { return c.Config.UnsetDMAutologin(ctx) },
			func() error { return c.Services.DisableDMAutostart(ctx) },
		}
	case 1:
		steps = []func() error{
			func() error { return c.Config.EnableConsoleAutologin(ctx, users[0]) },
			func() error { return c.Config.SetDMAutologin(ctx, users[0]) },
			func() error { return c.Services.EnableDMAutostart(ctx) },
		}
	default:
		steps = []func() error{
			func() error { return c.Config.DisableConsoleAutologin(ctx) },
			func() error { return c.Config.UnsetDMAutologin(ctx) },
			func() error { return c.Services.EnableDMAutostart(ctx) },
		}
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// PrepareForTask makes the next boot land on the root console, where the
// scheduled task runs.
func (c Collaborators) PrepareForTask(ctx context.Context) error {
	if err := c.Services.DisableDMAutostart(ctx); err != nil {
		return err
	}
	if err := c.Config.UnsetDMAutologin(ctx); err != nil {
		return err
	}
	return c.Config.EnableConsoleAutologin(ctx, "root")
}
