// Package systemtest provides an in-memory stand-in for the system
// collaborators.
package systemtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kanoinit/internal/system"
)

// Fake implements every collaborator interface and records each call as
// "Method(arg)".
type Fake struct {
	mu    sync.Mutex
	calls []string
	users map[string]bool
	// members of the kano users group, in creation order.
	members []string
	// Fail makes the named method return its error.
	Fail map[string]error
}

// New returns a Fake whose users group holds members.
func New(members ...string) *Fake {
	f := &Fake{users: map[string]bool{"root": true}, Fail: map[string]error{}}
	for _, m := range members {
		f.users[m] = true
		f.members = append(f.members, m)
	}
	return f
}

// Collaborators returns f behind every collaborator interface.
func (f *Fake) Collaborators() system.Collaborators {
	return system.Collaborators{Provisioner: f, Config: f, Services: f, Shell: f}
}

// Calls returns the recorded calls in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Reset forgets recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) record(method string, arg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := method + "()"
	if arg != "" {
		call = fmt.Sprintf("%s(%s)", method, arg)
	}
	f.calls = append(f.calls, call)
	return f.Fail[method]
}

// AddUser makes name exist without recording a call.
func (f *Fake) AddUser(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[name] = true
}

func (f *Fake) UserExists(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[name]
}

func (f *Fake) CreateUser(ctx context.Context, name string) error {
	if err := f.record("CreateUser", name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.users[name] {
		return fmt.Errorf("user %q already exists", name)
	}
	f.users[name] = true
	f.members = append(f.members, name)
	return nil
}

func (f *Fake) DeleteUser(ctx context.Context, name string) error {
	if err := f.record("DeleteUser", name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, name)
	for i, m := range f.members {
		if m == name {
			f.members = append(f.members[:i], f.members[i+1:]...)
			break
		}
	}
	return nil
}

func (f *Fake) DeleteAllUsers(ctx context.Context) error {
	if err := f.record("DeleteAllUsers", ""); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		delete(f.users, m)
	}
	f.members = nil
	return nil
}

func (f *Fake) Users() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.members...)
	sort.Strings(out)
	return out, nil
}

func (f *Fake) RestoreFactorySettings(ctx context.Context) error {
	return f.record("RestoreFactorySettings", "")
}

func (f *Fake) EnableConsoleAutologin(ctx context.Context, user string) error {
	return f.record("EnableConsoleAutologin", user)
}

func (f *Fake) DisableConsoleAutologin(ctx context.Context) error {
	return f.record("DisableConsoleAutologin", "")
}

func (f *Fake) SetDMAutologin(ctx context.Context, user string) error {
	return f.record("SetDMAutologin", user)
}

func (f *Fake) UnsetDMAutologin(ctx context.Context) error {
	return f.record("UnsetDMAutologin", "")
}

func (f *Fake) EnableDMAutostart(ctx context.Context) error {
	return f.record("EnableDMAutostart", "")
}

func (f *Fake) DisableDMAutostart(ctx context.Context) error {
	return f.record("DisableDMAutostart", "")
}

func (f *Fake) StartDM(ctx context.Context) error {
	return f.record("StartDM", "")
}

func (f *Fake) RabbitHole(ctx context.Context, name string) error {
	return f.record("RabbitHole", name)
}
