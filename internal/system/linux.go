package system

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"

	"kanoinit/internal/logging"
)

// LinuxConfig locates the files and settings the Linux collaborators use.
type LinuxConfig struct {
	UsersGroup      string
	Groups          []string
	DefaultPassword string
	DisplayManager  string

	HomeRoot    string
	GroupFile   string
	Inittab     string
	LightDMConf string
	// LightDMSetDefaults is the helper that writes the autologin user.
	LightDMSetDefaults string
	BootConfig         string
	AudioConfig        string
	WifiCache          string
	// SubshellRC is the bash init file of the rabbit hole shell. Empty uses
	// the built-in one.
	SubshellRC string

	// DryRun skips file edits; pair it with a dry-run executor.
	DryRun bool
}

// DefaultLinuxConfig returns the paths of a Kano OS image.
func DefaultLinuxConfig() LinuxConfig {
	return LinuxConfig{
		UsersGroup:         "kanousers",
		Groups:             []string{"tty", "adm", "dialout", "cdrom", "audio", "users", "sudo", "video", "games", "plugdev", "input", "kanousers"},
		DefaultPassword:    "kano",
		DisplayManager:     "lightdm",
		HomeRoot:           "/home",
		GroupFile:          "/etc/group",
		Inittab:            "/etc/inittab",
		LightDMConf:        "/etc/lightdm/lightdm.conf",
		LightDMSetDefaults: "/usr/lib/arm-linux-gnueabihf/lightdm/lightdm-set-defaults",
		BootConfig:         "/boot/config.txt",
		AudioConfig:        "/etc/rc.audio",
		WifiCache:          "/etc/kwifiprompt-cache.conf",
	}
}

// Linux implements every collaborator with shell tools and file edits.
type Linux struct {
	exec   Executor
	config LinuxConfig
	lookup func(name string) error
}

var (
	_ Provisioner       = (*Linux)(nil)
	_ ConfigEditor      = (*Linux)(nil)
	_ ServiceController = (*Linux)(nil)
	_ Shell             = (*Linux)(nil)
)

// NewLinux creates the Linux collaborators.
func NewLinux(ex Executor, config LinuxConfig) *Linux {
	return &Linux{
		exec:   ex,
		config: config,
		lookup: func(name string) error {
			_, err := user.Lookup(name)
			return err
		},
	}
}

// Collaborators returns l behind every collaborator interface.
func (l *Linux) Collaborators() Collaborators {
	return Collaborators{Provisioner: l, Config: l, Services: l, Shell: l}
}

// UserExists reports whether the account exists.
func (l *Linux) UserExists(name string) bool {
	return l.lookup(name) == nil
}

// CreateUser adds the account with a private home, the default password and
// the standard groups. A leftover home directory is moved aside first.
func (l *Linux) CreateUser(ctx context.Context, name string) error {
	if l.UserExists(name) {
		return fmt.Errorf("user %q already exists", name)
	}

	home := filepath.Join(l.config.HomeRoot, name)
	if _, err := os.Stat(home); err == nil && !l.config.DryRun {
		old := home + "-old"
		logging.Get(logging.CategorySystem).Warn("home directory %s already there, moving it to %s", home, old)
		if err := os.Rename(home, old); err != nil {
			return fmt.Errorf("moving old home: %w", err)
		}
	}

	if err := run(ctx, l.exec, Command{
		Binary:    "useradd",
		Arguments: []string{"-m", "-K", "UMASK=0077", "-s", "/bin/bash", name},
	}); err != nil {
		return fmt.Errorf("unable to create new user: %w", err)
	}

	if err := run(ctx, l.exec, Command{
		Binary: "chpasswd",
		Stdin:  fmt.Sprintf("%s:%s\n", name, l.config.DefaultPassword),
	}); err != nil {
		if derr := l.DeleteUser(ctx, name); derr != nil {
			logging.Get(logging.CategorySystem).Error("rollback of %s failed: %v", name, derr)
		}
		return fmt.Errorf("unable to set the new user's password: %w", err)
	}

	if _, err := l.groupMembers(l.config.UsersGroup); errors.Is(err, ErrNoGroup) {
		if err := run(ctx, l.exec, Command{Binary: "groupadd", Arguments: []string{l.config.UsersGroup, "-f"}}); err != nil {
			return fmt.Errorf("unable to create the %s group: %w", l.config.UsersGroup, err)
		}
	}

	if err := run(ctx, l.exec, Command{
		Binary:    "usermod",
		Arguments: []string{"-G", strings.Join(l.config.Groups, ","), name},
	}); err != nil {
		return fmt.Errorf("adding %s to groups: %w", name, err)
	}

	logging.System("user %s created", name)
	return nil
}

// DeleteUser kills the user's processes and removes the account and home.
func (l *Linux) DeleteUser(ctx context.Context, name string) error {
	// killall fails when nothing runs as the user.
	if err := run(ctx, l.exec, Command{Binary: "killall", Arguments: []string{"-KILL", "-u", name}}); err != nil {
		logging.Get(logging.CategorySystem).Debug("killall for %s: %v", name, err)
	}
	if err := run(ctx, l.exec, Command{Binary: "userdel", Arguments: []string{"-r", name}}); err != nil {
		return fmt.Errorf("deleting %q: %w", name, err)
	}
	logging.System("user %s deleted", name)
	return nil
}

// DeleteAllUsers removes every member of the users group.
func (l *Linux) DeleteAllUsers(ctx context.Context) error {
	users, err := l.Users()
	if errors.Is(err, ErrNoGroup) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := l.DeleteUser(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

// Users lists the members of the users group.
func (l *Linux) Users() ([]string, error) {
	return l.groupMembers(l.config.UsersGroup)
}

// groupMembers reads the member list of group from the group file.
func (l *Linux) groupMembers(group string) ([]string, error) {
	f, err := os.Open(l.config.GroupFile)
	if err != nil {
		return nil, fmt.Errorf("reading groups: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Split(sc.Text(), ":")
		if len(fields) < 4 || fields[0] != group {
			continue
		}
		var members []string
		for _, m := range strings.Split(fields[3], ",") {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}
		return members, nil
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading groups: %w", err)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoGroup, group)
}

var (
	gettyLine     = regexp.MustCompile(`(?m)^(1:2345:respawn:/sbin/a?getty).+$`)
	autologinLine = regexp.MustCompile(`(?m)^autologin-user=.*$`)
	amixerLine    = regexp.MustCompile(`amixer -c 0 cset numid=3 [0-9]`)
)

// EnableConsoleAutologin logs name in on tty1 without a password.
func (l *Linux) EnableConsoleAutologin(ctx context.Context, name string) error {
	repl := fmt.Sprintf("${1} -n -o'-f %s' 38400 tty1", name)
	if err := l.editFile(l.config.Inittab, gettyLine, repl); err != nil {
		return err
	}
	return run(ctx, l.exec, Command{Binary: "init", Arguments: []string{"q"}})
}

// DisableConsoleAutologin restores the tty1 login prompt.
func (l *Linux) DisableConsoleAutologin(ctx context.Context) error {
	if err := l.editFile(l.config.Inittab, gettyLine, "${1} 38400 tty1"); err != nil {
		return err
	}
	return run(ctx, l.exec, Command{Binary: "init", Arguments: []string{"q"}})
}

// SetDMAutologin makes the display manager log name in.
func (l *Linux) SetDMAutologin(ctx context.Context, name string) error {
	return run(ctx, l.exec, Command{Binary: l.config.LightDMSetDefaults, Arguments: []string{"--autologin", name}})
}

// UnsetDMAutologin removes the autologin user from the display manager.
func (l *Linux) UnsetDMAutologin(ctx context.Context) error {
	return l.editFile(l.config.LightDMConf, autologinLine, "")
}

// EnableDMAutostart starts the display manager at boot.
func (l *Linux) EnableDMAutostart(ctx context.Context) error {
	return run(ctx, l.exec, Command{Binary: "update-rc.d", Arguments: []string{l.config.DisplayManager, "enable", "2"}})
}

// DisableDMAutostart keeps the display manager off at boot.
func (l *Linux) DisableDMAutostart(ctx context.Context) error {
	return run(ctx, l.exec, Command{Binary: "update-rc.d", Arguments: []string{l.config.DisplayManager, "disable", "2"}})
}

// StartDM starts the display manager now.
func (l *Linux) StartDM(ctx context.Context) error {
	return run(ctx, l.exec, Command{Binary: "service", Arguments: []string{l.config.DisplayManager, "start"}})
}

// editFile applies a regexp replacement in place. A missing file is left
// missing.
func (l *Linux) editFile(path string, re *regexp.Regexp, repl string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logging.Get(logging.CategorySystem).Warn("%s missing, not edited", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	out := re.ReplaceAll(data, []byte(repl))
	if string(out) == string(data) {
		return nil
	}
	if l.config.DryRun {
		logging.System("dry-run: would edit %s", path)
		return nil
	}
	return writeFile(path, out)
}

// writeFile replaces path keeping its permissions.
func writeFile(path string, data []byte) error {
	mode := fs.FileMode(0644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}
	tmp := path + ".kano-init"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
