package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kanoinit/internal/journal"
	"kanoinit/internal/status"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	// status flags
	statusFollow  bool
	statusHistory int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted onboarding stage",
	Long: `Shows the stage kano-init will resume at and the user created so far.
The status file is only read; a missing file is reported as the default.`,
	Args: exactArgs(0),
	RunE: showStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "Keep printing the status as it changes")
	statusCmd.Flags().IntVar(&statusHistory, "history", 0, "Also show the last N recorded transitions")
}

func showStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := appConfig.Paths.StatusFile

	st, err := status.Read(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		st = status.Default()
	case err != nil:
		return err
	}
	printStatus(out, st)

	if statusHistory > 0 {
		if err := printHistory(cmd, statusHistory); err != nil {
			return err
		}
	}

	if !statusFollow {
		return nil
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = status.Watch(ctx, path, func(st status.Status) {
		fmt.Fprintln(out, dimStyle.Render(time.Now().Format(time.TimeOnly)))
		printStatus(out, st)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func printStatus(w io.Writer, st status.Status) {
	user := st.User()
	if user == "" {
		user = dimStyle.Render("(none)")
	}
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render("stage"), stageStyle.Render(string(st.Stage))))
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render("username"), user))
	if st.Stage.IsMaintenance() && st.Stage != status.StageDisabled {
		fmt.Fprintln(w, noticeStyle.Render(fmt.Sprintf("%s runs on the next boot", st.Stage)))
	}
}

func printHistory(cmd *cobra.Command, limit int) error {
	j, err := journal.Open(appConfig.Paths.JournalDB)
	if err != nil {
		return err
	}
	defer j.Close()

	recent, err := j.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render("history"))
	if len(recent) == 0 {
		fmt.Fprintln(out, dimStyle.Render("no transitions recorded"))
		return nil
	}
	for _, t := range recent {
		row := []string{
			t.At.Local().Format(time.DateTime),
			fmt.Sprintf("%-12s -> %-12s", t.From, t.To),
			t.Username,
			dimStyle.Render(t.RunID.String()[:8]),
		}
		fmt.Fprintln(out, strings.Join(row, "  "))
	}
	return nil
}
