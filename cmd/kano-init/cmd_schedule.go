package main

import (
	"fmt"

	"kanoinit/internal/status"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <reset|add-user|delete-user> [username]",
	Short: "Schedule a maintenance task for the next boot",
	Long: `Schedules a maintenance task and prepares the device to boot into it:
the display manager is disabled and the console logs in as root.

Only one task can be pending at a time.`,
	Args:      rangeArgs(1, 2),
	ValidArgs: []string{string(status.StageReset), string(status.StageAddUser), string(status.StageDeleteUser)},
	RunE:      scheduleTask,
}

var finaliseCmd = &cobra.Command{
	Use:     "finalise",
	Aliases: []string{"finalize"},
	Short:   "Close onboarding once the desktop onboarding is done",
	Args:    exactArgs(0),
	RunE:    finaliseOnboarding,
}

func scheduleTask(cmd *cobra.Command, args []string) error {
	task, err := status.ParseStage(args[0])
	if err != nil {
		return err
	}

	name := ""
	switch task {
	case status.StageReset, status.StageAddUser:
		if len(args) > 1 {
			return usageError(fmt.Errorf("%s takes no username", task))
		}
	case status.StageDeleteUser:
		if len(args) < 2 {
			return usageError(fmt.Errorf("%s needs a username", task))
		}
		name = args[1]
	default:
		return usageError(fmt.Errorf("%s is not a maintenance task", task))
	}

	if err := requireRoot(appConfig); err != nil {
		return err
	}
	a, err := openApp(appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sequencer(nil, false).Schedule(cmd.Context(), task, name); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), noticeStyle.Render(fmt.Sprintf("%s scheduled for the next boot.", task)))
	return nil
}

func finaliseOnboarding(cmd *cobra.Command, args []string) error {
	if err := requireRoot(appConfig); err != nil {
		return err
	}
	a, err := openApp(appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sequencer(nil, false).Finalise(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), stageStyle.Render("Onboarding finalised."))
	return nil
}
