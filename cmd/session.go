package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/attendance-tracker/internal/app"
	"github.com/kozaktomas/attendance-tracker/internal/constants"
	"github.com/kozaktomas/attendance-tracker/internal/session"
)

const sessionTimeLayout = "2006-01-02 15:04"

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage class sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions starting in a date range",
	RunE:  runSessionList,
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Schedule a new session",
	Long: `Schedule a new class session. Times are read in SCHEDULER_TIMEZONE.

Examples:
  attendance-tracker session create --course CS101 --start "2026-10-19 09:00" --duration 90m --auto-start --auto-stop`,
	RunE: runSessionCreate,
}

var sessionRulesCmd = &cobra.Command{
	Use:   "rules <session-id>",
	Short: "Show whether the rule chain would open or close a session now",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionRules,
}

var sessionOpenCmd = &cobra.Command{
	Use:   "open <session-id>",
	Short: "Open a pending session",
	Args:  cobra.ExactArgs(1),
	RunE: sessionTransition(func(ctx context.Context, a *app.App, id string) (*session.Session, error) {
		return a.Lifecycle.Open(ctx, id)
	}),
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a session and mark missing students absent",
	Args:  cobra.ExactArgs(1),
	RunE: sessionTransition(func(ctx context.Context, a *app.App, id string) (*session.Session, error) {
		return a.Lifecycle.Close(ctx, id)
	}),
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset <session-id>",
	Short: "Return a session to pending",
	Args:  cobra.ExactArgs(1),
	RunE: sessionTransition(func(ctx context.Context, a *app.App, id string) (*session.Session, error) {
		return a.Lifecycle.Reset(ctx, id)
	}),
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionCreateCmd, sessionRulesCmd, sessionOpenCmd, sessionCloseCmd, sessionResetCmd)

	sessionListCmd.Flags().String("from", "", "First day (YYYY-MM-DD), defaults to today")
	sessionListCmd.Flags().Int("days", 7, "Number of days to list")
	sessionListCmd.Flags().Bool("json", false, "Output as JSON")

	sessionCreateCmd.Flags().String("id", "", "Session ID (generated when empty)")
	sessionCreateCmd.Flags().String("course", "", "Course ID (required)")
	sessionCreateCmd.Flags().String("course-name", "", "Course display name")
	sessionCreateCmd.Flags().String("start", "", "Start time as \"YYYY-MM-DD HH:MM\" (required)")
	sessionCreateCmd.Flags().Duration("duration", 90*time.Minute, "Session length")
	sessionCreateCmd.Flags().String("location", "", "Room or building")
	sessionCreateCmd.Flags().Int("late", constants.DefaultLateThresholdMinutes, "Minutes after start before arrivals count as late")
	sessionCreateCmd.Flags().Bool("auto-start", false, "Open automatically at start time")
	sessionCreateCmd.Flags().Bool("auto-stop", false, "Close automatically at end time")

	sessionRulesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSessionList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, log, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	loc := a.Config.Scheduler.Location()
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if v := mustGetString(cmd, "from"); v != "" {
		if from, err = time.ParseInLocation("2006-01-02", v, loc); err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
	}
	days := mustGetInt(cmd, "days")
	if days <= 0 {
		return errors.New("--days must be positive")
	}

	sessions, err := a.Stores.Sessions.ListSessions(ctx, from, from.AddDate(0, 0, days))
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if mustGetBool(cmd, "json") {
		out := make([]session.Snapshot, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, s.Snapshot())
		}
		return outputJSON(out)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions scheduled.")
		return nil
	}
	for _, s := range sessions {
		snap := s.Snapshot()
		fmt.Printf("%-36s  %-8s  %s - %s  %s %s\n",
			snap.ID, snap.Status,
			snap.Start.In(loc).Format(sessionTimeLayout), snap.End.In(loc).Format("15:04"),
			snap.CourseID, snap.CourseName)
	}
	return nil
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	course := mustGetString(cmd, "course")
	if course == "" {
		return errors.New("--course is required")
	}
	duration := mustGetDuration(cmd, "duration")
	if duration <= 0 {
		return errors.New("--duration must be positive")
	}
	late := mustGetInt(cmd, "late")
	if late < 0 {
		return errors.New("--late must not be negative")
	}

	ctx := context.Background()
	a, log, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	start, err := time.ParseInLocation(sessionTimeLayout, mustGetString(cmd, "start"), a.Config.Scheduler.Location())
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	id := mustGetString(cmd, "id")
	if id == "" {
		id = uuid.NewString()
	}

	s := session.New(session.Info{
		ID:                   id,
		CourseID:             course,
		CourseName:           mustGetString(cmd, "course-name"),
		Start:                start,
		End:                  start.Add(duration),
		Location:             mustGetString(cmd, "location"),
		LateThresholdMinutes: late,
		AutoStart:            mustGetBool(cmd, "auto-start"),
		AutoStop:             mustGetBool(cmd, "auto-stop"),
	})
	if err := a.Stores.Sessions.CreateSession(ctx, s); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	fmt.Printf("Created session %s\n", s.ID)
	return nil
}

func runSessionRules(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, log, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	report, err := a.Lifecycle.Evaluate(ctx, args[0])
	if err != nil {
		return err
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(report)
	}
	fmt.Printf("Session: %s (%s)\n", report.SessionID, report.Status)
	fmt.Printf("Rules:   %s\n", report.Description)
	fmt.Printf("Open:    %s\n", describeDecision(report.CanOpen))
	fmt.Printf("Close:   %s\n", describeDecision(report.CanClose))
	return nil
}

func describeDecision(d session.Decision) string {
	switch {
	case d.Allowed:
		return "allowed"
	case d.Err != nil:
		return fmt.Sprintf("denied by %s (%v)", d.DeniedBy, d.Err)
	default:
		return "denied by " + d.DeniedBy
	}
}

// sessionTransition wraps a manual lifecycle action as a command.
func sessionTransition(do func(ctx context.Context, a *app.App, id string) (*session.Session, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, log, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer log.Sync()
		defer a.Close()

		s, err := do(ctx, a, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Session %s is now %s\n", s.ID, s.Status())
		return nil
	}
}
