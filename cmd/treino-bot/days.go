package main

import (
	"fmt"

	"github.com/glebk/treino-bot/internal/notify"
	"github.com/glebk/treino-bot/internal/repository/sqldb"
	"github.com/glebk/treino-bot/internal/service"
	"github.com/glebk/treino-bot/internal/snapshot"
	"github.com/spf13/cobra"
)

var (
	dayStudent int64
	dayTrainer int64
	dayIndex   int
	dayName    string
)

var daysCmd = &cobra.Command{
	Use:   "days",
	Short: "Manage students' workout plans",
}

var daysAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a workout day to a student's plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := offlineService(db)

		day, err := svc.AddWorkoutDay(cmd.Context(), dayStudent, dayTrainer, dayIndex, dayName)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Added day %d (%s) for student %d\n", day.DayIndex, day.Name, day.StudentID)
		return nil
	},
}

var daysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a student's workout plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		days, err := offlineService(db).ListDays(cmd.Context(), dayStudent)
		if err != nil {
			return err
		}
		if len(days) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No workout days found.")
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(fmt.Sprintf("Student %d", dayStudent)))
		for _, d := range days {
			fmt.Fprintf(cmd.OutOrStdout(), "  Day %-3d %s\n", d.DayIndex, d.Name)
		}
		return nil
	},
}

// offlineService builds a service for one-shot commands. It gets its own
// in-memory snapshot cache so it never touches the running bot's file.
func offlineService(db *sqldb.Database) *service.WorkoutService {
	users := sqldb.NewUserRepository(db)
	notifications := sqldb.NewNotificationRepository(db)

	return service.NewWorkoutService(
		users,
		sqldb.NewWorkoutDayRepository(db),
		sqldb.NewSessionRepository(db),
		notifications,
		snapshot.NewStore(snapshot.NewMemoryKV()),
		notify.NewDispatcher(notifications, users, nil),
		service.Options{},
	)
}

func init() {
	daysAddCmd.Flags().Int64Var(&dayStudent, "student", 0, "Student Telegram ID")
	daysAddCmd.Flags().Int64Var(&dayTrainer, "trainer", 0, "Trainer Telegram ID")
	daysAddCmd.Flags().IntVar(&dayIndex, "index", 0, "Position of the day in the plan")
	daysAddCmd.Flags().StringVar(&dayName, "name", "", "Name of the workout")
	for _, f := range []string{"student", "trainer", "index", "name"} {
		_ = daysAddCmd.MarkFlagRequired(f)
	}

	daysListCmd.Flags().Int64Var(&dayStudent, "student", 0, "Student Telegram ID")
	_ = daysListCmd.MarkFlagRequired("student")

	daysCmd.AddCommand(daysAddCmd, daysListCmd)
}
