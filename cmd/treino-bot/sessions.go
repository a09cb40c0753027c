package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/glebk/treino-bot/internal/domain"
	"github.com/glebk/treino-bot/internal/repository/sqldb"
	"github.com/glebk/treino-bot/internal/tracker"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	sessionsStudent int64
	sessionsStatus  string
	sessionsFormat  string
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	durationStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusStyles = map[domain.SessionStatus]lipgloss.Style{
		domain.SessionStatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		domain.SessionStatusPaused:    lipgloss.NewStyle().Foreground(lipgloss.Color("135")),
		domain.SessionStatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		domain.SessionStatusCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List a student's workout sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessionsStudent <= 0 {
			return fmt.Errorf("--student is required")
		}

		var statuses []domain.SessionStatus
		if sessionsStatus != "" {
			for _, part := range strings.Split(sessionsStatus, ",") {
				s := domain.SessionStatus(strings.TrimSpace(part))
				if !s.Valid() {
					return fmt.Errorf("unknown status %q", s)
				}
				statuses = append(statuses, s)
			}
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		sessions, err := sqldb.NewSessionRepository(db).ListByStudent(cmd.Context(), sessionsStudent, statuses...)
		if err != nil {
			return err
		}

		return writeSessions(cmd.OutOrStdout(), sessions, sessionsFormat)
	},
}

func init() {
	sessionsCmd.Flags().Int64Var(&sessionsStudent, "student", 0, "Student Telegram ID")
	sessionsCmd.Flags().StringVar(&sessionsStatus, "status", "", "Comma separated status filter (em_andamento,pausado,concluido,cancelado)")
	sessionsCmd.Flags().StringVarP(&sessionsFormat, "format", "f", "table", "Output format: table, json or yaml")
}

// writeSessions renders sessions in the requested format
func writeSessions(w io.Writer, sessions []*domain.WorkoutSession, format string) error {
	if sessions == nil {
		sessions = []*domain.WorkoutSession{}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sessions); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		_, err := io.WriteString(w, renderSessionTable(sessions))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func renderSessionTable(sessions []*domain.WorkoutSession) string {
	if len(sessions) == 0 {
		return "No sessions found.\n"
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%d session(s)", len(sessions))))
	sb.WriteString("\n\n")

	for _, s := range sessions {
		status := string(s.Status)
		if style, ok := statusStyles[s.Status]; ok {
			status = style.Render(status)
		}

		fmt.Fprintf(&sb, "  Day %-3d %-14s %s  %s  %s\n",
			s.DayIndex,
			status,
			durationStyle.Render(tracker.FormatDuration(s.DurationSeconds)),
			dateStyle.Render(s.StartedAt.Format("2006-01-02 15:04")),
			idStyle.Render(s.ID),
		)
	}

	return sb.String()
}
