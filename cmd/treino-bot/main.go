package main

import (
	"fmt"
	"log"
	"os"

	"github.com/glebk/treino-bot/internal/config"
	"github.com/glebk/treino-bot/internal/repository/sqldb"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "treino-bot",
	Short: "Workout session tracker for personal trainers and their students",
	Long: `A Telegram bot that times workout sessions and tells trainers when
their students finish a workout.

Quick Start:
  treino-bot serve                                         # Run the bot and the API
  treino-bot sessions --student 42                         # Show a student's history
  treino-bot days add --student 42 --trainer 7 --index 1 --name "Costas"`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, sessionsCmd, daysCmd)
}

// openDatabase opens the configured database
func openDatabase() (*sqldb.Database, error) {
	db, err := sqldb.New(cfg.DatabaseDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	log.Printf("Database initialized (%s)", cfg.DatabaseDriver)
	return db, nil
}
