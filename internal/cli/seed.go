package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"trivia-room-service/internal/config"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/infra/memory"
	"trivia-room-service/internal/infra/postgres"
)

// NewSeedCmd loads a question set into Postgres, the embedded one by default.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load questions into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg.Log)
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			questions, err := loadQuestionFile(file)
			if err != nil {
				return err
			}

			db := postgres.OpenBun(cfg.Postgres.URL)
			defer db.Close()
			if _, err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			n, err := postgres.SeedQuestions(cmd.Context(), db, questions)
			if err != nil {
				return err
			}
			log.Info().Int("questions", n).Str("source", sourceName(file)).Msg("questions seeded")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML question file (defaults to the embedded set)")
	return cmd
}

func loadQuestionFile(path string) ([]domain.Question, error) {
	if path == "" {
		return memory.SeedQuestions()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return memory.ParseQuestions(data)
}

func sourceName(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
