package cli

import (
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"faculty-quiz-service/internal/config"
)

// NewGenerateCmd requests one question batch and prints it, useful for checking the API key and prompt.
func NewGenerateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Request one question batch and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			batch, err := newQuestionSource(cfg, logger).RequestBatch(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(batch)
		},
	}
}
