package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"faculty-quiz-service/internal/config"
)

// NewAttemptsCmd prints the newest attempts from the global leaderboard.
func NewAttemptsCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Print the most recent attempts of all participants",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			b := &backends{}
			defer b.Close()
			mirror, err := newMirror(ctx, cfg, b)
			if err != nil {
				return err
			}
			records, err := mirror.Global(ctx, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tIDENTITY\tSCORE\tPERCENT")
			for _, rec := range records {
				identity := rec.Identity
				if identity == "" {
					identity = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%.1f%%\n", rec.Timestamp.Format("2006-01-02 15:04"), identity, rec.Score, rec.Total, rec.Percentage)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "number of attempts to show")
	return cmd
}
