// Command digest sweeps for participants with unread messages and logs
// them. Run it from cron; a notification pipeline picks the output up
// from there.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lalith-99/parley/internal/config"
	"github.com/lalith-99/parley/internal/db"
	"github.com/lalith-99/parley/internal/observ"
	"github.com/lalith-99/parley/internal/repository/postgres"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	days := flag.Int("days", 7, "look back this many days (0 = since midnight today)")
	includeSystem := flag.Bool("include-system", false, "count system messages as unread")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	messages := postgres.NewMessageStore(database.Pool())
	since := sinceDays(*days)

	identities, err := messages.IdentitiesWithUnreadSince(ctx, since, *includeSystem)
	if err != nil {
		return fmt.Errorf("sweep unread: %w", err)
	}

	for _, identity := range identities {
		logger.Info("participant has unread messages",
			zap.String("participant", identity.Key()),
			zap.Time("since", since),
		)
	}
	logger.Info("digest sweep complete",
		zap.Int("days", *days),
		zap.Int("participants", len(identities)),
	)
	return nil
}

// sinceDays is the start of the day daysAgo days back, so -days=0
// means "since midnight today".
func sinceDays(daysAgo int) time.Time {
	if daysAgo < 0 {
		daysAgo = 0
	}
	day := time.Now().AddDate(0, 0, -daysAgo)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
}
