// Command rescore recomputes every league score and the full
// leaderboard for one season. Intended for operational backfills;
// every write it performs is derived fresh, so re-running is safe.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cancelei/longevity-world-cup/internal/config"
	persistence "github.com/cancelei/longevity-world-cup/internal/persistence/postgres"
	"github.com/cancelei/longevity-world-cup/internal/scoring"
)

func main() {
	seasonID := flag.String("season", "", "season to rescore (required)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall run timeout")
	flag.Parse()

	if *seasonID == "" {
		log.Fatal("missing required -season flag")
	}

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	engine := scoring.NewEngine(repo, repo, repo, repo)

	result, err := engine.RefreshSeason(ctx, *seasonID)
	if err != nil {
		log.Fatalf("season refresh failed: %v", err)
	}

	for _, leagueErr := range result.Errors {
		log.Printf("league %s failed: %s", leagueErr.LeagueID, leagueErr.Message)
	}
	log.Printf("season %s rescored (processed=%d, updated=%d, errors=%d)", *seasonID, result.Processed, result.Updated, len(result.Errors))
}
