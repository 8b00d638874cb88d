package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mlutz/spieltag/go/internal/dbconfig"
)

// Fixture mirrors the schedule JSON the tournament wizard exports.
type Fixture struct {
	ID           string `json:"id"`
	TournamentID string `json:"tournament_id"`
	HomeTeamID   string `json:"home_team_id"`
	AwayTeamID   string `json:"away_team_id"`
}

const remoteSchema = `
CREATE TABLE IF NOT EXISTS matches (
	id                        UUID PRIMARY KEY,
	tournament_id             UUID NOT NULL,
	status                    TEXT NOT NULL DEFAULT 'SCHEDULED',
	score_home                INTEGER NOT NULL DEFAULT 0,
	score_away                INTEGER NOT NULL DEFAULT 0,
	timer_started_at          TIMESTAMPTZ,
	timer_accumulated_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	events                    JSONB,
	updated_at                TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_remote_matches_tournament ON matches(tournament_id);
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: seed_schedule <fixtures.json>")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var fixtures []Fixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	cfg := dbconfig.NewRemoteConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if _, err := pool.Exec(context.Background(), remoteSchema); err != nil {
		fmt.Fprintf(os.Stderr, "create schema: %v\n", err)
		os.Exit(1)
	}

	var inserted, skipped, errs int
	for _, f := range fixtures {
		bad := false
		for _, field := range []string{f.ID, f.TournamentID, f.HomeTeamID, f.AwayTeamID} {
			if _, err := uuid.Parse(field); err != nil {
				fmt.Fprintf(os.Stderr, "fixture %s: bad uuid %q\n", f.ID, field)
				bad = true
			}
		}
		if bad {
			errs++
			continue
		}

		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO matches (id, tournament_id, status)
            VALUES ($1, $2, 'SCHEDULED')
            ON CONFLICT (id) DO NOTHING
        `, f.ID, f.TournamentID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "insert %s: %v\n", f.ID, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 0 {
			skipped++
		} else {
			inserted++
		}
	}

	fmt.Printf("seeded %d fixtures (%d inserted, %d already present, %d errors)\n",
		len(fixtures), inserted, skipped, errs)
}
