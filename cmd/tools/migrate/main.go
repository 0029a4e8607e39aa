// Command migrate applies or rolls back the order schema read by the summary API.
package main

import (
	"flag"
	"os"

	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/repo"
)

func main() {
	down := flag.Bool("down", false, "roll back instead of applying")
	flag.Parse()

	cfg := config.MustLoad()
	logger := obs.NewLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}
	if err := repo.Migrate(cfg.DatabaseURL, *down); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	logger.Info().Bool("down", *down).Msg("migrations complete")
}
