package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/telexbot/internal/config"
	"github.com/telexbot/internal/database"
)

// MigrateCommand returns the CLI command for creating the schema
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the chatbot database schema",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "seed",
				Usage: "Also seed the builtin default trigger rules",
			},
		},
		Action: runMigrate,
	}
}

func runMigrate(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(c.Context, db); err != nil {
		return err
	}
	log.Info().Msg("Database schema is up to date")

	if c.Bool("seed") {
		if err := database.SeedDefaultRules(c.Context, db); err != nil {
			return err
		}
		log.Info().Msg("Default trigger rules seeded")
	}

	return nil
}
