package cmd

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/telexbot/internal/ai"
	"github.com/telexbot/internal/ai/langchain"
	"github.com/telexbot/internal/api"
	"github.com/telexbot/internal/chatbot"
	"github.com/telexbot/internal/config"
	"github.com/telexbot/internal/database"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the chatbot API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	store := chatbot.NewPostgresStore(db)

	var generator ai.TextGenerator
	gen, err := langchain.New(langchain.Config{
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		BaseURL:     cfg.AI.BaseURL,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	})
	switch {
	case errors.Is(err, ai.ErrUnavailable):
		log.Warn().Msg("No AI credentials configured, unmatched messages get the default reply")
	case err != nil:
		return err
	default:
		generator = gen
		log.Info().Str("generator", gen.Name()).Msg("Fallback generation enabled")
	}

	agent := chatbot.NewAgent(store, generator, chatbot.AgentConfig{
		DefaultReply:    cfg.Chat.DefaultReply,
		HistoryLimit:    cfg.Chat.HistoryLimit,
		GenerateTimeout: time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	})

	port := cfg.Server.Port
	if p := c.Int("port"); p != 0 {
		port = p
	}

	log.Info().Int("port", port).Msg("Starting chatbot API server")
	server := api.NewServer(port, api.Dependencies{
		Agent:         agent,
		Store:         store,
		ChatRateLimit: rate.Limit(cfg.Server.ChatRateLimit),
	})
	return server.Start()
}
