package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/flaircheck/internal/bot"
	"github.com/ppiankov/flaircheck/internal/config"
	"github.com/ppiankov/flaircheck/internal/logging"
	"github.com/ppiankov/flaircheck/internal/reddit"
	"github.com/ppiankov/flaircheck/internal/store"
)

// newAPI builds the authenticated remote client. Tests replace it.
var newAPI = func(ctx context.Context, cfg *config.Config) (bot.API, error) {
	if err := cfg.Reddit.CheckCredentials(); err != nil {
		return nil, err
	}
	httpClient, err := reddit.NewOAuthHTTPClient(ctx, reddit.Credentials{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
		TokenURL:     cfg.Reddit.TokenURL,
		UserAgent:    cfg.Reddit.UserAgent,
		Timeout:      cfg.Reddit.Timeout.Duration,
	})
	if err != nil {
		return nil, err
	}
	return reddit.New(httpClient, reddit.Options{
		BaseURL:   cfg.Reddit.BaseURL,
		UserAgent: cfg.Reddit.UserAgent,
		Throttle:  cfg.Reddit.Throttle.Duration,
	})
}

// app holds what every moderation command needs. close releases it.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	ledger store.Ledger
	bot    *bot.Bot
}

func (a *app) close() {
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
	_ = a.log.Sync()
}

// openApp loads config and opens logging and the ledger. With withBot it also
// connects the remote API and assembles the bot.
func openApp(ctx context.Context, withBot bool) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	ledger, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	a := &app{cfg: cfg, log: log, ledger: ledger}
	if !withBot {
		return a, nil
	}

	api, err := newAPI(ctx, cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("connect reddit: %w", err)
	}

	a.bot, err = bot.FromConfig(cfg, api, ledger, log)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}
