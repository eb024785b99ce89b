package main

import (
	"github.com/spf13/cobra"

	"car-advisor/bot"
	"car-advisor/metrics"
	"car-advisor/predict"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram deal-checker bot",
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(nil)
	if err != nil {
		return err
	}
	a, err := predict.LoadArtifact(cfg.ModelPath)
	if err != nil {
		return err
	}
	svc, err := predict.NewService(a, predict.ServiceOptions{Metrics: metrics.New()})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	b, err := bot.New(cfg.TelegramToken, bot.NewConversation(svc, store, logger), bot.Options{Logger: logger})
	if err != nil {
		return err
	}
	return b.Run(ctx)
}
