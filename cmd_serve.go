package main

import (
	"errors"

	"github.com/spf13/cobra"

	"car-advisor/api"
	"car-advisor/metrics"
	"car-advisor/predict"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve price predictions and stored listings over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "Listen address (default: $API_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(nil)
	if err != nil {
		return err
	}
	if serveFlags.addr != "" {
		cfg.APIAddr = serveFlags.addr
	}
	ctx := cmd.Context()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	// Keep the interface nil when no model is loaded so /predict answers 503.
	var predictor api.Predictor
	a, err := predict.LoadArtifact(cfg.ModelPath)
	switch {
	case errors.Is(err, predict.ErrNoArtifact):
		logger.Warn("[serve] No model at %s; run 'caradvisor train' first", cfg.ModelPath)
	case err != nil:
		return err
	default:
		svc, err := predict.NewService(a, predict.ServiceOptions{Metrics: m})
		if err != nil {
			return err
		}
		predictor = svc
		logger.Info("[serve] Model trained %s on %d samples loaded", a.TrainedAt.Format("2006-01-02 15:04"), a.Samples)
	}

	srv := api.New(predictor, store, api.Options{
		RateLimit: cfg.APIRateLimit,
		Logger:    logger,
		Metrics:   m,
	})
	return srv.ListenAndServe(ctx, cfg.APIAddr)
}
