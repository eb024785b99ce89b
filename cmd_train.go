package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"car-advisor/predict"
	"car-advisor/storage"
)

var trainFlags struct {
	trees int
	seed  uint64
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the price model on stored listings and write the artifact",
	RunE:  runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.IntVar(&trainFlags.trees, "trees", 100, "Number of trees in the forest")
	f.Uint64Var(&trainFlags.seed, "seed", 42, "Random seed for sampling and the holdout split")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	listings, err := store.Query(ctx, storage.Filter{}, 0)
	if err != nil {
		return fmt.Errorf("load listings: %w", err)
	}

	params := predict.DefaultForestParams()
	params.Trees = trainFlags.trees
	params.Seed = trainFlags.seed
	a, err := predict.Train(ctx, listings, predict.TrainOptions{Forest: params, Logger: logger})
	if err != nil {
		return err
	}
	if err := a.Save(cfg.ModelPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Model saved to %s (%d samples, holdout MAE %.2f)\n",
		cfg.ModelPath, a.Samples, a.MAE)
	return nil
}
