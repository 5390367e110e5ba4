package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/haoyuwlab/stemr/lna"
	"github.com/haoyuwlab/stemr/models"
	"github.com/haoyuwlab/stemr/ode"
)

func newSimulateCmd() *cobra.Command {
	var cfgPath, outPath string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Propose LNA paths for a configured epidemic model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, cfgPath, outPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "YAML model configuration")
	cmd.Flags().StringVar(&outPath, "out", "paths.db", "SQLite file for the proposed paths")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runSimulate(cmd *cobra.Command, cfgPath, outPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := cmd.Context()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	net := models.SIR()
	eng := ode.NewContext(net.MomentSystem())
	times := cfg.times()

	// One parameter row per time point: [beta, mu, S, I, R]. Parameters
	// are flat in time, so no update flags are set and the volume columns
	// only matter on row 0.
	table := mat.NewDense(len(times), 2+len(cfg.Init), nil)
	for i := 0; i < len(times); i++ {
		copy(table.RawRowView(i)[models.SIRVolStart:], cfg.Init)
	}
	if err := lna.BroadcastParams(table, []float64{cfg.Beta, cfg.Mu}); err != nil {
		return err
	}
	updateInds := make([]bool, len(times))

	store := newPathStore(outPath)
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	logger.Info("simulating",
		"model", cfg.Model, "paths", cfg.Paths, "intervals", cfg.Steps,
		"beta", cfg.Beta, "mu", cfg.Mu)

	for p := 0; p < cfg.Paths; p++ {
		prop, err := lna.ProposePath(times, table, models.SIRVolStart, updateInds,
			net.Stoich, eng, rand.NewSource(cfg.Seed+uint64(p)))
		if err != nil {
			return err
		}
		if err := store.SavePath(ctx, p, prop.Path); err != nil {
			return err
		}
		logger.Info("path proposed",
			"path", p,
			"final_infections", prop.Path.At(len(times)-1, 1),
			"final_recoveries", prop.Path.At(len(times)-1, 2))
	}
	return nil
}
