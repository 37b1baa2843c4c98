package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"routeplan/internal/config"
	"routeplan/internal/logging"
	"routeplan/internal/model"
	"routeplan/internal/planner"
	"routeplan/internal/store"
)

const offlineTenant = "local"

var (
	scenarioPath string
	solveMetric  string
	solveOut     string
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Plan routes for a YAML or JSON scenario and print the plan as JSON",
	Args:  cobra.NoArgs,
	RunE:  solve,
}

func init() {
	solveCmd.Flags().StringVarP(&scenarioPath, "file", "f", "", "scenario file (yaml or json; - for stdin)")
	solveCmd.Flags().StringVar(&solveMetric, "metric", "", "distance metric override (haversine, equirectangular)")
	solveCmd.Flags().StringVarP(&solveOut, "out", "o", "", "write the plan to this file instead of stdout")
	_ = solveCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(solveCmd)
}

// readScenario decodes a plan request; JSON is accepted as YAML.
func readScenario(path string, stdin io.Reader) (model.PlanRequest, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return model.PlanRequest{}, fmt.Errorf("read scenario: %w", err)
	}
	var req model.PlanRequest
	if err := yaml.Unmarshal(raw, &req); err != nil {
		return model.PlanRequest{}, fmt.Errorf("parse scenario: %w", err)
	}
	if req.Depot == nil {
		return model.PlanRequest{}, fmt.Errorf("scenario has no depot")
	}
	return req, nil
}

func solve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.SetLevel(cfg.Log.Level)

	req, err := readScenario(scenarioPath, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if solveMetric != "" {
		req.Metric = solveMetric
	}

	pl := planner.New(store.NewMemory(), cfg.Planner, logging.NewWithWriter("solve", cmd.ErrOrStderr()))
	plan, err := pl.Plan(context.Background(), offlineTenant, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if solveOut != "" {
		f, err := os.Create(solveOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", solveOut, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
