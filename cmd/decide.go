package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/brain"
	"github.com/xkilldash9x/uiprobe/internal/observability"
)

const defaultMaxActions = 30

const (
	finalizeSuccess = "success"
	finalizeFailure = "failure"
)

func newDecideCmd(llm llmProvider, mem memoryProvider) *cobra.Command {
	var scenarioPath string
	var observationPaths []string
	var vision, noCritic, noMemory bool
	var finalize string

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Run the brain over one or more page observations and print each decided action",
		Long: `Loads a YAML scenario, then feeds each observation file (JSON) to the brain in
order, printing one action per line. Stops early when the brain returns "done".

With --finalize the run is reported to memory afterwards: "success" caches the
decided actions for the scenario, "failure" records a lesson when the run was
long enough to learn from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("vision") {
				cfg.SetPromptVision(vision)
			}
			if noCritic {
				cfg.SetCriticEnabled(false)
			}
			switch finalize {
			case "", finalizeSuccess, finalizeFailure:
			default:
				return fmt.Errorf("invalid --finalize value %q: must be %q or %q", finalize, finalizeSuccess, finalizeFailure)
			}
			logger := observability.Component("decide")

			scenario, err := loadScenario(scenarioPath)
			if err != nil {
				return err
			}

			client, err := llm.Create(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to create llm client: %w", err)
			}
			defer client.Close()

			var b *brain.Brain
			if noMemory {
				b = brain.New(client, nil, cfg.Agent(), logger)
			} else {
				store, cleanup, err := mem.Open(ctx, cfg)
				if err != nil {
					return err
				}
				defer cleanup()
				b = brain.New(client, store, cfg.Agent(), logger)
			}
			b.InitScenario(scenario)

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, path := range observationPaths {
				obs, err := loadObservation(path)
				if err != nil {
					return err
				}
				action := b.DecideAction(ctx, obs)
				if err := enc.Encode(action); err != nil {
					return fmt.Errorf("failed to write action: %w", err)
				}
				if action.IsTerminal() {
					break
				}
			}
			if finalize != "" {
				if noMemory {
					logger.Warn("Ignoring --finalize because memory is disabled.")
				} else if err := b.Finalize(ctx, finalize == finalizeSuccess); err != nil {
					return fmt.Errorf("failed to finalize run: %w", err)
				}
			}
			logger.Info("Decide run complete.",
				zap.String("session_id", b.SessionID()),
				zap.Int("steps", b.Step()),
				zap.Int("stuck_score", b.Ledger().StuckScore))
			return nil
		},
	}
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario YAML file")
	cmd.Flags().StringArrayVarP(&observationPaths, "observation", "o", nil, "observation JSON file (repeatable, processed in order)")
	cmd.Flags().BoolVar(&vision, "vision", false, "reference screenshots in the prompt")
	cmd.Flags().BoolVar(&noCritic, "no-critic", false, "disable the periodic critic")
	cmd.Flags().BoolVar(&noMemory, "no-memory", false, "ignore cached hints and lessons")
	cmd.Flags().StringVar(&finalize, "finalize", "", `report the run to memory as "success" or "failure"`)
	_ = cmd.MarkFlagRequired("scenario")
	_ = cmd.MarkFlagRequired("observation")
	return cmd
}

func loadScenario(path string) (schemas.TestScenario, error) {
	var s schemas.TestScenario
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	if s.ID == "" || s.Goal == "" {
		return s, fmt.Errorf("scenario %s must set id and goal", path)
	}
	if s.MaxActions <= 0 {
		s.MaxActions = defaultMaxActions
	}
	return s, nil
}

func loadObservation(path string) (schemas.PageObservation, error) {
	var obs schemas.PageObservation
	data, err := os.ReadFile(path)
	if err != nil {
		return obs, fmt.Errorf("failed to read observation: %w", err)
	}
	if err := json.Unmarshal(data, &obs); err != nil {
		return obs, fmt.Errorf("failed to parse observation %s: %w", path, err)
	}
	return obs, nil
}
