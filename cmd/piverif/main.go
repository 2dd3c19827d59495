// Command piverif loads a textual Applied-Pi model, translates it into
// stateful Horn clauses, elaborates its nession set, and runs the query
// engine over every declared query.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gitrdm/piverif/internal/config"
	"github.com/gitrdm/piverif/internal/logging"
	"github.com/gitrdm/piverif/internal/parallel"
	"github.com/gitrdm/piverif/internal/pilang"
	"github.com/gitrdm/piverif/pkg/piverif"
)

var (
	configPath string
	verbose    bool
	withSource bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "piverif [model.pv]",
		Short: "symbolic Dolev-Yao verifier for Applied-Pi protocol models",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&withSource, "with-sources", false, "annotate attack traces with rule sources")
	return root
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Init(os.Stderr, cfg.LogLevel, verbose || cfg.Verbose)

	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading model: %w", err)
	}

	network, err := pilang.Parse(string(src))
	if err != nil {
		return fmt.Errorf("parsing model: %w", err)
	}
	resolved, err := pilang.Resolve(network)
	if err != nil {
		return fmt.Errorf("resolving model: %w", err)
	}

	translation, err := piverif.Translate(resolved)
	if err != nil {
		return fmt.Errorf("translating model: %w", err)
	}
	log.Info().Int("scrs", len(translation.SCRs)).Int("strs", len(translation.STRs)).Msg("translated model")

	elaborationLimit := config.ElaborationLimitFor(cfg, len(translation.SCRs), len(translation.STRs))
	manager := piverif.NewNessionManager(translation.SCRs, translation.STRs, elaborationLimit, nil, false)
	initial := piverif.NewNession(translation.InitialStates)
	nessions := manager.Elaborate(context.Background(), initial)
	log.Info().Int("nessions", len(nessions)).Msg("elaboration complete")

	engine := piverif.NewQueryEngine(translation.SCRs, cfg.MaximumTerms)

	// Per spec.md section 5: across independent nessions the query
	// step is embarrassingly parallel, so fan out one task per
	// (nession, query) pair onto a shared pool.
	pool := parallel.New(0)
	defer pool.Shutdown()

	anyAttack := false
	for qi, query := range resolved.Queries {
		target := resolved.TermToMessage(query.Target, map[string]piverif.Message{})
		guard := piverif.EmptyGuard()

		candidates := nessions
		if query.When != nil {
			whenValue := resolved.TermToMessage(query.When.Value, map[string]piverif.Message{})
			candidates = nil
			for _, n := range nessions {
				if cell, ok := n.LastFrame().Cell(query.When.Cell); ok && cell.Condition.Value.Equal(whenValue) {
					candidates = append(candidates, n)
				}
			}
		}

		attack, found := engine.VerifyAny(cmd.Context(), pool, candidates, target, guard)
		if found {
			anyAttack = true
			fmt.Printf("query %d: attacker(%s) -- ATTACK FOUND\n", qi, target.String())
			if withSource {
				fmt.Print(attack.DescribeWithSources())
			} else {
				fmt.Print(attack.Describe())
			}
		} else {
			fmt.Printf("query %d: attacker(%s) -- no attack\n", qi, target.String())
		}
	}

	if anyAttack {
		os.Exit(1)
	}
	return nil
}
