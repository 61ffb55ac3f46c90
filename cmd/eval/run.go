package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/eval-studio/internal/config"
	"github.com/stellarlinkco/eval-studio/internal/llm"
	"github.com/stellarlinkco/eval-studio/internal/run"
	"github.com/stellarlinkco/eval-studio/internal/store"
	"github.com/stellarlinkco/eval-studio/internal/suite"
)

var errCasesFailed = errors.New("eval-studio: cases failed")

type runOptions struct {
	casesPath    string
	runName      string
	systemPrompt string
	threshold    float64
	output       string
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a test suite against the configured model",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}
			st.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.casesPath, "cases", "", "path to test cases JSON file")
	cmd.Flags().StringVar(&opts.runName, "name", "", "run name")
	cmd.Flags().StringVar(&opts.systemPrompt, "system", "", "optional system prompt")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", -1, "llm_judge pass threshold in (0, 1] (overrides config)")
	cmd.Flags().StringVar(&opts.output, "output", "", "output format: table|json")
	_ = cmd.MarkFlagRequired("cases")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runSuite(cmd *cobra.Command, st *cliState, opts *runOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("run: missing config")
	}
	if opts == nil {
		return fmt.Errorf("run: nil options")
	}

	format, err := resolveOutputFormat(opts.output)
	if err != nil {
		return err
	}

	threshold := st.cfg.Evaluation.JudgeThreshold
	if opts.threshold >= 0 {
		// zero is rejected rather than silently remapped to the default cutoff
		if opts.threshold == 0 || opts.threshold > 1 {
			return fmt.Errorf("run: threshold must be greater than 0 and at most 1 (got %v)", opts.threshold)
		}
		threshold = opts.threshold
	}

	cases, err := suite.LoadFromFile(opts.casesPath)
	if err != nil {
		return err
	}

	stor, err := store.Open(st.cfg)
	if err != nil {
		return err
	}
	defer func() { _ = stor.Close() }()

	provider, err := llm.DefaultProviderFromConfig(st.cfg)
	if err != nil {
		return err
	}

	orch := run.NewOrchestrator(provider, stor, run.Config{
		Concurrency:    st.cfg.Evaluation.Concurrency,
		Timeout:        st.cfg.Evaluation.Timeout,
		JudgeThreshold: threshold,
		MaxTokens:      st.cfg.Evaluation.MaxTokens,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	name := strings.TrimSpace(opts.runName)
	fmt.Fprintf(cmd.OutOrStdout(), "Starting run %q (%d test cases)\n", name, len(cases))

	r, err := orch.Execute(ctx, cases, name, opts.systemPrompt)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), FormatRun(r, format))

	if r.Summary != nil && r.Summary.PassCount < len(r.Results) {
		return errCasesFailed
	}
	return nil
}
