package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/stellarlinkco/eval-studio/api"
	"github.com/stellarlinkco/eval-studio/internal/config"
	"github.com/stellarlinkco/eval-studio/internal/llm"
	"github.com/stellarlinkco/eval-studio/internal/run"
	"github.com/stellarlinkco/eval-studio/internal/store"
)

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr

	loadConfig                = config.Load
	openStore                 = store.Open
	defaultProviderFromConfig = llm.DefaultProviderFromConfig
	newServer                 = api.NewServer
	runServer                 = (*api.Server).Run
)

func main() {
	osExit(runMain(os.Args[1:]))
}

func runMain(args []string) int {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(stderrWriter)

	var addr string
	var configPath string
	var queueSize int
	var workers int
	fs.StringVar(&addr, "addr", ":8080", "listen address")
	fs.StringVar(&configPath, "config", config.DefaultPath, "path to config file")
	fs.IntVar(&queueSize, "queue", 16, "max queued runs")
	fs.IntVar(&workers, "workers", 1, "background run executors")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}
	defer func() { _ = st.Close() }()

	provider, err := defaultProviderFromConfig(cfg)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	orch := run.NewOrchestrator(provider, st, run.Config{
		Concurrency:    cfg.Evaluation.Concurrency,
		Timeout:        cfg.Evaluation.Timeout,
		JudgeThreshold: cfg.Evaluation.JudgeThreshold,
		MaxTokens:      cfg.Evaluation.MaxTokens,
	})
	worker := run.NewWorker(orch, queueSize, workers)
	defer worker.Stop()

	srv, err := newServer(cfg, st, orch, worker)
	if err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}
	if err := runServer(srv, addr); err != nil {
		fmt.Fprintln(stderrWriter, err)
		return 1
	}

	return 0
}
