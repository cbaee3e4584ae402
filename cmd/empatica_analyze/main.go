package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/lucasjlepore/empatica-analyzer/config"
	"github.com/lucasjlepore/empatica-analyzer/pipeline"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to the study YAML file")
		envFile    = flag.String("env", ".env", "Optional dotenv file with store credentials")
		outDir     = flag.String("out", "", "Output directory override")
		reprocess  = flag.Bool("reprocess", false, "Recompute peaks and overwrite cached entries")
		overwrite  = flag.Bool("overwrite", false, "Allow writing into non-empty output directories")
		verbose    = flag.Bool("verbose", false, "Log debug messages")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --config study.yaml [--env .env] [--out outdir] [--reprocess]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*configPath) == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "empatica_analyze failed: %v\n", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	cfg.Cache.Reprocess = cfg.Cache.Reprocess || *reprocess
	cfg.Output.Overwrite = cfg.Output.Overwrite || *overwrite

	env, err := config.LoadEnv(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "empatica_analyze failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := pipeline.Run(ctx, pipeline.Options{Config: cfg, Env: env, Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "empatica_analyze failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("empatica_analyze complete\n")
	fmt.Printf("Run id:              %s\n", result.RunID)
	fmt.Printf("Output dir:          %s\n", result.OutputDir)
	fmt.Printf("recordings:          %d\n", result.Recordings)
	fmt.Printf("summary.json:        %s\n", result.SummaryPath)
	fmt.Printf("tables.tex:          %s\n", result.TablesPath)
	for _, p := range result.WindowedPaths {
		fmt.Printf("windowed samples:    %s\n", p)
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning:             %s\n", w)
	}
}
