package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/outreach-console/cmd/mainconfig"
	"github.com/wolfman30/outreach-console/internal/app/bootstrap"
	appconfig "github.com/wolfman30/outreach-console/internal/config"
	"github.com/wolfman30/outreach-console/internal/generation"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	query := flag.String("q", "Summarize our best performing customer segment in two sentences.", "instruction to send")
	memories := flag.Bool("memories", true, "let the backend include stored memories")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("aws config: %v", err)
	}
	gen, err := bootstrap.BuildGenerator(ctx, cfg, &awsCfg, logger)
	if err != nil {
		log.Fatalf("generator: %v", err)
	}

	fmt.Printf("Backend: %s\n", cfg.GenerationBackend)
	if err := run(ctx, gen, generation.Request{
		Instruction:     *query,
		ContextSize:     cfg.GenerationContextSize,
		IncludeMemories: *memories,
		UserID:          cfg.MemoryUserID,
	}, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, gen generation.Generator, req generation.Request, out io.Writer) error {
	start := time.Now()
	result, err := gen.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	fmt.Fprintf(out, "Latency: %s\n", time.Since(start).Round(time.Millisecond))
	if len(result.Sources) > 0 {
		fmt.Fprintf(out, "Sources: %s\n", strings.Join(result.Sources, ", "))
	}
	fmt.Fprintf(out, "\n%s\n", strings.TrimSpace(result.Answer))
	return nil
}
