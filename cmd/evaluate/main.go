package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/recanthology/engine/internal/config"
	"github.com/recanthology/engine/internal/database"
	"github.com/recanthology/engine/internal/services"
	"github.com/recanthology/engine/pkg/models"
)

// evaluate replays the recommendation pipeline against a held-out rating
// split and prints top-K ranking metrics for both catalogs.
func main() {
	var (
		k     = flag.Int("k", 10, "ranking cutoff for precision, recall and NDCG")
		split = flag.Float64("split", 0.8, "train share of the rating set, in (0,1)")
		seed  = flag.Int64("seed", 42, "shuffle seed for the train/test split")
		mode  = flag.String("mode", services.ModeHybrid, "ranking mode: hybrid, content or popularity")
	)
	flag.Parse()

	if *k <= 0 {
		fmt.Fprintf(os.Stderr, "invalid -k %d: must be positive\n", *k)
		os.Exit(2)
	}
	if *split <= 0 || *split >= 1 {
		fmt.Fprintf(os.Stderr, "invalid -split %v: must be in (0,1)\n", *split)
		os.Exit(2)
	}
	switch *mode {
	case services.ModeHybrid, services.ModeContent, services.ModePopularity:
	default:
		fmt.Fprintf(os.Stderr, "invalid -mode %q: must be hybrid, content or popularity\n", *mode)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	db, err := database.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	svc, err := services.New(cfg, logger, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize services: %v\n", err)
		os.Exit(1)
	}

	opts := services.EvaluationOptions{
		K:          *k,
		SplitRatio: *split,
		Seed:       *seed,
		Mode:       *mode,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	fmt.Printf("mode=%s k=%d split=%.2f seed=%d\n\n", *mode, *k, *split, *seed)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "kind\tusers\tprecision@%d\trecall@%d\tndcg@%d\n", *k, *k, *k)
	for _, kind := range []models.ItemKind{models.KindBook, models.KindMedia} {
		metrics, err := svc.Evaluation.Evaluate(ctx, kind, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "evaluation failed for %s: %v\n", kind, err)
			os.Exit(1)
		}
		fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.4f\n",
			metrics.Kind, metrics.Users, metrics.PrecisionAtK, metrics.RecallAtK, metrics.NDCGAtK)
	}
	w.Flush()
}
