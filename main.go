package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"ImageToText/logic"
	"ImageToText/models"
	"ImageToText/workers"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type processOptions struct {
	OutputType      string
	Description     string
	OutputStructure string
	Plain           bool
}

type fileOutput struct {
	File   string                   `json:"file"`
	Result *models.ExtractionResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

func Db(ctx context.Context, pgUrl string) (*sql.DB, error) {
	if pgUrl == "" {
		return nil, errors.New("PG_URL is not set")
	}

	db, err := sql.Open("postgres", pgUrl)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

func newLogger(verbose bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

type cliOptions struct {
	process     processOptions
	concurrency int
	batch       bool
	enqueue     bool
	limit       int
}

var errUsage = errors.New("no image given")

func main() {
	var cli cliOptions
	flag.StringVar(&cli.process.OutputType, "type", logic.DefaultOutputType, "output type requested from the service")
	flag.StringVar(&cli.process.Description, "description", "", "free text describing the image")
	flag.StringVar(&cli.process.OutputStructure, "structure", "", "JSON template of the expected output")
	flag.BoolVar(&cli.process.Plain, "plain", false, "print plain text instead of JSON")
	flag.IntVar(&cli.concurrency, "concurrency", 2, "files processed at the same time")
	flag.BoolVar(&cli.batch, "batch", false, "process pending jobs from the database")
	flag.BoolVar(&cli.enqueue, "enqueue", false, "queue the given files as database jobs")
	flag.IntVar(&cli.limit, "limit", 100, "max pending jobs read in batch mode")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	logger := newLogger(*verbose)

	err := run(cli, flag.Args(), logger, os.Stdout)
	if err != nil && !errors.Is(err, errUsage) {
		logger.Error("img2text failed", zap.Error(err))
	}
	logger.Sync()

	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, "usage: img2text [flags] <image>...")
		flag.PrintDefaults()
		os.Exit(2)
	case err != nil:
		os.Exit(1)
	}
}

// run does the whole CLI job and returns instead of exiting, so every
// deferred cleanup runs before main decides on the exit code.
func run(cli cliOptions, args []string, logger *zap.Logger, stdout io.Writer) error {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := logic.NewClient(cfg.APIKey,
		logic.WithBaseURL(cfg.BaseURL),
		logic.WithTimeout(cfg.Timeout),
		logic.WithSettleDelay(cfg.SettleDelay),
		logic.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	if !cli.batch && !cli.enqueue {
		if len(args) == 0 {
			return errUsage
		}
		return runFiles(ctx, client, args, cli.process, cli.concurrency, stdout)
	}

	db, err := Db(ctx, cfg.PgURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	store := logic.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("prepare database: %w", err)
	}

	if cli.enqueue {
		return enqueueFiles(ctx, store, args, cli.process, logger)
	}
	return runBatch(ctx, client, store, cli.limit, cfg.Workers, logger)
}

// runFiles processes files with bounded concurrency and prints the outputs in
// argument order. It returns the first error met, after every file has run.
func runFiles(ctx context.Context, processor workers.Processor, files []string, opts processOptions, concurrency int, out io.Writer) error {
	outputs := make([]fileOutput, len(files))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			result, err := processor.Process(ctx, file, opts.OutputType, opts.Description, opts.OutputStructure)
			outputs[i] = fileOutput{File: file, Result: result}
			if err != nil {
				outputs[i].Error = err.Error()
			}
			return err
		})
	}
	err := g.Wait()

	if opts.Plain {
		for _, o := range outputs {
			if len(files) > 1 {
				fmt.Fprintf(out, "== %s ==\n", o.File)
			}
			if o.Error != "" {
				fmt.Fprintf(out, "error: %s\n", o.Error)
				continue
			}
			fmt.Fprintln(out, logic.PlainText(o.Result, opts.OutputType))
		}
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	for _, o := range outputs {
		if encErr := enc.Encode(o); encErr != nil && err == nil {
			err = encErr
		}
	}
	return err
}

func enqueueFiles(ctx context.Context, store *logic.Store, files []string, opts processOptions, logger *zap.Logger) error {
	for _, file := range files {
		job := models.ImageJob{
			ImagePath:       file,
			OutputType:      opts.OutputType,
			Description:     opts.Description,
			OutputStructure: opts.OutputStructure,
		}
		if err := store.CreateJob(ctx, &job); err != nil {
			return err
		}
		logger.Info("job queued", zap.Int("job", job.Id), zap.String("image", file))
	}
	return nil
}

func runBatch(ctx context.Context, processor workers.Processor, store *logic.Store, limit, numWorkers int, logger *zap.Logger) error {
	pending, err := store.PendingJobs(ctx, limit)
	if err != nil {
		return err
	}
	logger.Info("pending jobs loaded", zap.Int("count", len(pending)))

	jobs := make(chan models.ImageJob)

	var wg sync.WaitGroup
	for i := 1; i <= numWorkers; i++ {
		wg.Add(1)
		go workers.ProcessImages(ctx, i, processor, store, jobs, &wg, logger)
	}

	for _, job := range pending {
		select {
		case jobs <- job:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	close(jobs)
	wg.Wait()

	return ctx.Err()
}
