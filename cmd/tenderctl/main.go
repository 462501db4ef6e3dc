package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ZanzyTHEbar/tender-guard/internal/analysis"
	"github.com/ZanzyTHEbar/tender-guard/internal/config"
	"github.com/ZanzyTHEbar/tender-guard/internal/database"
	apperrors "github.com/ZanzyTHEbar/tender-guard/internal/errors"
	"github.com/ZanzyTHEbar/tender-guard/internal/monitoring"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// pipeline is the analysis stack opened for one command
type pipeline struct {
	db      *database.DB
	service *analysis.Service
}

func (p *pipeline) Close() {
	apperrors.SafeClose(p.db, "database")
}

func openPipeline(c *cli.Context) (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	dataDir := cfg.DataDir
	if c.IsSet("data-dir") {
		dataDir = c.String("data-dir")
	}
	modelsDir := cfg.ModelsDir
	if c.IsSet("models-dir") {
		modelsDir = c.String("models-dir")
	} else if c.IsSet("data-dir") {
		modelsDir = filepath.Join(dataDir, "models")
	}

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", c.String("log-level"))
	}
	logger := monitoring.NewLoggerTo(c.App.ErrWriter, logLevel)
	slog.SetDefault(logger.Logger)

	db, err := database.NewDB(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	repo := database.NewRepository(db)

	store := analysis.NewFileArtifactStore(modelsDir, 0)
	trainer := analysis.NewTrainer(repo, store, analysis.TrainerOptions{Forest: analysis.DefaultForestConfig()})

	var linguistic analysis.LinguisticAnalyzer
	if cfg.EnableLinguistic || c.Bool("linguistic") {
		linguistic = analysis.NewProseAnalyzer()
	}

	return &pipeline{
		db:      db,
		service: analysis.NewService(repo, trainer, store, analysis.NewQualityScorer(linguistic)),
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "tenderctl",
		Usage: "operate the bid anomaly model",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "directory holding the SQLite database",
				EnvVars: []string{"DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "models-dir",
				Usage:   "directory holding model artifacts (default: <data-dir>/models)",
				EnvVars: []string{"MODELS_DIR"},
			},
			&cli.BoolFlag{
				Name:  "linguistic",
				Usage: "enable the linguistic proposal features",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warn",
				Usage: "log level written to stderr",
			},
		},
		Commands: []*cli.Command{
			trainCommand(),
			statusCommand(),
			scoreCommand(),
			analyzeCommand(),
		},
	}
}

func trainCommand() *cli.Command {
	return &cli.Command{
		Name:  "train",
		Usage: "fit a new model on stored bids",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "retrain", Usage: "mark the run as a retrain of the current model"},
		},
		Action: func(c *cli.Context) error {
			p, err := openPipeline(c)
			if err != nil {
				return err
			}
			defer p.Close()

			report := p.service.Trainer().Train(c.Context, c.Bool("retrain"))
			if err := printJSON(c.App.Writer, report); err != nil {
				return err
			}
			if !report.Success {
				return fmt.Errorf("training failed: %s", report.Error)
			}
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "describe the published model, creating a default one if none exists",
		Action: func(c *cli.Context) error {
			p, err := openPipeline(c)
			if err != nil {
				return err
			}
			defer p.Close()

			if _, err := p.service.LoadOrCreate(c.Context); err != nil {
				slog.Warn("No usable model", "error", err)
			}
			return printJSON(c.App.Writer, p.service.Status())
		},
	}
}

func scoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "score",
		Usage:     "score proposal text; use - to read stdin",
		ArgsUsage: "<text|->",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("score needs proposal text or -")
			}

			text := strings.Join(c.Args().Slice(), " ")
			if text == "-" {
				raw, err := io.ReadAll(c.App.Reader)
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = string(raw)
			}

			p, err := openPipeline(c)
			if err != nil {
				return err
			}
			defer p.Close()

			return printJSON(c.App.Writer, p.service.ScoreProposal(text))
		},
	}
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "run anomaly detection on a stored bid",
		ArgsUsage: "<bid-id>",
		Action: func(c *cli.Context) error {
			bidID, err := strconv.ParseInt(c.Args().First(), 10, 64)
			if err != nil || bidID <= 0 {
				return errors.New("analyze needs a positive bid id")
			}

			p, err := openPipeline(c)
			if err != nil {
				return err
			}
			defer p.Close()

			if _, err := p.service.LoadOrCreate(c.Context); err != nil {
				slog.Warn("No usable model", "error", err)
			}

			result := p.service.AnalyzeBid(c.Context, bidID)
			if err := printJSON(c.App.Writer, result); err != nil {
				return err
			}
			if result.ErrorCode == analysis.CodeNotFound {
				return fmt.Errorf("bid %d not found", bidID)
			}
			return nil
		},
	}
}
