// locaz splits a localization dataset, trains the reference regressor and
// decomposes its circular error per listening position.
//
//	locaz --config exp.yaml split
//	locaz --config exp.yaml train
//	locaz --config exp.yaml evaluate
//	locaz --config exp.yaml inspect [FILE ...]
package main

import (
	"context"
	"os"
	"os/signal"

	arg "github.com/alexflint/go-arg"
	"go.uber.org/zap"

	"github.com/Noofbiz/locaz/logging"
)

type splitCmd struct {
	Force bool `arg:"--force" help:"overwrite an existing partition for the run"`
}

type trainCmd struct {
	Epochs int `arg:"--epochs" help:"override model.epochs"`
}

type evaluateCmd struct {
	Workers int `arg:"--workers" help:"override evaluate.workers"`
}

type inspectCmd struct {
	Files []string `arg:"positional" help:"raw data file names to parse"`
}

type args struct {
	Config   string       `arg:"-c,--config" help:"experiment YAML file"`
	DataDir  string       `arg:"--data" help:"override data_dir"`
	Run      string       `arg:"--run" help:"override run"`
	LogLevel string       `arg:"--log-level" help:"override log.level"`
	Split    *splitCmd    `arg:"subcommand:split" help:"partition the dataset and store the partition"`
	Train    *trainCmd    `arg:"subcommand:train" help:"train the regressor on the stored partition"`
	Evaluate *evaluateCmd `arg:"subcommand:evaluate" help:"decompose the test error per position"`
	Inspect  *inspectCmd  `arg:"subcommand:inspect" help:"summarize the dataset tables"`
}

func (args) Description() string {
	return "locaz: azimuth localization dataset tooling"
}

func main() {
	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	cfg, err := LoadConfig(a.Config)
	if err != nil {
		p.Fail(err.Error())
	}
	if a.DataDir != "" {
		cfg.DataDir = a.DataDir
	}
	if a.Run != "" {
		cfg.Run = a.Run
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		p.Fail(err.Error())
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case a.Split != nil:
		err = runSplit(ctx, cfg, logger, a.Split.Force)
	case a.Train != nil:
		if a.Train.Epochs > 0 {
			cfg.Model.Epochs = a.Train.Epochs
		}
		err = runTrain(ctx, cfg, logger)
	case a.Evaluate != nil:
		if a.Evaluate.Workers > 0 {
			cfg.Evaluate.Workers = a.Evaluate.Workers
		}
		err = runEvaluate(ctx, cfg, logger)
	case a.Inspect != nil:
		err = runInspect(cfg, logger, a.Inspect.Files)
	}
	if err != nil {
		logger.Error("command failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
