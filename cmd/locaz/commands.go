package main

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Noofbiz/locaz/datasets"
	"github.com/Noofbiz/locaz/evaluate"
	"github.com/Noofbiz/locaz/idindex"
	"github.com/Noofbiz/locaz/simple"
	"github.com/Noofbiz/locaz/split"
	"github.com/Noofbiz/locaz/storage"
)

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func openStore(ctx context.Context, cfg Config) (storage.Store, error) {
	if cfg.Store.Kind == "sqlite" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "mkdir %s", cfg.OutputDir)
		}
	}
	store, err := storage.NewStore(cfg.Store.Kind, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, errors.Wrap(err, "init store")
	}
	return store, nil
}

func loadData(cfg Config, logger *zap.Logger) (*datasets.Store, error) {
	start := time.Now()
	data, err := datasets.LoadRaw(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded dataset",
		zap.String("dir", cfg.DataDir),
		zap.String("ids", humanize.Comma(int64(data.Reference.Len()))),
		zap.String("feature_rows", humanize.Comma(int64(data.Features.Rows()))),
		zap.Int("dim", data.Features.Cols()),
		zap.Int("subjects", data.Layout.NSubjects),
		zap.Int("frames", data.Layout.NFrames),
		zap.Duration("took", time.Since(start)))
	return data, nil
}

// partition returns the stored partition of the run, splitting and storing
// one if none exists or force is set.
func partition(ctx context.Context, cfg Config, data *datasets.Store, store storage.Store,
	logger *zap.Logger, force bool) (split.Partition, error) {
	if !force {
		p, ok, err := store.GetPartition(ctx, cfg.Run)
		if err != nil {
			return split.Partition{}, err
		}
		if ok {
			return p, nil
		}
	}

	opts := cfg.Split
	opts.Rand = newRand(cfg.Seed)
	if !opts.Strict {
		for name, labels := range map[string][]string{"test": opts.TestSubset, "validation": opts.ValidSubset} {
			if res := idindex.ResolveSubset(labels, data.Conditions); len(res.Unmatched) > 0 {
				logger.Warn("selection labels matched nothing",
					zap.String("partition", name), zap.Strings("labels", res.Unmatched))
			}
		}
	}
	p, err := split.Split(data.Reference, data.Conditions, opts)
	if err != nil {
		return split.Partition{}, err
	}
	if err := store.SavePartition(ctx, cfg.Run, p); err != nil {
		return split.Partition{}, errors.Wrap(err, "save partition")
	}
	train, valid, test := p.Sizes()
	logger.Info("partition stored",
		zap.String("run", cfg.Run),
		zap.String("train", humanize.Comma(int64(train))),
		zap.String("validation", humanize.Comma(int64(valid))),
		zap.String("test", humanize.Comma(int64(test))))
	return p, nil
}

func runSplit(ctx context.Context, cfg Config, logger *zap.Logger, force bool) error {
	data, err := loadData(cfg, logger)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.CloseIfSupported(store)

	_, err = partition(ctx, cfg, data, store, logger, force)
	return err
}

func runTrain(ctx context.Context, cfg Config, logger *zap.Logger) error {
	data, err := loadData(cfg, logger)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.CloseIfSupported(store)

	p, err := partition(ctx, cfg, data, store, logger, false)
	if err != nil {
		return err
	}

	rng := newRand(cfg.Seed)
	trainSrc, err := data.Sampler(p.Train, datasets.SamplerConfig{
		Name:      "train",
		BatchSize: cfg.Sampler.BatchSize,
		Shuffle:   cfg.Sampler.Shuffle,
		Rand:      rng,
	})
	if err != nil {
		return errors.Wrap(err, "train sampler")
	}
	var validSrc datasets.BatchSource
	if len(p.Validation) >= cfg.Sampler.BatchSize {
		validSrc, err = data.Sampler(p.Validation, datasets.SamplerConfig{
			Name:      "validation",
			BatchSize: cfg.Sampler.BatchSize,
			Rand:      rng,
		})
		if err != nil {
			return errors.Wrap(err, "validation sampler")
		}
	} else {
		logger.Warn("validation set smaller than one batch, skipping validation",
			zap.Int("validation", len(p.Validation)), zap.Int("batch_size", cfg.Sampler.BatchSize))
	}

	mcfg := cfg.Model
	mcfg.InputDim = data.Features.Cols()
	model, err := simple.NewModel(mcfg)
	if err != nil {
		return err
	}
	model.SetLogger(logger)

	start := time.Now()
	history, err := model.Train(ctx, trainSrc, validSrc)
	if err != nil {
		return err
	}
	logger.Info("training done",
		zap.Int("epochs", len(history)),
		zap.String("samples_per_epoch", humanize.Comma(int64(trainSrc.Len()*trainSrc.BatchSize()))),
		zap.Duration("took", time.Since(start)))

	if err := store.SaveHistory(ctx, cfg.Run, history); err != nil {
		return errors.Wrap(err, "save history")
	}
	if err := writeCSV(cfg.historyPath(), &history); err != nil {
		return err
	}
	if err := model.Save(cfg.modelPath()); err != nil {
		return err
	}
	if fi, err := os.Stat(cfg.modelPath()); err == nil {
		logger.Info("model saved", zap.String("path", cfg.modelPath()), zap.String("size", humanize.Bytes(uint64(fi.Size()))))
	}
	return nil
}

func runEvaluate(ctx context.Context, cfg Config, logger *zap.Logger) error {
	data, err := loadData(cfg, logger)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.CloseIfSupported(store)

	p, ok, err := store.GetPartition(ctx, cfg.Run)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Errorf("run %s has no stored partition; run split first", cfg.Run)
	}
	model, err := simple.Load(cfg.modelPath())
	if err != nil {
		return err
	}

	groups, err := idindex.GroupByPosition(data.Reference, p.Test)
	if err != nil {
		return err
	}
	res, err := evaluate.EvaluatePositions(ctx, model, groups, data.Features, data.Targets, evaluate.Config{
		Sampler: datasets.SamplerConfig{
			BatchSize: cfg.Evaluate.BatchSize,
			NFrames:   data.Layout.NFrames,
			NSubjects: data.Layout.NSubjects,
		},
		Workers:           cfg.Evaluate.Workers,
		TrialsPerPosition: cfg.Evaluate.TrialsPerPosition,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	summaries, err := evaluate.Summaries(res.Decomposition, res.Positions)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		logger.Info("position",
			zap.Int("pos_id", s.Position),
			zap.Int("trials", s.Trials),
			zap.Float64("mean_error", s.MeanError),
			zap.Float64("mae", s.MAE),
			zap.Float64("rmse", s.RMSE))
	}
	if err := store.SaveSummaries(ctx, cfg.Run, summaries); err != nil {
		return errors.Wrap(err, "save summaries")
	}
	return writeCSV(cfg.summaryPath(), &summaries)
}

func runInspect(cfg Config, logger *zap.Logger, files []string) error {
	for _, f := range files {
		meta, err := idindex.ParseFilename(f)
		if err != nil {
			logger.Warn("unrecognized file name", zap.String("file", f), zap.Error(err))
			continue
		}
		logger.Info("file",
			zap.String("file", f),
			zap.String("dataset", meta.Dataset),
			zap.String("method", meta.Method),
			zap.String("setup", meta.Setup),
			zap.String("position", meta.Position))
	}

	data, err := loadData(cfg, logger)
	if err != nil {
		return err
	}
	blocks := data.Reference.Blocks(data.Layout)
	positions := make(map[int]struct{})
	for _, b := range blocks {
		positions[b.PosID] = struct{}{}
	}
	for _, c := range data.Conditions {
		logger.Info("condition", zap.Int("cond_id", c.CondID), zap.String("sfs_method", c.SFSMethod))
	}

	bytes := uint64(data.Features.Rows()*data.Features.Cols()+data.Targets.Rows()*data.Targets.Cols()) * 4
	logger.Info("dataset",
		zap.Int("blocks", len(blocks)),
		zap.Int("positions", len(positions)),
		zap.Int("conditions", len(data.Conditions)),
		zap.String("table_memory", humanize.Bytes(bytes)))

	if n := datasets.CheckAzimuthRange(data.Targets, data.Layout.NAngles); n > 0 {
		logger.Warn("targets outside the azimuth range",
			zap.Int("count", n), zap.Int("n_angles", data.Layout.NAngles))
	}
	return nil
}

// writeCSV marshals rows (a pointer to a slice of csv-tagged structs) to path.
func writeCSV(path string, rows interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "mkdir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := gocsv.MarshalFile(rows, f); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}
