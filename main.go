package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"crimetrend/crossval"
	"crimetrend/dataset"
	"crimetrend/db"
	chttp "crimetrend/http"
	"crimetrend/ml"
	"crimetrend/monitoring"
	"crimetrend/pipeline"
	"crimetrend/report"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Dataset struct {
		Path  string `yaml:"path"`
		Watch bool   `yaml:"watch"`
	} `yaml:"dataset"`
	Categories []string `yaml:"categories"`
	Database   struct {
		Path       string `yaml:"path"`
		CountsPath string `yaml:"counts_path"`
	} `yaml:"database"`
	CrossVal struct {
		Folds      int   `yaml:"folds"`
		Repeats    int   `yaml:"repeats"`
		Seed       int64 `yaml:"seed"`
		Parallel   bool  `yaml:"parallel"`
		MaxWorkers int   `yaml:"max_workers"`
	} `yaml:"crossval"`
	Output struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`
	Http struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// 1. Load config
	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logger
	logger := newLogger(config)
	defer logger.Sync()
	sugar := logger.Sugar()

	// 3. Initialize database
	if err := db.InitDB(config.Database.Path); err != nil {
		sugar.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.CloseDB()
	sugar.Infow("database initialized", "path", config.Database.Path)

	// 4. Run the analysis pipeline
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := monitoring.NewProgressMonitor()
	if err := monitor.Start(); err != nil {
		sugar.Fatalf("Failed to start progress monitor: %v", err)
	}
	defer monitor.Stop()

	state, err := chttp.NewAnalysisState(1024)
	if err != nil {
		sugar.Fatalf("Failed to create analysis state: %v", err)
	}
	state.SetMonitor(monitor)
	state.SetPlotsDir(config.Output.Dir)

	if err := runAnalysis(ctx, config, sugar, monitor, state); err != nil {
		sugar.Fatalf("Analysis failed: %v", err)
	}

	// 5. Optional dataset watcher re-runs the analysis on file changes
	if config.Dataset.Watch {
		watcher := dataset.NewWatcher(config.Dataset.Path, sugar, func(incidents []dataset.Incident) {
			monitor.SendDatasetReload(monitoring.DatasetReloadMessage{
				Path:      config.Dataset.Path,
				Incidents: len(incidents),
				Timestamp: time.Now(),
			})
			if err := runAnalysis(ctx, config, sugar, monitor, state); err != nil {
				sugar.Errorw("re-analysis after reload failed", "error", err)
			}
		})
		watcher.SetDriftHandler(func(keep, live []string) {
			monitor.SendCategoryDrift(monitoring.CategoryDriftMessage{
				Expected: keep,
				Observed: live,
			})
		})
		go func() {
			if err := watcher.Run(ctx); err != nil {
				sugar.Errorw("dataset watcher stopped", "error", err)
			}
		}()
	}

	// 6. Serve results over HTTP if enabled, otherwise exit after the run
	if !config.Http.Enabled {
		sugar.Info("analysis complete")
		return
	}

	serverConfig := chttp.DefaultServerConfig()
	if config.Http.Port > 0 {
		serverConfig.Port = config.Http.Port
	}
	server := chttp.NewServer(serverConfig, state)
	go func() {
		if err := server.Start(); err != nil {
			sugar.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 7. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sugar.Info("shutting down")

	cancel()
	if err := server.Stop(); err != nil {
		sugar.Errorw("server forced to shutdown", "error", err)
	}

	sugar.Info("exiting")
}

// runAnalysis 执行完整流程：加载、过滤、聚合、交叉验证对比、全量重训、出图
func runAnalysis(ctx context.Context, config *Config, sugar *zap.SugaredLogger, monitor *monitoring.ProgressMonitor, state *chttp.AnalysisState) error {
	started := time.Now()

	// 加载原始事件
	incidents, err := dataset.LoadIncidents(config.Dataset.Path)
	if err != nil {
		return fmt.Errorf("failed to load incidents: %w", err)
	}
	sugar.Infow("incidents loaded", "path", config.Dataset.Path, "rows", len(incidents))

	// 过滤：保留类别名单 + 非空辖区 + 合法月份
	categories := config.Categories
	if len(categories) == 0 {
		categories = dataset.KeepCategories()
	}
	filter := pipeline.NewIncidentFilter(categories)
	kept, issues := filter.Filter(incidents)
	stats := filter.GetStats()
	sugar.Infow("incidents filtered",
		"kept", stats.Passed,
		"rejected", stats.Rejected,
		"issues", len(issues))
	if len(kept) == 0 {
		return fmt.Errorf("no incidents left after filtering")
	}

	// 按年/月/辖区/类别聚合为月度计数
	rows := pipeline.Aggregate(kept)
	sugar.Infow("monthly counts aggregated", "groups", len(rows))

	if config.Database.CountsPath != "" {
		store, err := pipeline.NewCountStore(pipeline.StorageConfig{
			DBPath:    config.Database.CountsPath,
			EnableWAL: true,
		})
		if err != nil {
			return fmt.Errorf("failed to open count store: %w", err)
		}
		defer store.Close()
		if err := store.SaveCounts(ctx, rows); err != nil {
			return fmt.Errorf("failed to persist counts: %w", err)
		}
	}

	// 编码为模型输入
	encoder, features, targets, err := ml.BuildTrainingSet(rows)
	if err != nil {
		return fmt.Errorf("failed to build training set: %w", err)
	}
	state.SetData(rows, encoder)

	// 五个模型族共用同一份折划分
	foldConfig := crossval.DefaultFoldConfig()
	if config.CrossVal.Folds > 0 {
		foldConfig.Folds = config.CrossVal.Folds
	}
	if config.CrossVal.Repeats > 0 {
		foldConfig.Repeats = config.CrossVal.Repeats
	}
	if config.CrossVal.Seed != 0 {
		foldConfig.Seed = config.CrossVal.Seed
	}
	assign, err := foldConfig.Assign(len(rows))
	if err != nil {
		return fmt.Errorf("failed to assign folds: %w", err)
	}

	specs := modelSpecs(encoder)
	opts := crossval.Options{
		Parallel:   config.CrossVal.Parallel,
		MaxWorkers: config.CrossVal.MaxWorkers,
	}
	comparison := crossval.NewComparison(specs, features, targets, assign, opts)
	state.SetComparison(comparison)

	go reportProgress(ctx, comparison, monitor)

	results, err := comparison.Run(ctx)
	if err != nil {
		return fmt.Errorf("model comparison failed: %w", err)
	}

	for _, result := range results {
		sugar.Infow("model evaluated",
			"model", result.ModelName,
			"rank", result.Rank,
			"mean_rmse", result.MeanRMSE,
			"mean_r_squared", result.MeanRSquared)
		monitor.SendModelResult(monitoring.ModelResultMessage{
			Model:        result.ModelName,
			MeanRMSE:     result.MeanRMSE,
			MeanRSquared: result.MeanRSquared,
			Duration:     result.Duration,
		})
		if err := db.SaveResult(result, foldConfig.Folds, foldConfig.Repeats); err != nil {
			sugar.Errorw("failed to save result", "model", result.ModelName, "error", err)
		}
	}

	// 全量重训每个模型，出预测图和残差图
	if config.Output.Dir != "" {
		if err := os.MkdirAll(config.Output.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
		if err := renderReports(config.Output.Dir, specs, rows, features, targets, results, state, sugar); err != nil {
			return err
		}
	}

	best := results[0]
	monitor.SendRunComplete(monitoring.RunCompleteMessage{
		BestModel: best.ModelName,
		BestRMSE:  best.MeanRMSE,
		Models:    len(results),
		Rows:      len(rows),
		Duration:  time.Since(started),
	})
	sugar.Infow("analysis complete",
		"best_model", best.ModelName,
		"best_rmse", best.MeanRMSE,
		"duration", time.Since(started))
	return nil
}

// modelSpecs 按固定超参构造五个模型族
func modelSpecs(encoder *ml.Encoder) []crossval.ModelSpec {
	levels := encoder.Levels()
	return []crossval.ModelSpec{
		{Name: ml.ModelPoissonGLM, Factory: func() ml.RegressionModel {
			return ml.NewPoissonGLM(levels, ml.PoissonGLMOptions{Interaction: true})
		}},
		{Name: ml.ModelPoissonTree, Factory: func() ml.RegressionModel {
			return ml.NewPoissonTree(ml.DefaultPoissonTreeOptions())
		}},
		{Name: ml.ModelRandomForest, Factory: func() ml.RegressionModel {
			return ml.NewRandomForest(ml.DefaultRandomForestOptions())
		}},
		{Name: ml.ModelGradientBoosting, Factory: func() ml.RegressionModel {
			return ml.NewGradientBoosting(ml.DefaultGradientBoostingOptions())
		}},
		{Name: ml.ModelCubist, Factory: func() ml.RegressionModel {
			return ml.NewCubist(ml.DefaultCubistOptions())
		}},
	}
}

// renderReports 全量重训并渲染每个模型的预测图、残差图和RMSE对比图
func renderReports(outDir string, specs []crossval.ModelSpec, rows []pipeline.CountRow, features [][]float64, targets []float64, results []*crossval.Result, state *chttp.AnalysisState, sugar *zap.SugaredLogger) error {
	years := make([]int, len(rows))
	months := make([]int, len(rows))
	districts := make([]string, len(rows))
	categories := make([]string, len(rows))
	actual := make([]int, len(rows))
	for i, row := range rows {
		years[i] = row.Year
		months[i] = row.Month
		districts[i] = row.District
		categories[i] = row.Category
		actual[i] = row.Count
	}

	for _, spec := range specs {
		model := spec.Factory()
		if err := model.Train(features, targets); err != nil {
			return fmt.Errorf("full refit of %s failed: %w", spec.Name, err)
		}
		state.SetModel(spec.Name, model)

		predicted := make([]float64, len(features))
		for i, row := range features {
			p, err := model.Predict(row)
			if err != nil {
				return fmt.Errorf("prediction with %s failed: %w", spec.Name, err)
			}
			predicted[i] = p
		}

		if err := db.SavePredictions(spec.Name, years, months, districts, categories, predicted, actual); err != nil {
			sugar.Errorw("failed to save predictions", "model", spec.Name, "error", err)
		}

		var rmse, r2 float64
		for _, result := range results {
			if result.ModelName == spec.Name {
				rmse = result.MeanRMSE
				r2 = result.MeanRSquared
			}
		}

		scatterPath := filepath.Join(outDir, spec.Name+"_predicted_vs_actual.png")
		if err := report.RenderPredictedVsActual(scatterPath, rows, predicted, spec.Name, rmse, r2); err != nil {
			return fmt.Errorf("failed to render scatter for %s: %w", spec.Name, err)
		}
		residualPath := filepath.Join(outDir, spec.Name+"_residuals.png")
		if err := report.RenderResiduals(residualPath, rows, predicted, spec.Name); err != nil {
			return fmt.Errorf("failed to render residuals for %s: %w", spec.Name, err)
		}
		sugar.Infow("charts rendered", "model", spec.Name, "dir", outDir)
	}

	comparePath := filepath.Join(outDir, "rmse_comparison.png")
	if err := report.RenderRMSEComparison(comparePath, results); err != nil {
		return fmt.Errorf("failed to render comparison chart: %w", err)
	}
	return nil
}

// reportProgress 周期性把对比进度推到WebSocket
func reportProgress(ctx context.Context, comparison *crossval.Comparison, monitor *monitoring.ProgressMonitor) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !comparison.IsRunning() {
				return
			}
			monitor.SendProgress(monitoring.ProgressMessage{
				Percent: comparison.GetProgress(),
			})
		}
	}
}

func newLogger(config *Config) *zap.Logger {
	level := zapcore.InfoLevel
	if config.Log.Level != "" {
		if err := level.Set(config.Log.Level); err != nil {
			log.Printf("Invalid log level %q, using info", config.Log.Level)
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stdout),
			level,
		),
	}

	if config.Log.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   config.Log.File,
			MaxSize:    config.Log.MaxSizeMB,
			MaxBackups: config.Log.MaxBackups,
			MaxAge:     config.Log.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...))
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
