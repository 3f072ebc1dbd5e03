package crossval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"crimetrend/ml"
)

// Factory 构造一个未训练的模型实例，每个折任务各自调用一次
type Factory func() ml.RegressionModel

// Options 交叉验证运行选项
type Options struct {
	Parallel   bool               `yaml:"parallel"`
	MaxWorkers int                `yaml:"max_workers"`
	Progress   func(done, total int) `yaml:"-"`
}

// FoldScore 单个折任务的成绩
type FoldScore struct {
	Repeat   int     `json:"repeat"`
	Fold     int     `json:"fold"`
	RMSE     float64 `json:"rmse"`
	RSquared float64 `json:"r_squared"`
}

// Result 一个模型的交叉验证结果
type Result struct {
	ModelName    string        `json:"model_name"`
	Scores       []FoldScore   `json:"scores"`
	MeanRMSE     float64       `json:"mean_rmse"`
	MeanRSquared float64       `json:"mean_r_squared"`
	Rows         int           `json:"rows"`
	Rank         int           `json:"rank"`
	Duration     time.Duration `json:"duration"`
	Timestamp    time.Time     `json:"timestamp"`
}

type foldTask struct {
	repeat int
	fold   int
}

// Run 对一个模型族跑完整的重复k折交叉验证。
// 训练失败直接返回错误终止整个运行，不做重试。
func Run(ctx context.Context, name string, factory Factory, features [][]float64, targets []float64, assign *FoldAssignments, opts Options) (*Result, error) {
	if len(features) != len(targets) {
		return nil, fmt.Errorf("features and targets size mismatch")
	}
	if assign.Rows != len(targets) {
		return nil, fmt.Errorf("fold assignments built for %d rows, got %d", assign.Rows, len(targets))
	}

	start := time.Now()
	tasks := make([]foldTask, 0, assign.NumTasks())
	for r := 0; r < assign.Repeats; r++ {
		for f := 0; f < assign.Folds; f++ {
			tasks = append(tasks, foldTask{repeat: r, fold: f})
		}
	}

	var scores []FoldScore
	var err error
	if opts.Parallel {
		scores, err = runParallel(ctx, factory, features, targets, assign, tasks, opts)
	} else {
		scores, err = runSequential(ctx, factory, features, targets, assign, tasks, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("cross-validation of %s failed: %w", name, err)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Repeat != scores[j].Repeat {
			return scores[i].Repeat < scores[j].Repeat
		}
		return scores[i].Fold < scores[j].Fold
	})

	result := &Result{
		ModelName: name,
		Scores:    scores,
		Rows:      len(targets),
		Duration:  time.Since(start),
		Timestamp: start,
	}
	for _, s := range scores {
		result.MeanRMSE += s.RMSE
		result.MeanRSquared += s.RSquared
	}
	result.MeanRMSE /= float64(len(scores))
	result.MeanRSquared /= float64(len(scores))

	log.Printf("Cross-validation completed: model=%s rmse=%.4f r2=%.4f folds=%d duration=%v",
		name, result.MeanRMSE, result.MeanRSquared, len(scores), result.Duration)

	return result, nil
}

func runSequential(ctx context.Context, factory Factory, features [][]float64, targets []float64, assign *FoldAssignments, tasks []foldTask, opts Options) ([]FoldScore, error) {
	scores := make([]FoldScore, 0, len(tasks))
	for i, task := range tasks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		score, err := evaluateFold(factory, features, targets, assign, task)
		if err != nil {
			return nil, err
		}
		scores = append(scores, score)
		if opts.Progress != nil {
			opts.Progress(i+1, len(tasks))
		}
	}
	return scores, nil
}

func runParallel(ctx context.Context, factory Factory, features [][]float64, targets []float64, assign *FoldAssignments, tasks []foldTask, opts Options) ([]FoldScore, error) {
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	taskChan := make(chan foldTask, len(tasks))
	for _, task := range tasks {
		taskChan <- task
	}
	close(taskChan)

	var (
		mu       sync.Mutex
		scores   []FoldScore
		firstErr error
		done     int64
		wg       sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				select {
				case <-ctx.Done():
					mu.Lock()
					if firstErr == nil {
						firstErr = ctx.Err()
					}
					mu.Unlock()
					return
				default:
				}

				mu.Lock()
				failed := firstErr != nil
				mu.Unlock()
				if failed {
					return
				}

				score, err := evaluateFold(factory, features, targets, assign, task)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				scores = append(scores, score)
				mu.Unlock()

				if opts.Progress != nil {
					opts.Progress(int(atomic.AddInt64(&done, 1)), len(tasks))
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return scores, nil
}

// evaluateFold 训练一个折并在留出折上算指标
func evaluateFold(factory Factory, features [][]float64, targets []float64, assign *FoldAssignments, task foldTask) (FoldScore, error) {
	trainIdx, testIdx := assign.Split(task.repeat, task.fold)

	trainX := make([][]float64, len(trainIdx))
	trainY := make([]float64, len(trainIdx))
	for i, idx := range trainIdx {
		trainX[i] = features[idx]
		trainY[i] = targets[idx]
	}

	model := factory()
	if err := model.Train(trainX, trainY); err != nil {
		return FoldScore{}, fmt.Errorf("repeat %d fold %d: %w", task.repeat, task.fold, err)
	}

	actual := make([]float64, len(testIdx))
	predicted := make([]float64, len(testIdx))
	for i, idx := range testIdx {
		pred, err := model.Predict(features[idx])
		if err != nil {
			return FoldScore{}, fmt.Errorf("repeat %d fold %d predict: %w", task.repeat, task.fold, err)
		}
		actual[i] = targets[idx]
		predicted[i] = pred
	}

	return FoldScore{
		Repeat:   task.repeat,
		Fold:     task.fold,
		RMSE:     RMSE(actual, predicted),
		RSquared: RSquared(actual, predicted),
	}, nil
}
