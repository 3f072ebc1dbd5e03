package crossval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
)

// ModelSpec 参与对比的一个模型族
type ModelSpec struct {
	Name    string
	Factory Factory
}

// Comparison 在同一份折划分上逐个评估多个模型族并排名
type Comparison struct {
	mu        sync.RWMutex
	specs     []ModelSpec
	features  [][]float64
	targets   []float64
	assign    *FoldAssignments
	opts      Options
	results   map[string]*Result
	started   bool
	completed bool
	progress  float64
}

// NewComparison 创建模型对比器
func NewComparison(specs []ModelSpec, features [][]float64, targets []float64, assign *FoldAssignments, opts Options) *Comparison {
	return &Comparison{
		specs:    specs,
		features: features,
		targets:  targets,
		assign:   assign,
		opts:     opts,
		results:  make(map[string]*Result),
	}
}

// Run 依次跑每个模型族的交叉验证，任何一个训练失败都终止整个对比。
// 返回按平均RMSE升序排名的结果。
func (c *Comparison) Run(ctx context.Context) ([]*Result, error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil, fmt.Errorf("comparison is already running")
	}
	c.started = true
	c.completed = false
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.completed = true
		c.mu.Unlock()
	}()

	log.Printf("Starting model comparison: models=%d rows=%d folds=%dx%d",
		len(c.specs), len(c.targets), c.assign.Folds, c.assign.Repeats)

	total := len(c.specs) * c.assign.NumTasks()
	for i, spec := range c.specs {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("model comparison cancelled: %w", ctx.Err())
		default:
		}

		base := i * c.assign.NumTasks()
		opts := c.opts
		outer := c.opts.Progress
		opts.Progress = func(done, _ int) {
			c.mu.Lock()
			c.progress = float64(base+done) / float64(total) * 100
			c.mu.Unlock()
			if outer != nil {
				outer(base+done, total)
			}
		}

		result, err := Run(ctx, spec.Name, spec.Factory, c.features, c.targets, c.assign, opts)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.results[spec.Name] = result
		c.mu.Unlock()
	}

	ranked := c.Ranked()
	if len(ranked) > 0 {
		log.Printf("Model comparison completed: best=%s rmse=%.4f", ranked[0].ModelName, ranked[0].MeanRMSE)
	}
	return ranked, nil
}

// Ranked 按平均RMSE升序返回结果，Rank从1开始
func (c *Comparison) Ranked() []*Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	ranked := make([]*Result, 0, len(c.results))
	for _, result := range c.results {
		ranked = append(ranked, result)
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].MeanRMSE < ranked[j].MeanRMSE
	})
	for i, result := range ranked {
		result.Rank = i + 1
	}
	return ranked
}

// GetResult 取单个模型的结果
func (c *Comparison) GetResult(name string) (*Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.results[name]
	return result, ok
}

// GetProgress 获取进度百分比
func (c *Comparison) GetProgress() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress
}

// IsRunning 检查是否正在运行
func (c *Comparison) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started && !c.completed
}
