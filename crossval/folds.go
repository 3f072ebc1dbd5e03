package crossval

import (
	"fmt"
	"math/rand"
)

// FoldConfig 交叉验证配置：10折x5次重复，种子固定。
// 五个模型共用同一份折划分，RMSE才有可比性。
type FoldConfig struct {
	Folds   int   `yaml:"folds"`
	Repeats int   `yaml:"repeats"`
	Seed    int64 `yaml:"seed"`
}

// DefaultFoldConfig 报告使用的折配置
func DefaultFoldConfig() FoldConfig {
	return FoldConfig{
		Folds:   10,
		Repeats: 5,
		Seed:    42,
	}
}

// FoldAssignments 生成好的折划分，构造后只读
type FoldAssignments struct {
	Folds   int
	Repeats int
	Rows    int

	// assignment[repeat][row] = 所属折编号
	assignment [][]int
}

// Assign 为n行数据生成折划分
func (c FoldConfig) Assign(n int) (*FoldAssignments, error) {
	if c.Folds < 2 {
		return nil, fmt.Errorf("folds must be at least 2, got %d", c.Folds)
	}
	if c.Repeats < 1 {
		return nil, fmt.Errorf("repeats must be at least 1, got %d", c.Repeats)
	}
	if n < c.Folds {
		return nil, fmt.Errorf("%d rows cannot fill %d folds", n, c.Folds)
	}

	rng := rand.New(rand.NewSource(c.Seed))
	assignment := make([][]int, c.Repeats)
	for r := 0; r < c.Repeats; r++ {
		perm := rng.Perm(n)
		folds := make([]int, n)
		for i, row := range perm {
			folds[row] = i % c.Folds
		}
		assignment[r] = folds
	}

	return &FoldAssignments{
		Folds:      c.Folds,
		Repeats:    c.Repeats,
		Rows:       n,
		assignment: assignment,
	}, nil
}

// Fold 返回某次重复里某行所属的折
func (a *FoldAssignments) Fold(repeat, row int) int {
	return a.assignment[repeat][row]
}

// Split 返回某次重复某折的训练/验证行下标
func (a *FoldAssignments) Split(repeat, fold int) (train, test []int) {
	for row, f := range a.assignment[repeat] {
		if f == fold {
			test = append(test, row)
		} else {
			train = append(train, row)
		}
	}
	return train, test
}

// NumTasks 折任务总数
func (a *FoldAssignments) NumTasks() int {
	return a.Folds * a.Repeats
}
