package ml

import (
	"errors"
	"math/rand"
)

// RandomForestOptions 随机森林超参数
type RandomForestOptions struct {
	NumTrees int   `json:"num_trees" yaml:"num_trees"`
	MTry     int   `json:"mtry" yaml:"mtry"`
	MinLeaf  int   `json:"min_leaf" yaml:"min_leaf"`
	MaxDepth int   `json:"max_depth" yaml:"max_depth"`
	Seed     int64 `json:"seed" yaml:"seed"`
}

// DefaultRandomForestOptions 报告使用的调参值：500棵树，每次分裂抽2个预测变量，叶子最少5个样本
func DefaultRandomForestOptions() RandomForestOptions {
	return RandomForestOptions{
		NumTrees: 500,
		MTry:     2,
		MinLeaf:  5,
		MaxDepth: 25,
		Seed:     1,
	}
}

// RandomForest 方差划分的装袋树
type RandomForest struct {
	opts  RandomForestOptions
	trees [][]TreeNode
}

// NewRandomForest 创建随机森林
func NewRandomForest(opts RandomForestOptions) *RandomForest {
	if opts.NumTrees <= 0 {
		opts.NumTrees = 500
	}
	if opts.MTry <= 0 {
		opts.MTry = 2
	}
	if opts.MinLeaf <= 0 {
		opts.MinLeaf = 5
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 25
	}
	return &RandomForest{opts: opts}
}

func (rf *RandomForest) Name() string {
	return ModelRandomForest
}

func (rf *RandomForest) Train(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}

	n := len(targets)
	rng := rand.New(rand.NewSource(rf.opts.Seed))
	cfg := treeConfig{
		criterion: critVariance,
		maxDepth:  rf.opts.MaxDepth,
		minSplit:  2 * rf.opts.MinLeaf,
		minLeaf:   rf.opts.MinLeaf,
		mtry:      rf.opts.MTry,
	}

	rf.trees = make([][]TreeNode, rf.opts.NumTrees)
	for t := 0; t < rf.opts.NumTrees; t++ {
		// bootstrap样本
		sampleX := make([][]float64, n)
		sampleY := make([]float64, n)
		for i := 0; i < n; i++ {
			j := rng.Intn(n)
			sampleX[i] = features[j]
			sampleY[i] = targets[j]
		}
		rf.trees[t] = growTree(sampleX, sampleY, cfg, rng)
	}
	return nil
}

func (rf *RandomForest) Predict(features []float64) (float64, error) {
	if len(rf.trees) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) < NumFeatures {
		return 0, errors.New("feature vector too short")
	}
	var sum float64
	for _, tree := range rf.trees {
		sum += predictTree(tree, features)
	}
	return sum / float64(len(rf.trees)), nil
}

// TreeCount 实际训练出的树数
func (rf *RandomForest) TreeCount() int {
	return len(rf.trees)
}
