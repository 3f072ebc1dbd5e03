package ml

import (
	"errors"
	"math"
	"math/rand"
)

// GradientBoostingOptions 梯度提升超参数
type GradientBoostingOptions struct {
	NumTrees    int     `json:"num_trees" yaml:"num_trees"`
	MaxDepth    int     `json:"max_depth" yaml:"max_depth"`
	Shrinkage   float64 `json:"shrinkage" yaml:"shrinkage"`
	MinLeaf     int     `json:"min_leaf" yaml:"min_leaf"`
	BagFraction float64 `json:"bag_fraction" yaml:"bag_fraction"`
	Seed        int64   `json:"seed" yaml:"seed"`
}

// DefaultGradientBoostingOptions 报告使用的调参值：500棵树，深度10，学习率0.1，叶子最少5个样本，每轮抽一半行
func DefaultGradientBoostingOptions() GradientBoostingOptions {
	return GradientBoostingOptions{
		NumTrees:    500,
		MaxDepth:    10,
		Shrinkage:   0.1,
		MinLeaf:     5,
		BagFraction: 0.5,
		Seed:        1,
	}
}

// GradientBoosting 泊松损失的提升树，对数链接
type GradientBoosting struct {
	opts  GradientBoostingOptions
	initF float64
	trees [][]TreeNode
}

// NewGradientBoosting 创建梯度提升模型
func NewGradientBoosting(opts GradientBoostingOptions) *GradientBoosting {
	if opts.NumTrees <= 0 {
		opts.NumTrees = 500
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 10
	}
	if opts.Shrinkage <= 0 {
		opts.Shrinkage = 0.1
	}
	if opts.MinLeaf <= 0 {
		opts.MinLeaf = 5
	}
	if opts.BagFraction <= 0 || opts.BagFraction > 1 {
		opts.BagFraction = 0.5
	}
	return &GradientBoosting{opts: opts}
}

func (gb *GradientBoosting) Name() string {
	return ModelGradientBoosting
}

// leaf的更新量上限，防止exp溢出
const maxLeafUpdate = 19.0

func (gb *GradientBoosting) Train(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}

	n := len(targets)
	rng := rand.New(rand.NewSource(gb.opts.Seed))
	gb.initF = math.Log(mean(targets) + 1e-10)

	// F是对数尺度上的当前拟合值
	F := make([]float64, n)
	for i := range F {
		F[i] = gb.initF
	}

	cfg := treeConfig{
		criterion: critVariance,
		maxDepth:  gb.opts.MaxDepth,
		minSplit:  2 * gb.opts.MinLeaf,
		minLeaf:   gb.opts.MinLeaf,
	}

	sampleSize := int(gb.opts.BagFraction * float64(n))
	if sampleSize < 2*gb.opts.MinLeaf {
		sampleSize = n
	}

	gb.trees = make([][]TreeNode, 0, gb.opts.NumTrees)
	for t := 0; t < gb.opts.NumTrees; t++ {
		sample := rng.Perm(n)[:sampleSize]

		// 负梯度 y - exp(F)
		sampleX := make([][]float64, sampleSize)
		residuals := make([]float64, sampleSize)
		for i, j := range sample {
			sampleX[i] = features[j]
			residuals[i] = targets[j] - math.Exp(F[j])
		}

		tree := growTree(sampleX, residuals, cfg, rng)

		// 泊松损失的终端节点更新：gamma = log(Σy / Σexp(F))
		leafY := make(map[int]float64)
		leafMu := make(map[int]float64)
		for _, j := range sample {
			leaf := leafIndex(tree, features[j])
			leafY[leaf] += targets[j]
			leafMu[leaf] += math.Exp(F[j])
		}
		for idx := range tree {
			if !tree[idx].IsLeaf {
				continue
			}
			gamma := math.Log((leafY[idx] + 1e-10) / (leafMu[idx] + 1e-10))
			if gamma > maxLeafUpdate {
				gamma = maxLeafUpdate
			} else if gamma < -maxLeafUpdate {
				gamma = -maxLeafUpdate
			}
			tree[idx].Value = gamma
		}

		for i := range F {
			F[i] += gb.opts.Shrinkage * predictTree(tree, features[i])
		}
		gb.trees = append(gb.trees, tree)
	}
	return nil
}

func (gb *GradientBoosting) Predict(features []float64) (float64, error) {
	if len(gb.trees) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) < NumFeatures {
		return 0, errors.New("feature vector too short")
	}
	f := gb.initF
	for _, tree := range gb.trees {
		f += gb.opts.Shrinkage * predictTree(tree, features)
	}
	if f > maxLeafUpdate {
		f = maxLeafUpdate
	}
	return math.Exp(f), nil
}

// TreeCount 实际训练出的树数
func (gb *GradientBoosting) TreeCount() int {
	return len(gb.trees)
}
