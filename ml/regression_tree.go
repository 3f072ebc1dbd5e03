package ml

import (
	"encoding/json"
	"errors"
	"os"
)

// PoissonTreeOptions 递归划分树的超参数
type PoissonTreeOptions struct {
	Cp       float64 `json:"cp" yaml:"cp"`
	MinSplit int     `json:"min_split" yaml:"min_split"`
	MinLeaf  int     `json:"min_leaf" yaml:"min_leaf"`
	MaxDepth int     `json:"max_depth" yaml:"max_depth"`
}

// DefaultPoissonTreeOptions 报告使用的调参值
func DefaultPoissonTreeOptions() PoissonTreeOptions {
	return PoissonTreeOptions{
		Cp:       1e-5,
		MinSplit: 20,
		MinLeaf:  7,
		MaxDepth: 30,
	}
}

// PoissonTree 泊松偏差划分的回归树
type PoissonTree struct {
	opts  PoissonTreeOptions
	nodes []TreeNode
}

// NewPoissonTree 创建回归树
func NewPoissonTree(opts PoissonTreeOptions) *PoissonTree {
	if opts.MinSplit <= 0 {
		opts.MinSplit = 20
	}
	if opts.MinLeaf <= 0 {
		opts.MinLeaf = 7
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 30
	}
	return &PoissonTree{opts: opts}
}

func (t *PoissonTree) Name() string {
	return ModelPoissonTree
}

func (t *PoissonTree) Train(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}

	t.nodes = growTree(features, targets, treeConfig{
		criterion: critPoisson,
		maxDepth:  t.opts.MaxDepth,
		minSplit:  t.opts.MinSplit,
		minLeaf:   t.opts.MinLeaf,
		cp:        t.opts.Cp,
	}, nil)
	return nil
}

func (t *PoissonTree) Predict(features []float64) (float64, error) {
	if len(t.nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) < NumFeatures {
		return 0, errors.New("feature vector too short")
	}
	return predictTree(t.nodes, features), nil
}

// NodeCount 节点总数，用于训练日志
func (t *PoissonTree) NodeCount() int {
	return len(t.nodes)
}

func (t *PoissonTree) Save(path string) error {
	if len(t.nodes) == 0 {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(t.nodes)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (t *PoissonTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var nodes []TreeNode
	if err := json.Unmarshal(payload, &nodes); err != nil {
		return err
	}
	t.nodes = nodes
	return nil
}
