package ml

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CubistOptions 规则模型超参数
type CubistOptions struct {
	Committees int     `json:"committees" yaml:"committees"`
	Neighbors  int     `json:"neighbors" yaml:"neighbors"`
	MinLeaf    int     `json:"min_leaf" yaml:"min_leaf"`
	MaxDepth   int     `json:"max_depth" yaml:"max_depth"`
	Ridge      float64 `json:"ridge" yaml:"ridge"`
}

// DefaultCubistOptions 报告使用的调参值：80个委员会，9个近邻修正
func DefaultCubistOptions() CubistOptions {
	return CubistOptions{
		Committees: 80,
		Neighbors:  9,
		MinLeaf:    5,
		MaxDepth:   8,
		Ridge:      1e-6,
	}
}

// leafModel 叶子上的线性模型：截距加每个特征一个系数
type leafModel struct {
	Coefs []float64 `json:"coefs"`
}

type cubistCommittee struct {
	nodes  []TreeNode
	models map[int]leafModel
}

// Cubist 规则型模型：委员会迭代的规则树，叶子带线性模型，
// 预测时用训练集近邻的残差做修正。
type Cubist struct {
	opts       CubistOptions
	committees []cubistCommittee

	trainX [][]float64
	trainY []float64
	fitted []float64 // 训练集上的集成拟合值，近邻修正用
}

// NewCubist 创建规则模型
func NewCubist(opts CubistOptions) *Cubist {
	if opts.Committees <= 0 {
		opts.Committees = 80
	}
	if opts.Neighbors < 0 {
		opts.Neighbors = 9
	}
	if opts.MinLeaf <= 0 {
		opts.MinLeaf = 5
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 8
	}
	if opts.Ridge <= 0 {
		opts.Ridge = 1e-6
	}
	return &Cubist{opts: opts}
}

func (c *Cubist) Name() string {
	return ModelCubist
}

func (c *Cubist) Train(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}

	n := len(targets)
	c.trainX = features
	c.trainY = targets
	c.committees = make([]cubistCommittee, 0, c.opts.Committees)

	minY, maxY := minMax(targets)
	cfg := treeConfig{
		criterion: critVariance,
		maxDepth:  c.opts.MaxDepth,
		minSplit:  2 * c.opts.MinLeaf,
		minLeaf:   c.opts.MinLeaf,
	}

	adjusted := append([]float64(nil), targets...)
	ensemble := make([]float64, n)

	for m := 0; m < c.opts.Committees; m++ {
		nodes := growTree(features, adjusted, cfg, nil)
		committee := cubistCommittee{nodes: nodes, models: c.fitLeafModels(nodes, features, adjusted)}
		c.committees = append(c.committees, committee)

		// 集成是各委员会预测的均值；下一轮的伪目标 2y - pred，截断到观测范围
		for i := range ensemble {
			pred := committeePredict(committee, features[i])
			ensemble[i] += (pred - ensemble[i]) / float64(m+1)
			adjusted[i] = clamp(2*targets[i]-pred, minY, maxY)
		}
	}

	c.fitted = ensemble
	return nil
}

// fitLeafModels 对每个叶子上的样本拟合岭回归线性模型，样本太少退化为均值
func (c *Cubist) fitLeafModels(nodes []TreeNode, features [][]float64, targets []float64) map[int]leafModel {
	assignment := make(map[int][]int)
	for i := range features {
		leaf := leafIndex(nodes, features[i])
		assignment[leaf] = append(assignment[leaf], i)
	}

	models := make(map[int]leafModel, len(assignment))
	for leaf, rows := range assignment {
		models[leaf] = fitRidge(features, targets, rows, c.opts.Ridge)
	}
	return models
}

// fitRidge 带截距的岭回归，矩阵奇异或样本不足时退化为叶子均值
func fitRidge(features [][]float64, targets []float64, rows []int, ridge float64) leafModel {
	p := NumFeatures + 1
	meanModel := func() leafModel {
		sub := make([]float64, len(rows))
		for i, r := range rows {
			sub[i] = targets[r]
		}
		coefs := make([]float64, p)
		coefs[0] = mean(sub)
		return leafModel{Coefs: coefs}
	}
	if len(rows) < p+1 {
		return meanModel()
	}

	sym := mat.NewSymDense(p, nil)
	b := mat.NewVecDense(p, nil)
	row := make([]float64, p)
	for _, r := range rows {
		row[0] = 1
		copy(row[1:], features[r][:NumFeatures])
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				sym.SetSym(i, j, sym.At(i, j)+row[i]*row[j])
			}
			b.SetVec(i, b.AtVec(i)+row[i]*targets[r])
		}
	}
	for i := 0; i < p; i++ {
		sym.SetSym(i, i, sym.At(i, i)+ridge)
	}

	var chol mat.Cholesky
	if !chol.Factorize(sym) {
		return meanModel()
	}
	var solved mat.VecDense
	if err := chol.SolveVecTo(&solved, b); err != nil {
		return meanModel()
	}

	coefs := make([]float64, p)
	for i := 0; i < p; i++ {
		coefs[i] = solved.AtVec(i)
	}
	return leafModel{Coefs: coefs}
}

func committeePredict(c cubistCommittee, x []float64) float64 {
	leaf := leafIndex(c.nodes, x)
	model, ok := c.models[leaf]
	if !ok {
		return c.nodes[leaf].Value
	}
	pred := model.Coefs[0]
	for f := 0; f < NumFeatures; f++ {
		pred += model.Coefs[f+1] * x[f]
	}
	return pred
}

func (c *Cubist) Predict(features []float64) (float64, error) {
	if len(c.committees) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) < NumFeatures {
		return 0, errors.New("feature vector too short")
	}

	var raw float64
	for _, committee := range c.committees {
		raw += committeePredict(committee, features)
	}
	raw /= float64(len(c.committees))

	if c.opts.Neighbors == 0 || len(c.trainX) == 0 {
		return raw, nil
	}
	return c.neighborCorrect(features, raw), nil
}

// neighborCorrect 近邻修正：用k个最近训练样本的实际值平移模型预测
func (c *Cubist) neighborCorrect(x []float64, raw float64) float64 {
	k := c.opts.Neighbors
	if k > len(c.trainX) {
		k = len(c.trainX)
	}

	type scored struct {
		idx  int
		dist float64
	}
	scores := make([]scored, len(c.trainX))
	for i, t := range c.trainX {
		var d float64
		for f := 0; f < NumFeatures; f++ {
			d += math.Abs(x[f] - t[f])
		}
		scores[i] = scored{idx: i, dist: d}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].dist != scores[j].dist {
			return scores[i].dist < scores[j].dist
		}
		return scores[i].idx < scores[j].idx
	})

	var sum float64
	for _, s := range scores[:k] {
		sum += c.trainY[s.idx] + raw - c.fitted[s.idx]
	}
	return sum / float64(k)
}

// CommitteeCount 实际训练出的委员会数
func (c *Cubist) CommitteeCount() int {
	return len(c.committees)
}

func minMax(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
