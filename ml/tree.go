package ml

import (
	"math"
	"math/rand"
	"sort"
)

type splitCriterion int

const (
	critVariance splitCriterion = iota
	critPoisson
)

// TreeNode 回归树节点，整棵树存成扁平数组，子节点用下标引用
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

type treeConfig struct {
	criterion splitCriterion
	maxDepth  int
	minSplit  int
	minLeaf   int
	mtry      int // 每次分裂抽样的特征数，0表示用全部特征
	cp        float64
}

type treeGrower struct {
	cfg          treeConfig
	rng          *rand.Rand
	rootImpurity float64
}

// growTree 训练一棵回归树，返回扁平节点数组
func growTree(features [][]float64, targets []float64, cfg treeConfig, rng *rand.Rand) []TreeNode {
	g := &treeGrower{
		cfg:          cfg,
		rng:          rng,
		rootImpurity: impurity(targets, cfg.criterion),
	}
	return g.buildNode(features, targets, 0)
}

func (g *treeGrower) buildNode(features [][]float64, targets []float64, depth int) []TreeNode {
	leaf := TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      mean(targets),
		IsLeaf:     true,
	}
	if depth >= g.cfg.maxDepth || len(targets) < g.cfg.minSplit || isConstant(targets) {
		return []TreeNode{leaf}
	}

	bestFeature, threshold, ok := g.findBestSplit(features, targets)
	if !ok {
		return []TreeNode{leaf}
	}

	leftFeatures, leftTargets, rightFeatures, rightTargets := splitSamples(features, targets, bestFeature, threshold)
	if len(leftTargets) < g.cfg.minLeaf || len(rightTargets) < g.cfg.minLeaf {
		return []TreeNode{leaf}
	}

	leftNodes := g.buildNode(leftFeatures, leftTargets, depth+1)
	rightNodes := g.buildNode(rightFeatures, rightTargets, depth+1)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		Value:      mean(targets),
		IsLeaf:     false,
	}

	// 子树内部的下标是局部的，拼接时要按子树在数组里的位置平移
	shiftChildren(leftNodes, 1)
	shiftChildren(rightNodes, 1+len(leftNodes))

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, leftNodes...)
	nodes = append(nodes, rightNodes...)
	return nodes
}

func shiftChildren(nodes []TreeNode, offset int) {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
}

func (g *treeGrower) findBestSplit(features [][]float64, targets []float64) (int, float64, bool) {
	featureCount := len(features[0])
	candidates := g.candidateFeatures(featureCount)

	parentImpurity := impurity(targets, g.cfg.criterion)
	bestFeature := -1
	bestThreshold := 0.0
	bestChildImpurity := math.Inf(1)

	for _, featureIdx := range candidates {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		unique := uniqueSorted(values)
		if len(unique) < 2 {
			continue
		}
		for i := 0; i < len(unique)-1; i++ {
			threshold := (unique[i] + unique[i+1]) / 2
			leftTargets, rightTargets := splitTargets(features, targets, featureIdx, threshold)
			if len(leftTargets) < g.cfg.minLeaf || len(rightTargets) < g.cfg.minLeaf {
				continue
			}
			childImpurity := impurity(leftTargets, g.cfg.criterion) + impurity(rightTargets, g.cfg.criterion)
			if childImpurity < bestChildImpurity {
				bestChildImpurity = childImpurity
				bestFeature = featureIdx
				bestThreshold = threshold
			}
		}
	}

	if bestFeature == -1 {
		return -1, 0, false
	}
	// 复杂度参数：相对根节点不纯度的最小改进量，低于阈值的分裂剪掉
	gain := parentImpurity - bestChildImpurity
	if g.rootImpurity > 0 && gain < g.cfg.cp*g.rootImpurity {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (g *treeGrower) candidateFeatures(featureCount int) []int {
	if g.cfg.mtry <= 0 || g.cfg.mtry >= featureCount || g.rng == nil {
		all := make([]int, featureCount)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := g.rng.Perm(featureCount)
	return perm[:g.cfg.mtry]
}

// predictTree 沿树下行到叶子
func predictTree(nodes []TreeNode, x []float64) float64 {
	return nodes[leafIndex(nodes, x)].Value
}

// leafIndex 返回样本落入的叶子节点下标。
// 子节点下标必须严格递增，遇到坏下标按叶子处理，避免坏树上死循环。
func leafIndex(nodes []TreeNode, x []float64) int {
	idx := 0
	for {
		node := nodes[idx]
		if node.IsLeaf {
			return idx
		}
		next := node.RightChild
		if x[node.FeatureIdx] <= node.Threshold {
			next = node.LeftChild
		}
		if next <= idx || next >= len(nodes) {
			return idx
		}
		idx = next
	}
}

func impurity(targets []float64, criterion splitCriterion) float64 {
	switch criterion {
	case critPoisson:
		return poissonDeviance(targets, mean(targets))
	default:
		return sumSquares(targets)
	}
}

// poissonDeviance 泊松偏差 2*Σ(y*log(y/mu) - (y-mu))，y=0时第一项取0
func poissonDeviance(targets []float64, mu float64) float64 {
	if mu <= 0 {
		mu = 1e-10
	}
	var dev float64
	for _, y := range targets {
		if y > 0 {
			dev += y * math.Log(y/mu)
		}
		dev -= y - mu
	}
	return 2 * dev
}

func sumSquares(targets []float64) float64 {
	m := mean(targets)
	var ss float64
	for _, y := range targets {
		d := y - m
		ss += d * d
	}
	return ss
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func isConstant(values []float64) bool {
	if len(values) == 0 {
		return true
	}
	first := values[0]
	for _, v := range values[1:] {
		if v != first {
			return false
		}
	}
	return true
}

func splitSamples(features [][]float64, targets []float64, featureIdx int, threshold float64) ([][]float64, []float64, [][]float64, []float64) {
	var leftFeatures, rightFeatures [][]float64
	var leftTargets, rightTargets []float64
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftTargets = append(leftTargets, targets[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightTargets = append(rightTargets, targets[i])
		}
	}
	return leftFeatures, leftTargets, rightFeatures, rightTargets
}

func splitTargets(features [][]float64, targets []float64, featureIdx int, threshold float64) ([]float64, []float64) {
	var left, right []float64
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			left = append(left, targets[i])
		} else {
			right = append(right, targets[i])
		}
	}
	return left, right
}

func uniqueSorted(values []float64) []float64 {
	set := make(map[float64]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
