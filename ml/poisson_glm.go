package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// PoissonGLMOptions GLM配置
type PoissonGLMOptions struct {
	Interaction bool    `json:"interaction" yaml:"interaction"`
	MaxIter     int     `json:"max_iter" yaml:"max_iter"`
	Tolerance   float64 `json:"tolerance" yaml:"tolerance"`
}

// DefaultPoissonGLMOptions 固定模型形式：主效应加辖区x类别交互项
func DefaultPoissonGLMOptions() PoissonGLMOptions {
	return PoissonGLMOptions{
		Interaction: true,
		MaxIter:     25,
		Tolerance:   1e-8,
	}
}

// PoissonGLM 对数链接的泊松回归，IRLS求解。
// 输入是四个分类预测变量的整数编码，内部展开成哑变量设计矩阵。
type PoissonGLM struct {
	opts   PoissonGLMOptions
	levels [NumFeatures]int
	beta   []float64
}

// NewPoissonGLM 创建GLM，levels来自编码器
func NewPoissonGLM(levels [NumFeatures]int, opts PoissonGLMOptions) *PoissonGLM {
	if opts.MaxIter <= 0 {
		opts.MaxIter = 25
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-8
	}
	return &PoissonGLM{opts: opts, levels: levels}
}

func (m *PoissonGLM) Name() string {
	return ModelPoissonGLM
}

// numColumns 设计矩阵列数：截距+各因子哑变量+交互项
func (m *PoissonGLM) numColumns() int {
	p := 1
	for _, l := range m.levels {
		p += l - 1
	}
	if m.opts.Interaction {
		p += (m.levels[FeatDistrict] - 1) * (m.levels[FeatCategory] - 1)
	}
	return p
}

// expandRow 把编码向量展开成哑变量行，基准水平全零
func (m *PoissonGLM) expandRow(codes []float64) []float64 {
	row := make([]float64, m.numColumns())
	row[0] = 1
	offset := 1
	for f := 0; f < NumFeatures; f++ {
		lvl := int(codes[f])
		if lvl > 0 {
			row[offset+lvl-1] = 1
		}
		offset += m.levels[f] - 1
	}
	if m.opts.Interaction {
		d := int(codes[FeatDistrict])
		c := int(codes[FeatCategory])
		if d > 0 && c > 0 {
			width := m.levels[FeatCategory] - 1
			row[offset+(d-1)*width+(c-1)] = 1
		}
	}
	return row
}

func (m *PoissonGLM) Train(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}

	n := len(targets)
	p := m.numColumns()
	if n <= p {
		return fmt.Errorf("not enough rows (%d) for %d design columns", n, p)
	}

	design := mat.NewDense(n, p, nil)
	for i, codes := range features {
		design.SetRow(i, m.expandRow(codes))
	}

	beta, err := irls(design, targets, m.opts.MaxIter, m.opts.Tolerance)
	if err != nil {
		return err
	}
	m.beta = beta
	return nil
}

// irls 迭代重加权最小二乘。
// 每轮解一次加权正规方程，Cholesky分解失败视为设计矩阵秩亏，直接报错。
func irls(design *mat.Dense, targets []float64, maxIter int, tol float64) ([]float64, error) {
	n, p := design.Dims()

	beta := make([]float64, p)
	beta[0] = math.Log(mean(targets) + 1e-10)

	eta := make([]float64, n)
	mu := make([]float64, n)
	prevDev := math.Inf(1)

	for iter := 0; iter < maxIter; iter++ {
		for i := 0; i < n; i++ {
			eta[i] = dot(design.RawRowView(i), beta)
			mu[i] = math.Exp(clamp(eta[i], -30, 30))
		}

		// 加权设计矩阵 sqrt(w)X 和工作响应 sqrt(w)z，w=mu
		xw := mat.NewDense(n, p, nil)
		zw := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			w := math.Sqrt(mu[i])
			row := design.RawRowView(i)
			for j := 0; j < p; j++ {
				xw.Set(i, j, w*row[j])
			}
			z := eta[i] + (targets[i]-mu[i])/mu[i]
			zw.SetVec(i, w*z)
		}

		var xtwx mat.Dense
		xtwx.Mul(xw.T(), xw)
		sym := mat.NewSymDense(p, nil)
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				sym.SetSym(i, j, xtwx.At(i, j))
			}
		}

		var chol mat.Cholesky
		if !chol.Factorize(sym) {
			return nil, fmt.Errorf("irls iteration %d: design matrix is rank deficient", iter)
		}

		var xtwz mat.VecDense
		xtwz.MulVec(xw.T(), zw)

		var solved mat.VecDense
		if err := chol.SolveVecTo(&solved, &xtwz); err != nil {
			return nil, fmt.Errorf("irls iteration %d: %w", iter, err)
		}
		for j := 0; j < p; j++ {
			beta[j] = solved.AtVec(j)
		}

		var dev float64
		for i := 0; i < n; i++ {
			fitted := math.Exp(clamp(dot(design.RawRowView(i), beta), -30, 30))
			dev += poissonDeviance(targets[i:i+1], fitted)
		}
		if math.Abs(prevDev-dev) < tol*(math.Abs(dev)+0.1) {
			return beta, nil
		}
		prevDev = dev
	}
	return beta, nil
}

func (m *PoissonGLM) Predict(features []float64) (float64, error) {
	if m.beta == nil {
		return 0, errors.New("model not trained")
	}
	if len(features) < NumFeatures {
		return 0, errors.New("feature vector too short")
	}
	eta := dot(m.expandRow(features), m.beta)
	return math.Exp(clamp(eta, -30, 30)), nil
}

// Coefficients 返回系数副本
func (m *PoissonGLM) Coefficients() []float64 {
	out := make([]float64, len(m.beta))
	copy(out, m.beta)
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
