package ml

// RegressionModel is the common contract for all count models: train on
// encoded predictor vectors against float targets, predict one row at a time.
type RegressionModel interface {
	Train(features [][]float64, targets []float64) error
	Predict(features []float64) (float64, error)
	Name() string
}

const (
	ModelPoissonGLM       = "poisson_glm"
	ModelPoissonTree      = "poisson_tree"
	ModelRandomForest     = "random_forest"
	ModelGradientBoosting = "gradient_boosting"
	ModelCubist           = "cubist"
)

// ModelNames lists every model family in evaluation order.
func ModelNames() []string {
	return []string{
		ModelPoissonGLM,
		ModelPoissonTree,
		ModelRandomForest,
		ModelGradientBoosting,
		ModelCubist,
	}
}
