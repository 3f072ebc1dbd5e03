package crossval

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// RMSE 均方根误差
func RMSE(actual, predicted []float64) float64 {
	if len(actual) == 0 || len(actual) != len(predicted) {
		return math.NaN()
	}
	var sum float64
	for i := range actual {
		d := actual[i] - predicted[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(actual)))
}

// RSquared 决定系数，模型解释的响应方差比例
func RSquared(actual, predicted []float64) float64 {
	if len(actual) < 2 || len(actual) != len(predicted) {
		return math.NaN()
	}
	return stat.RSquaredFrom(predicted, actual, nil)
}
