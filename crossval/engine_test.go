package crossval

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"testing"

	"crimetrend/ml"
)

// meanModel predicts the mean of its training targets.
type meanModel struct {
	mean    float64
	trained bool
	noise   float64
}

func (m *meanModel) Name() string { return "mean" }

func (m *meanModel) Train(features [][]float64, targets []float64) error {
	var sum float64
	for _, y := range targets {
		sum += y
	}
	m.mean = sum / float64(len(targets))
	m.trained = true
	return nil
}

func (m *meanModel) Predict(features []float64) (float64, error) {
	return m.mean + m.noise, nil
}

func engineTestData(n int) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(3))
	features := make([][]float64, n)
	targets := make([]float64, n)
	for i := 0; i < n; i++ {
		features[i] = []float64{float64(i % 4), float64(i % 12)}
		targets[i] = 5 + rng.Float64()
	}
	return features, targets
}

func TestRunProducesAllFoldScores(t *testing.T) {
	features, targets := engineTestData(120)
	assign, err := FoldConfig{Folds: 10, Repeats: 5, Seed: 42}.Assign(120)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := Run(context.Background(), "mean", func() ml.RegressionModel {
		return &meanModel{}
	}, features, targets, assign, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Scores) != 50 {
		t.Fatalf("got %d fold scores, want 50", len(result.Scores))
	}
	if result.Rows != 120 {
		t.Errorf("Rows = %d, want 120", result.Rows)
	}
	if math.IsNaN(result.MeanRMSE) || result.MeanRMSE <= 0 {
		t.Errorf("MeanRMSE = %v", result.MeanRMSE)
	}
}

func TestRunParallelMatchesSequential(t *testing.T) {
	features, targets := engineTestData(100)
	assign, err := FoldConfig{Folds: 10, Repeats: 3, Seed: 42}.Assign(100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	factory := func() ml.RegressionModel { return &meanModel{} }

	sequential, err := Run(context.Background(), "mean", factory, features, targets, assign, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parallel, err := Run(context.Background(), "mean", factory, features, targets, assign, Options{Parallel: true, MaxWorkers: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sequential.Scores) != len(parallel.Scores) {
		t.Fatalf("score counts differ: %d vs %d", len(sequential.Scores), len(parallel.Scores))
	}
	for i := range sequential.Scores {
		a, b := sequential.Scores[i], parallel.Scores[i]
		if a.Repeat != b.Repeat || a.Fold != b.Fold {
			t.Fatalf("score order differs at %d: %+v vs %+v", i, a, b)
		}
		if math.Abs(a.RMSE-b.RMSE) > 1e-12 {
			t.Fatalf("RMSE differs at %d: %v vs %v", i, a.RMSE, b.RMSE)
		}
	}
}

func TestRunProgressCallback(t *testing.T) {
	features, targets := engineTestData(60)
	assign, err := FoldConfig{Folds: 5, Repeats: 2, Seed: 1}.Assign(60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var calls []int
	_, err = Run(context.Background(), "mean", func() ml.RegressionModel {
		return &meanModel{}
	}, features, targets, assign, Options{
		Progress: func(done, total int) {
			if total != 10 {
				t.Errorf("total = %d, want 10", total)
			}
			calls = append(calls, done)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(calls) != 10 {
		t.Fatalf("progress called %d times, want 10", len(calls))
	}
	if !sort.IntsAreSorted(calls) || calls[len(calls)-1] != 10 {
		t.Errorf("progress sequence not monotonic to completion: %v", calls)
	}
}

func TestRunCancelled(t *testing.T) {
	features, targets := engineTestData(60)
	assign, err := FoldConfig{Folds: 5, Repeats: 2, Seed: 1}.Assign(60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, "mean", func() ml.RegressionModel {
		return &meanModel{}
	}, features, targets, assign, Options{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestComparisonRanksByRMSE(t *testing.T) {
	features, targets := engineTestData(80)
	assign, err := FoldConfig{Folds: 8, Repeats: 2, Seed: 42}.Assign(80)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	specs := []ModelSpec{
		{Name: "biased", Factory: func() ml.RegressionModel { return &meanModel{noise: 10} }},
		{Name: "plain", Factory: func() ml.RegressionModel { return &meanModel{} }},
	}

	comparison := NewComparison(specs, features, targets, assign, Options{})
	results, err := comparison.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ModelName != "plain" || results[0].Rank != 1 {
		t.Errorf("best model = %s rank %d, want plain rank 1", results[0].ModelName, results[0].Rank)
	}
	if results[1].ModelName != "biased" || results[1].Rank != 2 {
		t.Errorf("worst model = %s rank %d, want biased rank 2", results[1].ModelName, results[1].Rank)
	}

	if comparison.IsRunning() {
		t.Error("comparison still marked running after completion")
	}
	if got := comparison.GetProgress(); math.Abs(got-100) > 1e-9 {
		t.Errorf("GetProgress() = %v, want 100", got)
	}

	if _, ok := comparison.GetResult("plain"); !ok {
		t.Error("GetResult did not find plain model")
	}
}

func TestComparisonCannotRunTwice(t *testing.T) {
	features, targets := engineTestData(40)
	assign, err := FoldConfig{Folds: 4, Repeats: 1, Seed: 1}.Assign(40)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	comparison := NewComparison([]ModelSpec{
		{Name: "mean", Factory: func() ml.RegressionModel { return &meanModel{} }},
	}, features, targets, assign, Options{})

	if _, err := comparison.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := comparison.Run(context.Background()); err == nil {
		t.Error("expected error on second Run")
	}
}
