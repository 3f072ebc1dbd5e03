package ml

import (
	"math"
	"path/filepath"
	"testing"

	"crimetrend/pipeline"
)

// syntheticCounts builds a small grid where the count depends only on
// district and category, so every model should recover the group means.
func syntheticCounts() (*Encoder, [][]float64, []float64) {
	districts := []string{"A1", "B2", "C11"}
	categories := []string{"Larceny", "Towed", "Vandalism"}

	var rows []pipeline.CountRow
	for _, year := range []int{2016, 2017} {
		for month := 1; month <= 6; month++ {
			for di, district := range districts {
				for ci, category := range categories {
					rows = append(rows, pipeline.CountRow{
						GroupKey: pipeline.GroupKey{
							Year:     year,
							Month:    month,
							District: district,
							Category: category,
						},
						Count: 2 + 3*di + 2*ci,
					})
				}
			}
		}
	}

	encoder, features, targets, err := BuildTrainingSet(rows)
	if err != nil {
		panic(err)
	}
	return encoder, features, targets
}

func trainingRMSE(t *testing.T, model RegressionModel, features [][]float64, targets []float64) float64 {
	t.Helper()

	var sum float64
	for i, row := range features {
		pred, err := model.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.IsNaN(pred) || math.IsInf(pred, 0) {
			t.Fatalf("prediction %d is not finite: %v", i, pred)
		}
		diff := pred - targets[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(features)))
}

func TestPoissonTreeFitsGroupMeans(t *testing.T) {
	_, features, targets := syntheticCounts()

	model := NewPoissonTree(PoissonTreeOptions{})
	if err := model.Train(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if model.NodeCount() < 3 {
		t.Errorf("tree did not split: %d nodes", model.NodeCount())
	}
	if rmse := trainingRMSE(t, model, features, targets); rmse > 0.5 {
		t.Errorf("training RMSE = %.3f, want <= 0.5", rmse)
	}
}

func TestPoissonTreeSaveLoad(t *testing.T) {
	_, features, targets := syntheticCounts()

	model := NewPoissonTree(PoissonTreeOptions{})
	if err := model.Train(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tree.model")
	if err := model.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded := NewPoissonTree(PoissonTreeOptions{})
	if err := loaded.Load(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, row := range features {
		want, err := model.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := loaded.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("prediction %d differs after reload: %v vs %v", i, got, want)
		}
	}
}

func TestPoissonTreeEmptyInput(t *testing.T) {
	model := NewPoissonTree(PoissonTreeOptions{})
	if err := model.Train(nil, nil); err == nil {
		t.Error("expected error for empty training set")
	}
}

func TestRandomForestDeterministicWithSeed(t *testing.T) {
	_, features, targets := syntheticCounts()

	first := NewRandomForest(RandomForestOptions{NumTrees: 50, Seed: 9})
	if err := first.Train(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := NewRandomForest(RandomForestOptions{NumTrees: 50, Seed: 9})
	if err := second.Train(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, row := range features {
		a, err := first.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := second.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a != b {
			t.Fatalf("prediction %d differs between identical seeds: %v vs %v", i, a, b)
		}
	}
}

func TestRandomForestFitsSyntheticData(t *testing.T) {
	_, features, targets := syntheticCounts()

	model := NewRandomForest(RandomForestOptions{NumTrees: 100, Seed: 1})
	if err := model.Train(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if model.TreeCount() != 100 {
		t.Errorf("TreeCount() = %d, want 100", model.TreeCount())
	}
	if rmse := trainingRMSE(t, model, features, targets); rmse > 2.0 {
		t.Errorf("training RMSE = %.3f, want <= 2.0", rmse)
	}
}

func TestGradientBoostingFitsSyntheticData(t *testing.T) {
	_, features, targets := syntheticCounts()

	model := NewGradientBoosting(GradientBoostingOptions{NumTrees: 100, Seed: 1})
	if err := model.Train(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, row := range features {
		pred, err := model.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pred <= 0 {
			t.Fatalf("prediction %d is not positive: %v", i, pred)
		}
	}
	if rmse := trainingRMSE(t, model, features, targets); rmse > 2.0 {
		t.Errorf("training RMSE = %.3f, want <= 2.0", rmse)
	}
}

func TestCubistFitsLinearRelation(t *testing.T) {
	_, features, targets := syntheticCounts()

	model := NewCubist(CubistOptions{Committees: 10})
	if err := model.Train(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if model.CommitteeCount() != 10 {
		t.Errorf("CommitteeCount() = %d, want 10", model.CommitteeCount())
	}
	// The synthetic counts are exactly linear in the district and
	// category codes, so the rule-based linear models should track them.
	if rmse := trainingRMSE(t, model, features, targets); rmse > 2.0 {
		t.Errorf("training RMSE = %.3f, want <= 2.0", rmse)
	}
}

func TestModelNames(t *testing.T) {
	names := ModelNames()
	if len(names) != 5 {
		t.Fatalf("expected 5 model families, got %d", len(names))
	}

	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			t.Errorf("duplicate model name %q", name)
		}
		seen[name] = true
	}
}
