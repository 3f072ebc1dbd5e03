package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"crimetrend/crossval"
	"crimetrend/dataset"
	"crimetrend/ml"
	"crimetrend/pipeline"
)

func main() {
	dataPath := flag.String("data", "", "path to incident CSV")
	modelName := flag.String("model", ml.ModelPoissonTree, "model to train")
	holdout := flag.Float64("holdout", 0.2, "holdout ratio")
	seed := flag.Int64("seed", 42, "shuffle seed")
	modelPath := flag.String("model_path", "", "tree model output path (poisson_tree only)")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("data is required")
	}

	encoder, features, targets, rows, err := buildTrainingData(*dataPath)
	if err != nil {
		log.Fatalf("failed to build training data: %v", err)
	}
	log.Printf("loaded %d monthly count rows", rows)

	trainX, trainY, testX, testY := splitDataset(features, targets, *holdout, *seed)

	model, err := newModel(*modelName, encoder)
	if err != nil {
		log.Fatal(err)
	}
	if err := model.Train(trainX, trainY); err != nil {
		log.Fatalf("failed to train model: %v", err)
	}

	rmse, r2, err := evaluateModel(model, testX, testY)
	if err != nil {
		log.Fatalf("failed to evaluate model: %v", err)
	}
	log.Printf("model=%s holdout_rmse=%.4f holdout_r_squared=%.4f", model.Name(), rmse, r2)

	if *modelPath != "" {
		tree, ok := model.(*ml.PoissonTree)
		if !ok {
			log.Fatalf("model %s does not support saving", model.Name())
		}
		if err := os.MkdirAll(filepath.Dir(*modelPath), 0o755); err != nil {
			log.Fatalf("failed to create model dir: %v", err)
		}
		if err := tree.Save(*modelPath); err != nil {
			log.Fatalf("failed to save model: %v", err)
		}
		fmt.Printf("model saved to %s\n", *modelPath)
	}
}

func buildTrainingData(path string) (*ml.Encoder, [][]float64, []float64, int, error) {
	incidents, err := dataset.LoadIncidents(path)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	filter := pipeline.NewIncidentFilter(dataset.KeepCategories())
	kept, _ := filter.Filter(incidents)
	if len(kept) == 0 {
		return nil, nil, nil, 0, fmt.Errorf("no incidents left after filtering")
	}

	rows := pipeline.Aggregate(kept)
	encoder, features, targets, err := ml.BuildTrainingSet(rows)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	return encoder, features, targets, len(rows), nil
}

func splitDataset(features [][]float64, targets []float64, holdout float64, seed int64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) {
	if holdout <= 0 || holdout >= 1 {
		holdout = 0.2
	}

	rng := rand.New(rand.NewSource(seed))
	order := rng.Perm(len(features))

	split := int(float64(len(features)) * (1 - holdout))
	for i, idx := range order {
		if i < split {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, targets[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, targets[idx])
		}
	}
	return trainX, trainY, testX, testY
}

func newModel(name string, encoder *ml.Encoder) (ml.RegressionModel, error) {
	switch name {
	case ml.ModelPoissonGLM:
		return ml.NewPoissonGLM(encoder.Levels(), ml.PoissonGLMOptions{Interaction: true}), nil
	case ml.ModelPoissonTree:
		return ml.NewPoissonTree(ml.DefaultPoissonTreeOptions()), nil
	case ml.ModelRandomForest:
		return ml.NewRandomForest(ml.DefaultRandomForestOptions()), nil
	case ml.ModelGradientBoosting:
		return ml.NewGradientBoosting(ml.DefaultGradientBoostingOptions()), nil
	case ml.ModelCubist:
		return ml.NewCubist(ml.DefaultCubistOptions()), nil
	default:
		return nil, fmt.Errorf("unknown model %q, expected one of %v", name, ml.ModelNames())
	}
}

func evaluateModel(model ml.RegressionModel, testX [][]float64, testY []float64) (rmse, r2 float64, err error) {
	if len(testX) == 0 {
		return 0, 0, nil
	}

	predicted := make([]float64, len(testX))
	for i, features := range testX {
		p, err := model.Predict(features)
		if err != nil {
			return 0, 0, fmt.Errorf("predict holdout sample %d: %w", i, err)
		}
		predicted[i] = p
	}

	return crossval.RMSE(testY, predicted), crossval.RSquared(testY, predicted), nil
}
