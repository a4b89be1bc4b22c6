package core

import (
	"errors"
	"fmt"
	"math"

	"stormlens-backend/internal/pipeline"

	"github.com/google/uuid"
)

// ClassifierType identifies how a classifier is loaded and executed.
type ClassifierType string

// Available classifier types
const (
	Onnx   ClassifierType = "onnx"
	Remote ClassifierType = "remote"
)

// statelessClassifierTypes have no artifact directory to download.
var statelessClassifierTypes = map[ClassifierType]struct{}{
	Remote: {},
}

type Classifier interface {
	// Predict returns one damage probability per sample in the batch.
	Predict(batch pipeline.Batch) ([]float32, error)

	Release()
}

type ClassifierLoader func(classifierId uuid.UUID, modelDir string) (Classifier, error)

func ParseClassifierType(s string) ClassifierType {
	return ClassifierType(s)
}

func IsStatelessClassifier(classifierType ClassifierType) bool {
	_, exists := statelessClassifierTypes[classifierType]
	return exists
}

func NewClassifierLoaders(trainer *TrainerClient) map[ClassifierType]ClassifierLoader {
	return map[ClassifierType]ClassifierLoader{
		Onnx: func(_ uuid.UUID, modelDir string) (Classifier, error) {
			return LoadOnnxClassifier(modelDir)
		},
		Remote: func(classifierId uuid.UUID, _ string) (Classifier, error) {
			if trainer == nil {
				return nil, errors.New("no trainer service configured for remote classifiers")
			}
			return NewRemoteClassifier(trainer, classifierId), nil
		},
	}
}

// probEpsilon clips predicted probabilities away from 0 and 1 so the
// cross-entropy terms stay finite.
const probEpsilon = 1e-7

type EvalMetrics struct {
	Loss        float64
	Accuracy    float64
	SampleCount int64
}

// EvaluateClassifier streams batches through the classifier and accumulates
// binary cross-entropy loss and accuracy at the 0.5 decision threshold.
func EvaluateClassifier(classifier Classifier, batches pipeline.BatchIterator) (EvalMetrics, error) {
	var (
		lossSum float64
		correct int64
		total   int64
	)

	for batch, err := range batches {
		if err != nil {
			return EvalMetrics{}, fmt.Errorf("error loading evaluation batch: %w", err)
		}

		probs, err := classifier.Predict(batch)
		if err != nil {
			return EvalMetrics{}, fmt.Errorf("error running classifier: %w", err)
		}
		if len(probs) != batch.Size {
			return EvalMetrics{}, fmt.Errorf("classifier returned %d probabilities for a batch of %d samples", len(probs), batch.Size)
		}

		for i, prob := range probs {
			label := float64(batch.Labels[i])

			p := math.Min(math.Max(float64(prob), probEpsilon), 1-probEpsilon)
			lossSum += -(label*math.Log(p) + (1-label)*math.Log(1-p))

			if (prob >= 0.5) == (label >= 0.5) {
				correct++
			}
		}

		total += int64(batch.Size)
	}

	if total == 0 {
		return EvalMetrics{}, errors.New("no samples matched the evaluation selection")
	}

	return EvalMetrics{
		Loss:        lossSum / float64(total),
		Accuracy:    float64(correct) / float64(total),
		SampleCount: total,
	}, nil
}
