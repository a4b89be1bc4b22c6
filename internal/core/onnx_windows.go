//go:build windows

package core

import (
	"errors"

	"stormlens-backend/internal/pipeline"
)

var ErrOnnxNotSupportedOnWindows = errors.New("ONNX classifiers are not supported on Windows")

type OnnxClassifier struct{}

func LoadOnnxClassifier(modelDir string) (Classifier, error) {
	return nil, ErrOnnxNotSupportedOnWindows
}

func (m *OnnxClassifier) Predict(batch pipeline.Batch) ([]float32, error) {
	return nil, ErrOnnxNotSupportedOnWindows
}

func (m *OnnxClassifier) Release() {
	// no-op
}
