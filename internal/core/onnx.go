//go:build !windows

package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"stormlens-backend/internal/pipeline"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	onnxModelFile  = "model.onnx"
	onnxConfigFile = "classifier.json"
)

// onnxClassifierConfig is written next to the exported graph by the trainer
// service. The tensor names depend on how the model was exported, so they
// travel with the artifact rather than being hardcoded here.
type onnxClassifierConfig struct {
	InputName  string `json:"input_name"`
	OutputName string `json:"output_name"`
}

// OnnxClassifier runs an exported damage classification graph. Input is one
// float32 NHWC tensor of normalized tiles; output is one sigmoid probability
// per sample.
type OnnxClassifier struct {
	session *ort.DynamicAdvancedSession
}

func LoadOnnxClassifier(modelDir string) (Classifier, error) {
	data, err := os.ReadFile(filepath.Join(modelDir, onnxConfigFile))
	if err != nil {
		return nil, fmt.Errorf("error reading classifier config: %w", err)
	}

	var config onnxClassifierConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing classifier config: %w", err)
	}
	if config.InputName == "" || config.OutputName == "" {
		return nil, fmt.Errorf("classifier config %s must name the input and output tensors", onnxConfigFile)
	}

	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(modelDir, onnxModelFile),
		[]string{config.InputName},
		[]string{config.OutputName},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}

	return &OnnxClassifier{session: session}, nil
}

func (m *OnnxClassifier) Predict(batch pipeline.Batch) ([]float32, error) {
	N := int64(batch.Size)
	H, W, C := int64(batch.Height), int64(batch.Width), int64(batch.Channels)

	inT, err := ort.NewTensor(ort.NewShape(N, H, W, C), batch.Pixels)
	if err != nil {
		return nil, err
	}
	defer inT.Destroy()

	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(N, 1))
	if err != nil {
		return nil, err
	}
	defer outT.Destroy()

	if err := m.session.Run([]ort.Value{inT}, []ort.Value{outT}); err != nil {
		return nil, fmt.Errorf("session run error: %w", err)
	}

	probs := make([]float32, batch.Size)
	copy(probs, outT.GetData())

	return probs, nil
}

func (m *OnnxClassifier) Release() {
	m.session.Destroy()
}
