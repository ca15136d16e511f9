package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"insurance-charge/internal/common"
)

// ModelMetadata describes how the artifact was trained. It is optional and
// purely informational; prediction never depends on it.
type ModelMetadata struct {
	Version      string    `json:"version"`
	Algorithm    string    `json:"algorithm"`
	TrainedAt    time.Time `json:"trained_at"`
	Features     []string  `json:"features"`
	Target       string    `json:"target"`
	R2Score      float64   `json:"r2_score"`
	TrainingRows int       `json:"training_rows"`
}

func defaultMetadata() *ModelMetadata {
	return &ModelMetadata{Version: "unknown"}
}

// LoadModelMetadata reads model_metadata.json from the artifact's directory.
func LoadModelMetadata(modelPath string) (*ModelMetadata, error) {
	path := filepath.Join(filepath.Dir(modelPath), common.ModelMetadataFile)

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var md ModelMetadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if md.Version == "" {
		md.Version = "unknown"
	}
	return &md, nil
}
