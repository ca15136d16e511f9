package ml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"insurance-charge/internal/common"

	"github.com/rs/zerolog/log"
)

var (
	// ErrArtifactNotFound means no file exists at the artifact path.
	ErrArtifactNotFound = errors.New("model artifact not found")
	// ErrArtifactCorrupt means the file exists but could not be decoded
	// into a usable model.
	ErrArtifactCorrupt = errors.New("model artifact corrupt")
)

// LoadOptions tunes artifact loading.
type LoadOptions struct {
	// ONNXLibPath is the onnxruntime shared library. Defaults to
	// libonnxruntime.so in the artifact's directory.
	ONNXLibPath string
}

// LoadArtifact reads the model at path. Files ending in .onnx are opened
// with ONNX Runtime; anything else is decoded as a tree-ensemble document
// (optionally gzip-compressed). Any failure here is meant to stop the
// process before it serves a request.
func LoadArtifact(path string, opts LoadOptions) (Regressor, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: expected at %s", ErrArtifactNotFound, path)
		}
		return nil, fmt.Errorf("%w: cannot stat %s: %v", ErrArtifactCorrupt, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrArtifactCorrupt, path)
	}

	var model Regressor
	if strings.EqualFold(filepath.Ext(path), ".onnx") {
		libPath := opts.ONNXLibPath
		if libPath == "" {
			libPath = filepath.Join(filepath.Dir(path), common.ONNXRuntimeLibFile)
		}
		model, err = loadONNX(path, libPath)
	} else {
		model, err = loadForest(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArtifactCorrupt, path, err)
	}

	log.Info().
		Str("model_path", path).
		Int("num_features", model.NumFeatures()).
		Int64("size_bytes", info.Size()).
		Msg("model artifact loaded")

	return model, nil
}

// ResolveArtifactPath anchors a relative artifact path at the installation
// root. Absolute paths are returned cleaned; the working directory is never
// consulted.
func ResolveArtifactPath(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

// InstallRoot returns the deployment root of the running binary. A binary
// installed as <root>/bin/<name> resolves to <root>; otherwise the binary's
// own directory is the root.
func InstallRoot() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	dir := filepath.Dir(exe)
	if filepath.Base(dir) == "bin" {
		return filepath.Dir(dir), nil
	}
	return dir, nil
}
