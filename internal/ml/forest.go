package ml

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// leafMarker is the child index that marks a leaf node.
const leafMarker = -1

// forestDocument is the on-disk layout of a tree-ensemble regressor: the
// per-node arrays of each fitted tree, exported as-is.
type forestDocument struct {
	NFeatures    int            `json:"n_features"`
	FeatureNames []string       `json:"feature_names,omitempty"`
	Trees        []treeDocument `json:"trees"`
}

type treeDocument struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	Value         []float64 `json:"value"`
}

// Forest is an averaged ensemble of binary regression trees.
type Forest struct {
	nFeatures    int
	featureNames []string
	trees        []treeDocument
}

func loadForest(path string) (*Forest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	return DecodeForest(r)
}

// DecodeForest reads and validates a tree-ensemble document.
func DecodeForest(r io.Reader) (*Forest, error) {
	var doc forestDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}

	return &Forest{
		nFeatures:    doc.NFeatures,
		featureNames: doc.FeatureNames,
		trees:        doc.Trees,
	}, nil
}

func (d *forestDocument) validate() error {
	if d.NFeatures <= 0 {
		return fmt.Errorf("n_features must be positive, got %d", d.NFeatures)
	}
	if d.FeatureNames != nil && len(d.FeatureNames) != d.NFeatures {
		return fmt.Errorf("feature_names has %d entries, n_features is %d", len(d.FeatureNames), d.NFeatures)
	}
	if len(d.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	for i := range d.Trees {
		if err := d.Trees[i].validate(d.NFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// validate checks the node arrays. Children must have a larger index than
// their parent, which rules out cycles and guarantees traversal terminates.
func (t *treeDocument) validate(nFeatures int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("node arrays differ in length: left=%d right=%d feature=%d threshold=%d value=%d",
			n, len(t.ChildrenRight), len(t.Feature), len(t.Threshold), len(t.Value))
	}

	for i := 0; i < n; i++ {
		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]
		if left == leafMarker || right == leafMarker {
			if left != right {
				return fmt.Errorf("node %d has only one child", i)
			}
			if math.IsNaN(t.Value[i]) || math.IsInf(t.Value[i], 0) {
				return fmt.Errorf("leaf %d has non-finite value", i)
			}
			continue
		}
		if left <= i || left >= n || right <= i || right >= n {
			return fmt.Errorf("node %d has children (%d, %d) outside (%d, %d)", i, left, right, i, n)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d, model has %d", i, t.Feature[i], nFeatures)
		}
		if math.IsNaN(t.Threshold[i]) {
			return fmt.Errorf("node %d has NaN threshold", i)
		}
	}
	return nil
}

func (t *treeDocument) predict(x []float64) float64 {
	node := 0
	for t.ChildrenLeft[node] != leafMarker {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// Predict averages the leaf values reached in every tree.
func (f *Forest) Predict(features []float64) (float64, error) {
	if len(features) != f.nFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", f.nFeatures, len(features))
	}

	var sum float64
	for i := range f.trees {
		sum += f.trees[i].predict(features)
	}
	return sum / float64(len(f.trees)), nil
}

func (f *Forest) NumFeatures() int { return f.nFeatures }

func (f *Forest) FeatureNames() []string {
	if f.featureNames == nil {
		return nil
	}
	out := make([]string, len(f.featureNames))
	copy(out, f.featureNames)
	return out
}

// NumTrees is the ensemble size.
func (f *Forest) NumTrees() int { return len(f.trees) }

func (f *Forest) Close() error { return nil }
