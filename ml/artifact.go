// Package ml loads the pre-fitted classification artifact and shapes
// validated observations into the tabular rows it expects.
package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"incomeserve/observation"
)

// Artifact file names inside the model directory.
const (
	columnsFile  = "columns.json"
	dtypesFile   = "dtypes.json"
	pipelineFile = "pipeline.json"
)

// Artifact is the loaded inference pipeline: the ordered column list,
// per-column dtypes, categorical vocabularies, and the fitted tree.
// Read-only after load; concurrent scoring needs no locking.
type Artifact struct {
	Columns    []string
	DTypes     map[string]string
	Categories map[string][]string

	tree *Tree
}

type pipelinePayload struct {
	Nodes      []TreeNode          `json:"nodes"`
	Categories map[string][]string `json:"categories"`
}

// LoadArtifact reads the three artifact files from dir and checks
// they agree with each other.
func LoadArtifact(dir string) (*Artifact, error) {
	var columns []string
	if err := readJSON(filepath.Join(dir, columnsFile), &columns); err != nil {
		return nil, fmt.Errorf("load columns: %w", err)
	}

	dtypes := make(map[string]string)
	if err := readJSON(filepath.Join(dir, dtypesFile), &dtypes); err != nil {
		return nil, fmt.Errorf("load dtypes: %w", err)
	}

	var payload pipelinePayload
	if err := readJSON(filepath.Join(dir, pipelineFile), &payload); err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	tree, err := NewTree(payload.Nodes)
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}

	artifact := &Artifact{
		Columns:    columns,
		DTypes:     dtypes,
		Categories: payload.Categories,
		tree:       tree,
	}
	if err := artifact.check(); err != nil {
		return nil, err
	}
	return artifact, nil
}

// check verifies every column has a dtype and every categorical
// column has a vocabulary. A malformed artifact must fail at startup,
// not on the first request.
func (a *Artifact) check() error {
	if len(a.Columns) == 0 {
		return fmt.Errorf("artifact has no columns")
	}
	for _, column := range a.Columns {
		dtype, ok := a.DTypes[column]
		if !ok {
			return fmt.Errorf("column %s has no dtype", column)
		}
		switch dtype {
		case dtypeInt:
		case dtypeCategory:
			if len(a.Categories[column]) == 0 {
				return fmt.Errorf("categorical column %s has no vocabulary", column)
			}
		default:
			return fmt.Errorf("column %s has unsupported dtype %s", column, dtype)
		}
	}
	return nil
}

// Score runs a validated observation through the pipeline. The
// returned probability always refers to the positive class (label 1).
func (a *Artifact) Score(obs *observation.Observation) (int, float64, error) {
	row, err := a.Row(obs)
	if err != nil {
		return 0, 0, err
	}
	prediction, err := a.tree.Predict(row)
	if err != nil {
		return 0, 0, err
	}
	proba, err := a.tree.PredictProba(row)
	if err != nil {
		return 0, 0, err
	}
	return prediction, proba, nil
}

func readJSON(path string, out interface{}) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}
