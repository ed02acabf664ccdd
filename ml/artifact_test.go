package ml

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"incomeserve/observation"
)

// writeArtifact writes a small but complete artifact into dir: the
// nine census columns and a tree splitting on age then hours-per-week.
func writeArtifact(t *testing.T, dir string) {
	t.Helper()

	columns := []string{
		"age", "workclass", "education", "marital-status", "race", "sex",
		"capital-gain", "capital-loss", "hours-per-week",
	}
	dtypes := map[string]string{
		"age":            "int",
		"workclass":      "category",
		"education":      "category",
		"marital-status": "category",
		"race":           "category",
		"sex":            "category",
		"capital-gain":   "int",
		"capital-loss":   "int",
		"hours-per-week": "int",
	}
	payload := pipelinePayload{
		Nodes: []TreeNode{
			{FeatureIdx: 0, Threshold: 30, LeftChild: 1, RightChild: 2},
			{IsLeaf: true, ClassLabel: 0, Proba: 0.1, FeatureIdx: -1, LeftChild: -1, RightChild: -1},
			{FeatureIdx: 8, Threshold: 41, LeftChild: 3, RightChild: 4},
			{IsLeaf: true, ClassLabel: 0, Proba: 0.3, FeatureIdx: -1, LeftChild: -1, RightChild: -1},
			{IsLeaf: true, ClassLabel: 1, Proba: 0.8, FeatureIdx: -1, LeftChild: -1, RightChild: -1},
		},
		Categories: observation.CategoricalValues,
	}

	writeJSONFile(t, filepath.Join(dir, columnsFile), columns)
	writeJSONFile(t, filepath.Join(dir, dtypesFile), dtypes)
	writeJSONFile(t, filepath.Join(dir, pipelineFile), payload)
}

func writeJSONFile(t *testing.T, path string, value interface{}) {
	t.Helper()
	payload, err := json.Marshal(value)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatal(err)
	}
}

func testObservation() *observation.Observation {
	return &observation.Observation{
		Age:           45,
		Workclass:     "Private",
		Education:     "Bachelors",
		MaritalStatus: "Married-civ-spouse",
		Race:          "White",
		Sex:           "Male",
		CapitalGain:   0,
		CapitalLoss:   0,
		HoursPerWeek:  50,
	}
}

func TestLoadArtifact(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir)

	artifact, err := LoadArtifact(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(artifact.Columns) != 9 {
		t.Errorf("unexpected columns: %v", artifact.Columns)
	}
}

func TestLoadArtifactMissingDType(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir)
	writeJSONFile(t, filepath.Join(dir, dtypesFile), map[string]string{"age": "int"})

	if _, err := LoadArtifact(dir); err == nil {
		t.Error("expected error for incomplete dtypes")
	}
}

func TestArtifactRowOrderAndCoercion(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir)
	artifact, err := LoadArtifact(dir)
	if err != nil {
		t.Fatal(err)
	}

	row, err := artifact.Row(testObservation())
	if err != nil {
		t.Fatal(err)
	}
	if len(row) != len(artifact.Columns) {
		t.Fatalf("row length %d, want %d", len(row), len(artifact.Columns))
	}
	if row[0] != 45 {
		t.Errorf("age not first: %v", row)
	}
	if row[8] != 50 {
		t.Errorf("hours-per-week not last: %v", row)
	}
	// "Private" is index 2 in the workclass vocabulary.
	if row[1] != 2 {
		t.Errorf("workclass not encoded by vocabulary index: %v", row)
	}
}

func TestArtifactRowUnknownCategory(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir)
	artifact, err := LoadArtifact(dir)
	if err != nil {
		t.Fatal(err)
	}

	obs := testObservation()
	obs.Workclass = "Freelance"
	_, err = artifact.Row(obs)
	if err == nil {
		t.Fatal("expected coercion error")
	}
	if _, ok := err.(*CoercionError); !ok {
		t.Errorf("expected *CoercionError, got %T", err)
	}
}

func TestArtifactScoreProbaIsPositiveClass(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir)
	artifact, err := LoadArtifact(dir)
	if err != nil {
		t.Fatal(err)
	}

	// Old, long hours: positive leaf.
	prediction, proba, err := artifact.Score(testObservation())
	if err != nil {
		t.Fatal(err)
	}
	if prediction != 1 || proba != 0.8 {
		t.Errorf("got prediction=%d proba=%v, want 1/0.8", prediction, proba)
	}

	// Young: negative leaf, but proba still reports P(class=1).
	obs := testObservation()
	obs.Age = 20
	prediction, proba, err = artifact.Score(obs)
	if err != nil {
		t.Fatal(err)
	}
	if prediction != 0 || proba != 0.1 {
		t.Errorf("got prediction=%d proba=%v, want 0/0.1", prediction, proba)
	}
}

func TestProviderScore(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir)

	provider, err := NewProvider(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer provider.Close()

	prediction, proba, err := provider.Score(testObservation())
	if err != nil {
		t.Fatal(err)
	}
	if prediction != 1 || proba != 0.8 {
		t.Errorf("got prediction=%d proba=%v", prediction, proba)
	}
}
