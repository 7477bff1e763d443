package storage

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
	"github.com/google/uuid"
)

func testResult() *dynamo.Result {
	return &dynamo.Result{
		States: []dynamo.State{
			{1.0, 0.0},
			{0.9, -0.1},
		},
		Times:      []float64{0.0, 0.01},
		StepsTaken: 1,
		Impacts:    1,
		Metrics: map[string]float64{
			"energy_drift": 1.5,
		},
	}
}

func testSnapshots() []mbs.Snapshot {
	return []mbs.Snapshot{
		{T: 0, Links: []mbs.LinkState{{Name: "Contact", Forces: []float64{9.81, 0}}, {Name: "Spring", Forces: []float64{2}}}},
		{T: 0.01, Links: []mbs.LinkState{{Name: "Contact", Forces: []float64{9.7, 0.5}}, {Name: "Spring", Forces: []float64{2.5}}}},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runID, err := st.Save(Run{
		Meta:   RunMetadata{Scenario: "resting", Seed: 42, Dt: 0.01, Duration: 0.01, Integrator: "event", Strategy: "fixpoint"},
		Result: testResult(),
		Forces: ForceTableFromSnapshots(testSnapshots()),
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := uuid.Parse(runID); err != nil {
		t.Errorf("run id %q is not a uuid: %v", runID, err)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.ID != runID || meta.Scenario != "resting" || meta.Seed != 42 {
		t.Errorf("metadata %+v", meta)
	}
	if meta.Steps != 1 || meta.Impacts != 1 || meta.Metrics["energy_drift"] != 1.5 {
		t.Errorf("result summary %+v", meta)
	}

	states, times, err := st.LoadStates(runID)
	if err != nil {
		t.Fatalf("load states failed: %v", err)
	}
	if len(states) != 2 || len(times) != 2 || states[1][1] != -0.1 || times[1] != 0.01 {
		t.Errorf("states %v times %v", states, times)
	}

	forces, err := st.LoadForces(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(forces.Header) != 3 || forces.Header[2] != "Spring/0" {
		t.Errorf("header %v", forces.Header)
	}
	if col := forces.Column("Contact/1"); len(col) != 2 || col[1] != 0.5 {
		t.Errorf("friction column %v", col)
	}
}

func TestStoreWithoutForces(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	runID, err := st.Save(Run{Meta: RunMetadata{Scenario: "free_fall"}, Result: testResult()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.LoadForces(runID); !os.IsNotExist(err) {
		t.Errorf("expected a missing forces file, got %v", err)
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)

	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Fatalf("empty store: %v %v", runs, err)
	}

	for _, name := range []string{"a", "b"} {
		if _, err := st.Save(Run{Meta: RunMetadata{Scenario: name}, Result: testResult()}); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Timestamp.After(runs[1].Timestamp) {
		t.Error("runs not ordered by time")
	}
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	err := ExportJSON(&buf, RunMetadata{Scenario: "resting"}, testResult(), ForceTableFromSnapshots(testSnapshots()))
	if err != nil {
		t.Fatal(err)
	}
	var got ExportData
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Scenario != "resting" || got.Impacts != 1 || len(got.States) != 2 || len(got.Forces.Rows) != 2 {
		t.Errorf("export %+v", got)
	}
}
