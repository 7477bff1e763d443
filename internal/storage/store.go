package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/google/uuid"
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
	forcesFile   = "forces.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Scenario    string             `json:"scenario"`
	Timestamp   time.Time          `json:"timestamp"`
	Seed        int64              `json:"seed"`
	Dt          float64            `json:"dt"`
	Duration    float64            `json:"duration"`
	Integrator  string             `json:"integrator"`
	Strategy    string             `json:"strategy"`
	Steps       int                `json:"steps"`
	Impacts     int                `json:"impacts"`
	EnergyDrift float64            `json:"energy_drift"`
	Params      map[string]float64 `json:"params,omitempty"`
	Metrics     map[string]float64 `json:"metrics"`
	Error       string             `json:"error,omitempty"`
}

// Run is everything written for one simulation.
type Run struct {
	Meta   RunMetadata
	Result *dynamo.Result
	// Forces is optional; runs without link forces get no forces.csv.
	Forces *ForceTable
}

// Save writes the run under a fresh id and returns it. Meta.ID and
// Meta.Timestamp are filled in.
func (s *Store) Save(run Run) (string, error) {
	id := uuid.New().String()
	runDir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := run.Meta
	meta.ID = id
	meta.Timestamp = time.Now().UTC()
	if run.Result != nil {
		meta.Steps = run.Result.StepsTaken
		meta.Impacts = run.Result.Impacts
		meta.EnergyDrift = run.Result.EnergyDrift
		meta.Metrics = run.Result.Metrics
	}
	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	if run.Result != nil {
		if err := writeStates(filepath.Join(runDir, statesFile), run.Result); err != nil {
			return "", err
		}
	}
	if run.Forces != nil {
		if err := writeTable(filepath.Join(runDir, forcesFile), run.Forces.Header, run.Forces.Times, run.Forces.Rows); err != nil {
			return "", err
		}
	}
	return id, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeStates(path string, result *dynamo.Result) error {
	var header []string
	if len(result.States) > 0 {
		header = make([]string, len(result.States[0]))
		for i := range header {
			header[i] = fmt.Sprintf("x%d", i)
		}
	}
	rows := make([][]float64, len(result.States))
	for i, x := range result.States {
		rows[i] = x
	}
	return writeTable(path, header, result.Times, rows)
}

func writeTable(path string, header []string, times []float64, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"time"}, header...)); err != nil {
		return err
	}
	for i, vals := range rows {
		row := make([]string, 0, len(vals)+1)
		row = append(row, strconv.FormatFloat(times[i], 'g', -1, 64))
		for _, v := range vals {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns the stored runs, oldest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadStates(runID string) ([][]float64, []float64, error) {
	_, times, rows, err := readTable(filepath.Join(s.baseDir, runID, statesFile))
	return rows, times, err
}

func (s *Store) LoadForces(runID string) (*ForceTable, error) {
	header, times, rows, err := readTable(filepath.Join(s.baseDir, runID, forcesFile))
	if err != nil {
		return nil, err
	}
	return &ForceTable{Header: header, Times: times, Rows: rows}, nil
}

func readTable(path string) ([]string, []float64, [][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(records) == 0 {
		return nil, []float64{}, [][]float64{}, nil
	}

	header := records[0][1:]
	times := make([]float64, 0, len(records)-1)
	rows := make([][]float64, 0, len(records)-1)
	for i, record := range records[1:] {
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("%s: row %d: %w", filepath.Base(path), i+1, err)
			}
			vals[j] = v
		}
		times = append(times, vals[0])
		rows = append(rows, vals[1:])
	}
	return header, times, rows, nil
}
