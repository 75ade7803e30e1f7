package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/hybridsim/internal/trajectory"
)

const (
	metadataFile     = "metadata.json"
	trajectoriesFile = "trajectories.csv"
)

// Store keeps one directory per run under baseDir holding metadata.json and
// trajectories.csv. An attached index mirrors the metadata for querying.
type Store struct {
	baseDir string
	index   *SQLiteIndex
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// AttachIndex makes Save record every run in idx as well.
func (s *Store) AttachIndex(idx *SQLiteIndex) {
	s.index = idx
}

func (s *Store) BaseDir() string { return s.baseDir }

type RunMetadata struct {
	ID           string             `json:"id"`
	Solver       string             `json:"solver"`
	Network      string             `json:"network"`
	Timestamp    time.Time          `json:"timestamp"`
	Seed         int64              `json:"seed"`
	EndTime      float64            `json:"end_time"`
	Increment    float64            `json:"increment"`
	Trajectories int                `json:"trajectories"`
	Completed    int                `json:"completed"`
	Canceled     bool               `json:"canceled"`
	Integrator   string             `json:"integrator"`
	Species      []string           `json:"species"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Save writes a run and returns its id. Shape fields of meta are taken from
// the trajectory store; an empty ID gets a fresh UUID.
func (s *Store) Save(ctx context.Context, meta RunMetadata, traj *trajectory.Store) (string, error) {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	if meta.Solver == "" {
		meta.Solver = "hybrid"
	}
	meta.EndTime = traj.EndTime
	meta.Increment = traj.Increment
	meta.Trajectories = traj.NumTrajectories()
	meta.Completed = traj.CompletedCount()
	meta.Canceled = traj.Canceled
	meta.Species = append([]string(nil), traj.Species...)

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeJSONFile(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, trajectoriesFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteCSV(csvFile, traj); err != nil {
		return "", fmt.Errorf("write trajectories: %w", err)
	}

	if s.index != nil {
		if err := s.index.Put(ctx, meta); err != nil {
			return "", fmt.Errorf("index run %s: %w", meta.ID, err)
		}
	}
	return meta.ID, nil
}

// List returns the metadata of every run, newest first.
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

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
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

// LoadTrajectories rebuilds the trajectory store of a saved run.
// Trajectories missing from the CSV come back zeroed and not completed.
func (s *Store) LoadTrajectories(runID string) (*RunMetadata, *trajectory.Store, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, nil, err
	}

	traj, err := trajectory.New(meta.Species, meta.Trajectories, meta.EndTime, meta.Increment)
	if err != nil {
		return nil, nil, fmt.Errorf("run %s: %w", runID, err)
	}
	traj.Canceled = meta.Canceled

	f, err := os.Open(filepath.Join(s.baseDir, runID, trajectoriesFile))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	if err := ReadCSV(f, traj); err != nil {
		return nil, nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return meta, traj, nil
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
