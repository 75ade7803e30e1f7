package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/san-kum/hybridsim/internal/trajectory"
)

// WriteCSV writes completed trajectories in long form, one row per
// trajectory and sample:
//
//	trajectory,time,<species...>
func WriteCSV(w io.Writer, traj *trajectory.Store) error {
	cw := csv.NewWriter(w)

	header := append([]string{"trajectory", "time"}, traj.Species...)
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for tr := 0; tr < traj.NumTrajectories(); tr++ {
		if !traj.Completed[tr] {
			continue
		}
		row[0] = strconv.Itoa(tr)
		for i, t := range traj.Timeline {
			row[1] = formatFloat(t)
			for sp, v := range traj.Sample(tr, i) {
				row[2+sp] = formatFloat(v)
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV fills traj from CSV written by WriteCSV. The header must name the
// same species in the same order. Every trajectory that appears is marked
// completed.
func ReadCSV(r io.Reader, traj *trajectory.Store) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2 + traj.NumSpecies()

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	for sp, name := range traj.Species {
		if header[2+sp] != name {
			return fmt.Errorf("column %d: expected species %q, got %q", 2+sp, name, header[2+sp])
		}
	}

	sample := make(map[int]int)
	x := make([]float64, traj.NumSpecies())
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		tr, err := strconv.Atoi(record[0])
		if err != nil || tr < 0 || tr >= traj.NumTrajectories() {
			return fmt.Errorf("bad trajectory index %q", record[0])
		}
		i := sample[tr]
		if i >= traj.NumSamples() {
			return fmt.Errorf("trajectory %d: more than %d samples", tr, traj.NumSamples())
		}
		for sp := range x {
			v, err := strconv.ParseFloat(record[2+sp], 64)
			if err != nil {
				return fmt.Errorf("trajectory %d sample %d: %w", tr, i, err)
			}
			x[sp] = v
		}
		traj.Record(tr, i, x)
		traj.Completed[tr] = true
		sample[tr] = i + 1
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

type ExportData struct {
	Run          RunMetadata   `json:"run"`
	Timeline     []float64     `json:"timeline"`
	Species      []string      `json:"species"`
	Completed    []bool        `json:"completed"`
	Trajectories [][][]float64 `json:"trajectories"`
}

func newExportData(meta RunMetadata, traj *trajectory.Store) ExportData {
	return ExportData{
		Run:          meta,
		Timeline:     traj.Timeline,
		Species:      traj.Species,
		Completed:    traj.Completed,
		Trajectories: traj.Data,
	}
}

func WriteJSON(w io.Writer, meta RunMetadata, traj *trajectory.Store) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newExportData(meta, traj))
}

func ExportJSON(path string, meta RunMetadata, traj *trajectory.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteJSON(f, meta, traj)
}

func ExportJSONStdout(meta RunMetadata, traj *trajectory.Store) error {
	return WriteJSON(os.Stdout, meta, traj)
}

func ExportCSV(path string, traj *trajectory.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteCSV(f, traj)
}
