package trajectory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Column naming and numeric precision of the trajectory table.
const (
	timeColumn = "time_from_start"
	posSuffix  = "_pos"
	velSuffix  = "_vel"
	accSuffix  = "_acc"

	timeDigits  = 20
	valueDigits = 5
)

// ErrNothingToSave is returned when a trajectory has no waypoints or no positions.
var ErrNothingToSave = errors.New("trajectory: no trajectory points available to save")

// WriteCSV writes t as a table: a header of time_from_start followed by
// <joint>_pos,<joint>_vel,<joint>_acc per joint, then one row per waypoint.
// Time is written with 20 significant digits, everything else with 5.
// Missing velocity or acceleration arrays are written as zeros.
func WriteCSV(w io.Writer, t *JointTrajectory) error {
	if t.Empty() || len(t.Points[0].Positions) == 0 {
		return ErrNothingToSave
	}

	cw := csv.NewWriter(w)

	header := make([]string, 0, 1+3*len(t.JointNames))
	header = append(header, timeColumn)
	for _, name := range t.JointNames {
		header = append(header, name+posSuffix, name+velSuffix, name+accSuffix)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("trajectory: write header: %w", err)
	}

	for i, p := range t.Points {
		row := make([]string, 0, 1+3*len(p.Positions))
		row = append(row, strconv.FormatFloat(p.TimeFromStart.Seconds(), 'g', timeDigits, 64))
		for j, pos := range p.Positions {
			row = append(row,
				formatValue(pos),
				formatValue(valueAt(p.Velocities, j)),
				formatValue(valueAt(p.Accelerations, j)),
			)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("trajectory: write point %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table produced by WriteCSV back into a trajectory.
// Velocities and accelerations are always populated (zero-filled on write).
func ReadCSV(r io.Reader) (*JointTrajectory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("trajectory: read header: %w", err)
	}
	header = trimTrailingEmpty(header)
	if len(header) == 0 || header[0] != timeColumn {
		return nil, fmt.Errorf("trajectory: header must start with %q", timeColumn)
	}
	if (len(header)-1)%3 != 0 {
		return nil, fmt.Errorf("trajectory: header has %d joint columns, want a multiple of 3", len(header)-1)
	}

	t := &JointTrajectory{}
	for c := 1; c < len(header); c += 3 {
		name, ok := strings.CutSuffix(header[c], posSuffix)
		if !ok {
			return nil, fmt.Errorf("trajectory: column %d (%q) is not a position column", c, header[c])
		}
		t.JointNames = append(t.JointNames, name)
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("trajectory: read line %d: %w", line, err)
		}
		rec = trimTrailingEmpty(rec)
		if len(rec) != len(header) {
			return nil, fmt.Errorf("trajectory: line %d has %d fields, want %d", line, len(rec), len(header))
		}

		secs, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("trajectory: line %d: bad time %q: %w", line, rec[0], err)
		}

		n := len(t.JointNames)
		p := Point{
			Positions:     make([]float64, n),
			Velocities:    make([]float64, n),
			Accelerations: make([]float64, n),
			TimeFromStart: FromSeconds(secs),
		}
		for j := 0; j < n; j++ {
			vals := rec[1+3*j : 4+3*j]
			dst := []*float64{&p.Positions[j], &p.Velocities[j], &p.Accelerations[j]}
			for k, s := range vals {
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, fmt.Errorf("trajectory: line %d: bad value %q: %w", line, s, err)
				}
				*dst[k] = v
			}
		}
		t.Points = append(t.Points, p)
	}

	return t, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', valueDigits, 64)
}

func valueAt(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

// trimTrailingEmpty tolerates tables written with a trailing delimiter.
func trimTrailingEmpty(rec []string) []string {
	for len(rec) > 0 && rec[len(rec)-1] == "" {
		rec = rec[:len(rec)-1]
	}
	return rec
}
