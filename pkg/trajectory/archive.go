package trajectory

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

// ErrInvalidGroup is returned for group names that are not a single
// file name element.
var ErrInvalidGroup = errors.New("trajectory: invalid group name")

// CheckGroupName rejects group names that are empty or could leave the
// archive directory.
func CheckGroupName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidGroup, name)
	}
	return nil
}

// Archive writes trajectories to uniquely named CSV files in one directory.
// File names are <group>_moveit_trajectory_<n>.csv with n increasing per
// Archive.
type Archive struct {
	dir string

	mu    sync.Mutex
	count uint64
}

// NewArchive creates an archive rooted at dir. A leading "~" is expanded
// to the user's home directory.
func NewArchive(dir string) *Archive {
	return &Archive{dir: expandHome(dir)}
}

// Dir returns the resolved archive directory.
func (a *Archive) Dir() string {
	return a.dir
}

// Save writes t to the next file for group and returns its path.
// The counter advances even when the write fails, but not for a rejected
// group name.
func (a *Archive) Save(t *JointTrajectory, group string) (string, error) {
	if err := CheckGroupName(group); err != nil {
		return "", err
	}

	a.mu.Lock()
	n := a.count
	a.count++
	a.mu.Unlock()

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("trajectory: create archive dir: %w", err)
	}

	path := filepath.Join(a.dir, fmt.Sprintf("%s_moveit_trajectory_%d.csv", group, n))

	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return path, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, fmt.Errorf("trajectory: write %s: %w", path, err)
	}
	return path, nil
}

func expandHome(dir string) string {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dir
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~"))
}

// Fingerprint returns a short BLAKE3 digest of the joint names and waypoint
// values, used to correlate journal entries with archived files.
func Fingerprint(t *JointTrajectory) string {
	h := blake3.New()
	var scratch [8]byte

	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
		_, _ = h.Write(scratch[:])
	}
	putFloats := func(vals []float64) {
		binary.LittleEndian.PutUint64(scratch[:], uint64(len(vals)))
		_, _ = h.Write(scratch[:])
		for _, v := range vals {
			putFloat(v)
		}
	}

	if t != nil {
		for _, name := range t.JointNames {
			_, _ = h.Write([]byte(name))
			_, _ = h.Write([]byte{0})
		}
		for _, p := range t.Points {
			binary.LittleEndian.PutUint64(scratch[:], uint64(p.TimeFromStart))
			_, _ = h.Write(scratch[:])
			putFloats(p.Positions)
			putFloats(p.Velocities)
			putFloats(p.Accelerations)
		}
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
