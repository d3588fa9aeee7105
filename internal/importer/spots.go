package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var spotKey = regexp.MustCompile(`(FoilHole|GridSquare)_(\d+)`)

// SpotKey derives the grid-position key of a root name. FoilHole ids win
// over GridSquare ids when both are present.
func SpotKey(root string) string {
	matches := spotKey.FindAllStringSubmatch(root, -1)
	key := ""
	for _, m := range matches {
		if m[1] == "FoilHole" {
			return m[0]
		}
		if key == "" {
			key = m[0]
		}
	}
	return key
}

// SpotDict maps grid-position keys to small integers, persisted as JSON.
type SpotDict struct {
	path string

	mu    sync.Mutex
	spots map[string]int
}

// OpenSpotDict loads path, starting empty when it does not exist.
func OpenSpotDict(path string) (*SpotDict, error) {
	d := &SpotDict{path: path, spots: map[string]int{}}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return d, nil
	case err != nil:
		return nil, err
	}
	if len(data) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(data, &d.spots); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return d, nil
}

// Number returns the number for key, assigning and persisting the next one
// for an unseen key. An empty key maps to 0.
func (d *SpotDict) Number(key string) (int, error) {
	if key == "" {
		return 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.spots[key]; ok {
		return n, nil
	}
	n := len(d.spots) + 1
	d.spots[key] = n
	if err := d.saveLocked(); err != nil {
		delete(d.spots, key)
		return 0, err
	}
	return n, nil
}

// Len returns the number of known spots.
func (d *SpotDict) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.spots)
}

func (d *SpotDict) saveLocked() error {
	data, err := json.MarshalIndent(d.spots, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(d.path), ".spot_dict-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), d.path)
}
