package discovery

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"transphire/internal/config"
)

// Acquisition is one discovered micrograph.
type Acquisition struct {
	Marker   string
	Root     string
	Frames   []string
	Acquired time.Time
}

// Finder scans the search path for complete acquisitions.
type Finder struct {
	SearchPath    string
	MarkerGlob    string
	FrameSuffixes []string
	FrameFiles    int
}

// NewFinder builds a Finder from the [find] section.
func NewFinder(cfg *config.Config) Finder {
	return Finder{
		SearchPath:    cfg.Paths.SearchPath,
		MarkerGlob:    cfg.Find.MarkerGlob,
		FrameSuffixes: cfg.Find.FrameSuffixes,
		FrameFiles:    cfg.Find.FrameFiles,
	}
}

var acquisitionStamp = regexp.MustCompile(`_(\d{8})_(\d{6})`)

// AcquisitionTime extracts the last _YYYYMMDD_HHMMSS stamp in name.
func AcquisitionTime(name string) (time.Time, bool) {
	matches := acquisitionStamp.FindAllStringSubmatch(name, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		ts, err := time.ParseInLocation("20060102150405", matches[i][1]+matches[i][2], time.Local)
		if err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Scan walks the search path and returns acquisitions whose root is not
// known yet, oldest first. Incomplete acquisitions are left for a later
// scan.
func (f Finder) Scan(ctx context.Context, known func(root string) bool) ([]Acquisition, error) {
	if _, err := os.Stat(f.SearchPath); err != nil {
		return nil, err
	}
	var found []Acquisition
	err := filepath.WalkDir(f.SearchPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		match, err := filepath.Match(f.MarkerGlob, d.Name())
		if err != nil || !match {
			return err
		}
		root := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if known != nil && known(root) {
			return nil
		}
		frames, ok := f.Frames(filepath.Dir(path), root)
		if !ok {
			return nil
		}
		acq := Acquisition{Marker: path, Root: root, Frames: frames}
		acq.Acquired, _ = AcquisitionTime(root)
		found = append(found, acq)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if !a.Acquired.Equal(b.Acquired) {
			return a.Acquired.Before(b.Acquired)
		}
		return a.Marker < b.Marker
	})
	return found, nil
}

// Frames returns the companion frame files of root in dir when exactly
// FrameFiles of them exist and none is empty.
func (f Finder) Frames(dir, root string) ([]string, bool) {
	if f.FrameFiles <= 0 {
		return nil, true
	}
	var frames []string
	for _, suffix := range f.FrameSuffixes {
		matches, err := filepath.Glob(filepath.Join(dir, globEscape(root)+"*"+globEscape(suffix)))
		if err != nil {
			return nil, false
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() || info.Size() == 0 {
				return nil, false
			}
			frames = append(frames, m)
		}
	}
	if len(frames) != f.FrameFiles {
		return nil, false
	}
	sort.Strings(frames)
	return frames, true
}

func globEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`).Replace(s)
}
