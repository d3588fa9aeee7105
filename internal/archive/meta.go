package archive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"transphire/internal/discovery"
	"transphire/internal/fileutil"
)

// Meta collects the auxiliary files of a session (atlas images, grid square
// metadata, EPU settings) into one tar.
type Meta struct {
	SearchPath string
	OutputDir  string
	Finder     discovery.Finder
}

// HoldingDir is where auxiliary files are gathered before archiving.
func (m Meta) HoldingDir() string { return filepath.Join(m.OutputDir, "holding") }

// Collect copies every file under SearchPath that is neither a marker nor a
// frame file into the holding directory, then tars the holding directory to
// meta_<run>.tar and returns its path.
func (m Meta) Collect(ctx context.Context, run string) (string, error) {
	holding := m.HoldingDir()
	if err := os.MkdirAll(holding, 0o755); err != nil {
		return "", err
	}
	err := filepath.WalkDir(m.SearchPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || m.isMicrograph(d.Name()) {
			return nil
		}
		dst := fileutil.Mirror(path, m.SearchPath, holding)
		if same, err := fileutil.SameFile(path, dst); err != nil || same {
			return err
		}
		return fileutil.CopyFileVerified(path, dst)
	})
	if err != nil {
		return "", err
	}
	out := filepath.Join(m.OutputDir, fmt.Sprintf("meta_%s.tar", run))
	if err := WriteDir(out, holding); err != nil {
		return "", err
	}
	return out, nil
}

func (m Meta) isMicrograph(name string) bool {
	if ok, _ := filepath.Match(m.Finder.MarkerGlob, name); ok {
		return true
	}
	for _, suffix := range m.Finder.FrameSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
