package archive

import (
	"fmt"
	"path/filepath"

	"transphire/internal/fileutil"
	"transphire/internal/queue"
)

// Batcher appends files to numbered tar batches under a target directory,
// recording membership in the stage's Queue_<stage>_list.
type Batcher struct {
	Stage     string
	TargetDir string
	// SourceRoot is stripped from member paths to name tar entries.
	SourceRoot string
	Size       int
	List       *queue.BatchList
}

// TarPath returns the archive for batch index.
func (b Batcher) TarPath(index int) string {
	return filepath.Join(b.TargetDir, fmt.Sprintf("%s_%06d.tar", b.Stage, index))
}

// Add appends src to the open batch and returns the tar path. Adding a file
// that is already in its batch's tar is a no-op.
func (b Batcher) Add(src string) (string, error) {
	name, err := filepath.Rel(b.SourceRoot, fileutil.Mirror(src, b.SourceRoot, b.SourceRoot))
	if err != nil {
		return "", err
	}
	index, _, err := b.List.Add(src, b.Size)
	if err != nil {
		return "", err
	}
	path := b.TarPath(index)
	present, err := Contains(path, name)
	if err != nil || present {
		return path, err
	}
	return path, AppendFile(path, name, src)
}
