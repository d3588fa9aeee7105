package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"transphire/internal/config"
	"transphire/internal/discovery"
	"transphire/internal/fileutil"
	"transphire/internal/stage"
)

const (
	lastNumberFile = "last_filenumber.txt"
	spotDictFile   = ".spot_dict"
)

// Importer renames acquisitions into the project. It is safe for concurrent
// use; imports are serialised so numbers stay sequential.
type Importer struct {
	prefix      string
	destDir     string
	numberPath  string
	translation string
	finder      discovery.Finder

	mu         sync.Mutex
	last       int
	translated map[string]string
	spots      *SpotDict
}

// Open loads last_filenumber.txt, .spot_dict and the translation file.
func Open(cfg *config.Config) (*Importer, error) {
	im := &Importer{
		prefix:      cfg.Import.Prefix,
		destDir:     filepath.Join(cfg.Paths.ProjectDir, "Import"),
		numberPath:  filepath.Join(cfg.Paths.QueueDir, lastNumberFile),
		translation: cfg.TranslationFilePath(),
		finder:      discovery.NewFinder(cfg),
		translated:  map[string]string{},
	}
	if err := os.MkdirAll(im.destDir, 0o755); err != nil {
		return nil, err
	}
	var err error
	if im.last, err = readLastNumber(im.numberPath); err != nil {
		return nil, err
	}
	if im.spots, err = OpenSpotDict(filepath.Join(cfg.Paths.QueueDir, spotDictFile)); err != nil {
		return nil, err
	}
	if err := im.loadTranslations(); err != nil {
		return nil, err
	}
	return im, nil
}

// Translated reports whether root was imported before and under which name.
func (im *Importer) Translated(root string) (string, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	name, ok := im.translated[root]
	return name, ok
}

// LastNumber returns the last sequential number handed out.
func (im *Importer) LastNumber() int {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.last
}

// Import copies the marker and frames of the acquisition identified by
// marker, returning the imported frame paths (or the imported marker when the
// acquisition has no frames). A marker already in the translation file
// yields stage.ErrAlreadyProcessed.
func (im *Importer) Import(ctx context.Context, marker string) ([]string, error) {
	root := strings.TrimSuffix(filepath.Base(marker), filepath.Ext(marker))

	im.mu.Lock()
	defer im.mu.Unlock()

	if name, ok := im.translated[root]; ok {
		return nil, stage.Wrap(stage.ErrAlreadyProcessed, "Import", root, "imported as "+name, nil)
	}
	if _, err := os.Stat(marker); err != nil {
		return nil, err
	}
	frames, ok := im.finder.Frames(filepath.Dir(marker), root)
	if !ok {
		return nil, &fs.PathError{Op: "import frames", Path: marker, Err: fs.ErrNotExist}
	}

	number := im.last + 1
	name := fmt.Sprintf("%s_%06d", im.prefix, number)

	if err := fileutil.CopyFileVerified(marker, filepath.Join(im.destDir, name+filepath.Ext(marker))); err != nil {
		return nil, err
	}
	var forward []string
	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dst := filepath.Join(im.destDir, name+strings.TrimPrefix(filepath.Base(frame), root))
		if err := fileutil.CopyFileVerified(frame, dst); err != nil {
			return nil, err
		}
		forward = append(forward, dst)
	}
	if len(forward) == 0 {
		forward = append(forward, filepath.Join(im.destDir, name+filepath.Ext(marker)))
	}

	spot, err := im.spots.Number(SpotKey(root))
	if err != nil {
		return nil, err
	}
	line := fmt.Sprintf("%s\t%s\t%d\n", root, name, spot)
	if err := appendLine(im.translation, line); err != nil {
		return nil, err
	}
	im.translated[root] = name
	if err := writeLastNumber(im.numberPath, number); err != nil {
		return nil, err
	}
	im.last = number
	return forward, nil
}

func (im *Importer) loadTranslations() error {
	f, err := os.Open(im.translation)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		im.translated[fields[0]] = fields[1]
		if n, ok := parseNumber(fields[1], im.prefix); ok && n > im.last {
			im.last = n
		}
	}
	return scanner.Err()
}

func parseNumber(name, prefix string) (int, bool) {
	digits, ok := strings.CutPrefix(name, prefix+"_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	return n, err == nil
}

func readLastNumber(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return n, nil
}

func writeLastNumber(path string, n int) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(n)+"\n"), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
