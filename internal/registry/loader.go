package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"inferd/internal/common/fsutil"
)

// ModelFile is a model weights file discovered on disk.
type ModelFile struct {
	// ID is the bare filename without extension, e.g. "tinyllama-q4".
	ID string
	// Path is the absolute file path.
	Path string
}

// Discover scans dir for *.gguf files (case-insensitive) and returns them
// sorted by ID. A leading '~' in dir is expanded.
func Discover(dir string) ([]ModelFile, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var files []ModelFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if !strings.EqualFold(ext, ".gguf") {
			continue
		}
		files = append(files, ModelFile{
			ID:   strings.TrimSuffix(name, ext),
			Path: filepath.Join(abs, name),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	return files, nil
}

// Resolve maps a configured model path to a concrete weights file. A path
// naming a file resolves to itself. A path naming a directory is scanned;
// modelID picks the matching file, and an empty modelID is allowed only
// when the directory holds exactly one model.
func Resolve(path, modelID string) (ModelFile, error) {
	expanded, err := fsutil.ExpandHome(path)
	if err != nil {
		return ModelFile{}, err
	}
	if !fsutil.IsDir(expanded) {
		if !fsutil.PathExists(expanded) {
			return ModelFile{}, fmt.Errorf("model path %s does not exist", path)
		}
		name := filepath.Base(expanded)
		return ModelFile{
			ID:   strings.TrimSuffix(name, filepath.Ext(name)),
			Path: expanded,
		}, nil
	}

	files, err := Discover(expanded)
	if err != nil {
		return ModelFile{}, err
	}
	if len(files) == 0 {
		return ModelFile{}, fmt.Errorf("no .gguf models under %s", path)
	}
	if modelID == "" {
		if len(files) > 1 {
			return ModelFile{}, fmt.Errorf("%d models under %s, set model_id to pick one", len(files), path)
		}
		return files[0], nil
	}
	want := strings.TrimSuffix(modelID, filepath.Ext(modelID))
	for _, f := range files {
		if f.ID == want {
			return f, nil
		}
	}
	return ModelFile{}, fmt.Errorf("model %q not found under %s", modelID, path)
}
