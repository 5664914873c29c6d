package export

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redhist/redhist/pkg/model"
)

// Items writes history items to path as an indented JSON array. The write
// is atomic: the data goes to a temporary file in the destination
// directory which is renamed into place, so a failure never leaves a
// partial file.
func Items(path string, items []*model.HistoryItem) error {
	if items == nil {
		items = []*model.HistoryItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode items")
	}
	return writeAtomic(path, data)
}

// ReadItems re-imports an export file written by Items.
func ReadItems(path string) ([]*model.HistoryItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read export file", goerr.V("path", path))
	}

	var items []*model.HistoryItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, goerr.Wrap(err, "failed to parse export file", goerr.V("path", path))
	}
	return items, nil
}

// Analysis writes an analysis result to path as an indented JSON document,
// atomically.
func Analysis(path string, analysis *model.AnalysisResult) error {
	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode analysis")
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".redhist-*.tmp")
	if err != nil {
		return goerr.Wrap(model.ErrWrite, "failed to create temporary file",
			goerr.V("dir", dir), goerr.V("cause", err.Error()))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return goerr.Wrap(model.ErrWrite, "failed to write export data",
			goerr.V("path", path), goerr.V("cause", err.Error()))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return goerr.Wrap(model.ErrWrite, "failed to flush export data",
			goerr.V("path", path), goerr.V("cause", err.Error()))
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return goerr.Wrap(model.ErrWrite, "failed to move export into place",
			goerr.V("path", path), goerr.V("cause", err.Error()))
	}
	return nil
}
