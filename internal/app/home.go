package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/vk/conflux/internal/property"
)

// Home is the set of well-known directories exposed to configuration as
// properties.
type Home struct {
	Root   string
	Config string
	Data   string
	Cache  string
	Log    string
}

// HomeAt lays out the home directories below root.
func HomeAt(root string) Home {
	return Home{
		Root:   root,
		Config: filepath.Join(root, "config"),
		Data:   filepath.Join(root, "data"),
		Cache:  filepath.Join(root, "cache"),
		Log:    filepath.Join(root, "log"),
	}
}

// Properties returns the home directories by property name.
func (h Home) Properties() property.Map {
	return property.Map{
		"home":       h.Root,
		"configHome": h.Config,
		"dataHome":   h.Data,
		"cacheHome":  h.Cache,
		"logHome":    h.Log,
	}
}

// ensure creates the directories that are set.
func (h Home) ensure(fs afero.Fs) error {
	for _, dir := range []string{h.Config, h.Data, h.Cache, h.Log} {
		if dir == "" {
			continue
		}
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating home directory %s: %w", dir, err)
		}
	}
	return nil
}
