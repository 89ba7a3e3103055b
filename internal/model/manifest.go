package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ManifestFile is the optional manifest name inside a model directory.
const ManifestFile = "models.toml"

// Default artifact names used when a directory has no manifest.
const (
	DefaultFogFile        = "skycastle_fog.json"
	DefaultCastleFile     = "skycastle_castle.json"
	DefaultCalibratorFile = "skycastle_event_calibrator.json"
)

// Entry locates one artifact relative to the model directory.
type Entry struct {
	Path string `toml:"path"`
}

// Manifest lists the artifacts of one model set.
type Manifest struct {
	Version    string `toml:"version"`
	Fog        Entry  `toml:"fog"`
	Castle     Entry  `toml:"castle"`
	Calibrator *Entry `toml:"calibrator"`
}

// DefaultManifest is used for directories without models.toml.
func DefaultManifest() Manifest {
	return Manifest{
		Version:    "unversioned",
		Fog:        Entry{Path: DefaultFogFile},
		Castle:     Entry{Path: DefaultCastleFile},
		Calibrator: &Entry{Path: DefaultCalibratorFile},
	}
}

// LoadManifest reads dir/models.toml, falling back to DefaultManifest when the
// file does not exist. Unknown keys are rejected.
func LoadManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return DefaultManifest(), nil
	}

	var m Manifest
	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		return Manifest{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Manifest{}, fmt.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if m.Fog.Path == "" || m.Castle.Path == "" {
		return Manifest{}, fmt.Errorf("%s: fog.path and castle.path are required", path)
	}
	if m.Calibrator != nil && m.Calibrator.Path == "" {
		m.Calibrator = nil
	}
	return m, nil
}

// WriteManifest writes m to dir/models.toml.
func WriteManifest(dir string, m Manifest) error {
	f, err := os.Create(filepath.Join(dir, ManifestFile))
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(m)
}

func (m Manifest) resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
