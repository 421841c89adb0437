// Package manifest handles ngen.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project configuration file.
const FileName = "ngen.toml"

// Manifest represents an ngen.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Output  Output  `toml:"output"`
	Native  Native  `toml:"native"`
	Build   Build   `toml:"build"`

	// Snippets replaces code templates by name, e.g. TRYCATCH.
	Snippets map[string]string `toml:"snippets"`

	// Dir is the directory containing the ngen.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Output configures where artifacts go.
type Output struct {
	Dir    string `toml:"dir"`
	Report *bool  `toml:"report"`
}

// Native configures the generated runtime package.
type Native struct {
	// Dir is the internal package of the placeholder and companion
	// classes, e.g. "native0".
	Dir string `toml:"dir"`
}

// Build configures which classes are translated and how.
type Build struct {
	Parallelism int      `toml:"parallelism"`
	Include     []string `toml:"include"` // internal-name prefixes
	Exclude     []string `toml:"exclude"`
}

// Default returns the configuration used when no ngen.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

// Load parses an ngen.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration file at path. Relative output paths
// are resolved against the file's directory.
func LoadFile(path string) (*Manifest, error) {
	dir := filepath.Dir(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()
	if m.Build.Parallelism < 0 {
		return nil, fmt.Errorf("%s: build.parallelism must not be negative", path)
	}
	if strings.ContainsAny(m.Native.Dir, ". ") || strings.HasPrefix(m.Native.Dir, "/") {
		return nil, fmt.Errorf("%s: native.dir %q is not an internal package name", path, m.Native.Dir)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Output.Dir == "" {
		m.Output.Dir = "native"
	}
	if m.Output.Report == nil {
		on := true
		m.Output.Report = &on
	}
	if m.Native.Dir == "" {
		m.Native.Dir = "native0"
	}
	if m.Build.Parallelism == 0 {
		m.Build.Parallelism = runtime.GOMAXPROCS(0)
	}
}

// FindAndLoad walks up from startDir to find an ngen.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// OutputDir returns the absolute artifact directory.
func (m *Manifest) OutputDir() string {
	if filepath.IsAbs(m.Output.Dir) {
		return m.Output.Dir
	}
	return filepath.Join(m.Dir, m.Output.Dir)
}

// WriteReports reports whether side-car reports are written.
func (m *Manifest) WriteReports() bool {
	return m.Output.Report == nil || *m.Output.Report
}

// Accepts reports whether the class with the given internal name is
// translated. Exclusions win over inclusions; an empty include list
// accepts everything.
func (m *Manifest) Accepts(className string) bool {
	for _, p := range m.Build.Exclude {
		if strings.HasPrefix(className, p) {
			return false
		}
	}
	if len(m.Build.Include) == 0 {
		return true
	}
	for _, p := range m.Build.Include {
		if strings.HasPrefix(className, p) {
			return true
		}
	}
	return false
}
