// Package flow handles parsing and representation of image-driven YAML flow files.
package flow

import "path/filepath"

// Flow represents a parsed flow file.
type Flow struct {
	SourcePath string // Path to the source file
	Config     Config // Flow configuration (name, tags, etc.)
	Steps      []Step // Steps to execute
}

// Config represents flow-level configuration.
type Config struct {
	Name       string   `yaml:"name"`
	Tags       []string `yaml:"tags"`
	ImageDir   string   `yaml:"imageDir"`   // Reference images, relative to the flow file
	Similarity *float64 `yaml:"similarity"` // Default threshold for this flow's steps
	Timeout    int      `yaml:"timeout"`    // Default wait timeout in ms
}

// DisplayName returns the configured name, or the source path.
func (f *Flow) DisplayName() string {
	if f.Config.Name != "" {
		return f.Config.Name
	}
	return f.SourcePath
}

// ResolveImage resolves ref against the flow's imageDir, which is relative
// to the flow file. Without an imageDir, or for absolute refs, ref is
// returned unchanged.
func (f *Flow) ResolveImage(ref string) string {
	dir := f.Config.ImageDir
	if dir == "" || filepath.IsAbs(ref) {
		return ref
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(f.SourcePath), dir)
	}
	path := filepath.Join(dir, ref)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
