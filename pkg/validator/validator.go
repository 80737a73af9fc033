// Package validator validates image flow files before execution.
// It parses all files upfront and checks that every reference image loads.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/imagefinder/pkg/flow"
	"github.com/devicelab-dev/imagefinder/pkg/imagefinder"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Flows are the parsed flows that passed tag filtering, in argument order.
	Flows []*flow.Flow
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates flow files.
type Validator struct {
	imageDir    string
	includeTags []string
	excludeTags []string
	images      map[string]error // checked reference paths
}

// New creates a new Validator. imageDir is the workspace reference
// directory used for steps whose flow sets none.
func New(imageDir string, includeTags, excludeTags []string) *Validator {
	return &Validator{
		imageDir:    imageDir,
		includeTags: includeTags,
		excludeTags: excludeTags,
		images:      make(map[string]error),
	}
}

// Validate validates files and directories. Every file is checked so all
// errors are reported at once.
func (v *Validator) Validate(paths ...string) *Result {
	result := &Result{}
	seen := make(map[string]bool)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("cannot access: %v", err),
			})
			continue
		}

		files := []string{path}
		if info.IsDir() {
			files, err = collectFlowFiles(path)
			if err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					File:    path,
					Message: fmt.Sprintf("failed to scan directory: %v", err),
				})
				continue
			}
		}

		for _, file := range files {
			if seen[file] {
				continue
			}
			seen[file] = true
			v.validateFile(file, result)
		}
	}

	return result
}

// collectFlowFiles finds all .yaml/.yml files in a directory, skipping the
// workspace config.
func collectFlowFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) == "imagefinder" {
			return nil
		}
		files = append(files, path)
		return nil
	})

	return files, err
}

func (v *Validator) validateFile(filePath string, result *Result) {
	f, err := flow.ParseFile(filePath)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    filePath,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return
	}

	if !flow.ShouldIncludeFlow(f, v.includeTags, v.excludeTags) {
		return
	}

	valid := true
	for i, step := range f.Steps {
		img, ok := step.(flow.ImageStep)
		if !ok {
			continue
		}
		path := v.resolve(f, img.ImagePath())
		if err := v.checkImage(path); err != nil {
			valid = false
			result.Errors = append(result.Errors, &ValidationError{
				File:    filePath,
				Message: fmt.Sprintf("step %d (%s): reference %s: %v", i+1, step.Type(), path, err),
			})
		}
	}

	if valid {
		result.Flows = append(result.Flows, f)
	}
}

// resolve mirrors the lookup order used at run time: the flow's imageDir,
// then the workspace imageDir.
func (v *Validator) resolve(f *flow.Flow, ref string) string {
	path := f.ResolveImage(ref)
	if v.imageDir != "" && !filepath.IsAbs(path) {
		return filepath.Join(v.imageDir, path)
	}
	return path
}

func (v *Validator) checkImage(path string) error {
	if err, ok := v.images[path]; ok {
		return err
	}
	err := loadImage(path)
	v.images[path] = err
	return err
}

func loadImage(path string) error {
	data, err := os.ReadFile(path) //#nosec G304 -- path comes from a flow file
	if err != nil {
		return err
	}
	img, err := imagefinder.Decode(data)
	if err != nil {
		return err
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("image is empty")
	}
	return nil
}
