package flow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_SimpleFlow(t *testing.T) {
	yaml := `
- tapOnImage: login.png
- assertImageVisible:
    image: home.png
    timeout: 5000
- longPressOnImage:
    image: avatar.png
    duration: 1500
`
	flow, err := Parse([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(flow.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(flow.Steps))
	}

	tap, ok := flow.Steps[0].(*TapOnImageStep)
	if !ok {
		t.Fatalf("expected TapOnImageStep, got %T", flow.Steps[0])
	}
	if tap.Image != "login.png" {
		t.Errorf("expected image=login.png, got %q", tap.Image)
	}
	if !tap.ShouldWait() {
		t.Error("tapOnImage should wait by default")
	}

	assert, ok := flow.Steps[1].(*AssertImageVisibleStep)
	if !ok {
		t.Fatalf("expected AssertImageVisibleStep, got %T", flow.Steps[1])
	}
	if assert.Image != "home.png" || assert.TimeoutMs != 5000 {
		t.Errorf("unexpected assert step: %+v", assert)
	}

	press, ok := flow.Steps[2].(*LongPressOnImageStep)
	if !ok {
		t.Fatalf("expected LongPressOnImageStep, got %T", flow.Steps[2])
	}
	if press.DurationMs != 1500 {
		t.Errorf("expected duration=1500, got %d", press.DurationMs)
	}
}

func TestParse_WithConfig(t *testing.T) {
	yaml := `
name: Game Start
tags:
  - smoke
  - game
imageDir: images
similarity: 0.7
timeout: 30000
---
- tapOnImage: start.png
- wait: 1500
`
	flow, err := Parse([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if flow.Config.Name != "Game Start" {
		t.Errorf("expected name=Game Start, got %q", flow.Config.Name)
	}
	if flow.DisplayName() != "Game Start" {
		t.Errorf("DisplayName() = %q", flow.DisplayName())
	}
	if len(flow.Config.Tags) != 2 {
		t.Errorf("expected 2 tags, got %d", len(flow.Config.Tags))
	}
	if flow.Config.ImageDir != "images" {
		t.Errorf("expected imageDir=images, got %q", flow.Config.ImageDir)
	}
	if flow.Config.Similarity == nil || *flow.Config.Similarity != 0.7 {
		t.Errorf("expected similarity=0.7, got %v", flow.Config.Similarity)
	}
	if flow.Config.Timeout != 30000 {
		t.Errorf("expected timeout=30000, got %d", flow.Config.Timeout)
	}
	if len(flow.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(flow.Steps))
	}
}

func TestParse_AllStepTypes(t *testing.T) {
	testCases := []struct {
		name     string
		yaml     string
		stepType StepType
	}{
		{"tapOnImage scalar", `- tapOnImage: "a.png"`, StepTapOnImage},
		{"tapOnImage mapping", `- tapOnImage: {image: a.png, similarity: 0.9}`, StepTapOnImage},
		{"longPressOnImage", `- longPressOnImage: a.png`, StepLongPressOnImage},
		{"assertImageVisible", `- assertImageVisible: a.png`, StepAssertImageVisible},
		{"assertImageNotVisible", `- assertImageNotVisible: {image: a.png, timeout: 100}`, StepAssertImageNotVisible},
		{"waitForAnimationToEnd mapping", `- waitForAnimationToEnd: {timeout: 3000}`, StepWaitForAnimationToEnd},
		{"waitForAnimationToEnd empty", `- waitForAnimationToEnd:`, StepWaitForAnimationToEnd},
		{"waitForAnimationToEnd scalar", `- waitForAnimationToEnd`, StepWaitForAnimationToEnd},
		{"takeScreenshot", `- takeScreenshot: "screen.png"`, StepTakeScreenshot},
		{"takeScreenshot mapping", `- takeScreenshot: {path: screen.png}`, StepTakeScreenshot},
		{"wait scalar", `- wait: 500`, StepWait},
		{"wait mapping", `- wait: {duration: 500}`, StepWait},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			flow, err := Parse([]byte(tc.yaml), "test.yaml")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(flow.Steps) != 1 {
				t.Fatalf("expected 1 step, got %d", len(flow.Steps))
			}
			if flow.Steps[0].Type() != tc.stepType {
				t.Errorf("expected type %v, got %v", tc.stepType, flow.Steps[0].Type())
			}
		})
	}
}

func TestParse_OptionalAndLabel(t *testing.T) {
	yaml := `
- tapOnImage:
    image: close_ad.png
    optional: true
    label: Dismiss ad
    waitUntilVisible: false
`
	flow, err := Parse([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	step := flow.Steps[0].(*TapOnImageStep)
	if !step.IsOptional() {
		t.Error("expected optional step")
	}
	if step.Label() != "Dismiss ad" {
		t.Errorf("expected label 'Dismiss ad', got %q", step.Label())
	}
	if step.ShouldWait() {
		t.Error("waitUntilVisible: false should disable waiting")
	}
}

func TestParse_EmptyFlow(t *testing.T) {
	yaml := ""
	_, err := Parse([]byte(yaml), "test.yaml")
	if err == nil {
		t.Error("expected error for empty flow")
	}
	parseErr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected ParseError, got %T", err)
	}
	if parseErr.Message != "empty flow file" {
		t.Errorf("expected 'empty flow file' error, got %q", parseErr.Message)
	}
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name     string
		yaml     string
		line     int
		contains string
	}{
		{"unknown step", "- tapOn: Login", 1, "unknown step type: tapOn"},
		{"unknown scalar", "- tapOnImage: a.png\n- \"just a string\"", 2, "unknown step type"},
		{"missing image", "- tapOnImage: {similarity: 0.5}", 1, "requires an image"},
		{"empty image", "- assertImageVisible:", 1, "requires an image"},
		{"similarity range", "- tapOnImage: {image: a.png, similarity: 1.5}", 1, "similarity must be between 0 and 1"},
		{"wait not a number", "- wait: soon", 1, "wait expects milliseconds"},
		{"negative wait", "- wait: -5", 1, "must not be negative"},
		{"negative timeout", "- assertImageVisible: {image: a.png, timeout: -1}", 1, "must not be negative"},
		{"screenshot without name", "- takeScreenshot:", 1, "requires a file name"},
		{"two commands", "- tapOnImage: a.png\n  wait: 100", 1, "exactly one command"},
		{"not a mapping", "- [a, b]", 1, "step must be a mapping"},
		{"line after config", "name: x\n---\n- wait: 1\n- zoom: in", 4, "unknown step type: zoom"},
		{"config similarity", "similarity: 2\n---\n- wait: 1", 1, "similarity must be between 0 and 1"},
		{"three documents", "name: x\n---\n- wait: 1\n---\n- wait: 2", 5, "at most"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml), "test.yaml")
			parseErr, ok := err.(*ParseError)
			if !ok {
				t.Fatalf("expected ParseError, got %T (%v)", err, err)
			}
			if !strings.Contains(parseErr.Message, tc.contains) {
				t.Errorf("expected message containing %q, got %q", tc.contains, parseErr.Message)
			}
			if parseErr.Line != tc.line {
				t.Errorf("expected line %d, got %d", tc.line, parseErr.Line)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	yaml := `
- tapOnImage: [invalid
  yaml: structure
`
	_, err := Parse([]byte(yaml), "test.yaml")
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestParseError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      ParseError
		expected string
	}{
		{
			name:     "with line number",
			err:      ParseError{Path: "test.yaml", Line: 10, Message: "invalid syntax"},
			expected: "test.yaml:10: invalid syntax",
		},
		{
			name:     "without line number",
			err:      ParseError{Path: "test.yaml", Line: 0, Message: "file error"},
			expected: "test.yaml: file error",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.expected {
				t.Errorf("Error()=%q, want %q", got, tc.expected)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")

	content := `- tapOnImage: play.png`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	flow, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(flow.Steps) != 1 {
		t.Errorf("expected 1 step, got %d", len(flow.Steps))
	}
	if flow.SourcePath != path {
		t.Errorf("expected sourcePath=%q, got %q", path, flow.SourcePath)
	}
	if flow.DisplayName() != path {
		t.Errorf("DisplayName() without name = %q, want %q", flow.DisplayName(), path)
	}
}

func TestParseFile_NotFound(t *testing.T) {
	_, err := ParseFile("/nonexistent/path/flow.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestParseDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"login.yaml":        "tags: [smoke]\n---\n- tapOnImage: a.png\n",
		"shop.yml":          "tags: [slow]\n---\n- tapOnImage: b.png\n",
		"sub/settings.yaml": "- wait: 10\n",
		"imagefinder.yaml":  "similarity: 0.9\n",
		"notes.txt":         "not a flow",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		os.MkdirAll(filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	flows, err := ParseDirectory(dir, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flows) != 3 {
		t.Errorf("expected 3 flows, got %d", len(flows))
	}

	flows, err = ParseDirectory(dir, nil, []string{"slow"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flows) != 2 {
		t.Errorf("expected 2 flows without slow, got %d", len(flows))
	}

	flows, err = ParseDirectory(dir, []string{"smoke"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(flows) != 1 || filepath.Base(flows[0].SourcePath) != "login.yaml" {
		t.Errorf("expected only login.yaml, got %d flows", len(flows))
	}
}

func TestParseDirectory_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("- tapOn: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseDirectory(dir, nil, nil); err == nil {
		t.Error("expected error for invalid flow in directory")
	}
}

func TestParseDirectory_NonExistent(t *testing.T) {
	if _, err := ParseDirectory("/nonexistent/dir", nil, nil); err == nil {
		t.Error("expected error for nonexistent directory")
	}
}

func TestShouldIncludeFlow(t *testing.T) {
	tests := []struct {
		name        string
		flowTags    []string
		includeTags []string
		excludeTags []string
		expected    bool
	}{
		{"no filters", []string{"smoke", "login"}, nil, nil, true},
		{"include match", []string{"smoke", "login"}, []string{"smoke"}, nil, true},
		{"include no match", []string{"regression"}, []string{"smoke"}, nil, false},
		{"exclude match", []string{"smoke", "slow"}, nil, []string{"slow"}, false},
		{"include and exclude", []string{"smoke", "slow"}, []string{"smoke"}, []string{"slow"}, false},
		{"empty flow tags with include filter", []string{}, []string{"smoke"}, nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			flow := &Flow{Config: Config{Tags: tc.flowTags}}
			got := ShouldIncludeFlow(flow, tc.includeTags, tc.excludeTags)
			if got != tc.expected {
				t.Errorf("ShouldIncludeFlow()=%v, want %v", got, tc.expected)
			}
		})
	}
}

func TestSplitYAMLDocuments(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		expected  int
		lastStart int
	}{
		{"single document", "- wait: 1", 1, 1},
		{"two documents", "name: x\n---\n- wait: 1", 2, 3},
		{"leading separator", "---\nname: x\n---\n- wait: 1", 2, 4},
		{"empty content", "", 0, 0},
		{"whitespace only", "   \n  \n  ", 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parts := splitYAMLDocuments(tc.content)
			if len(parts) != tc.expected {
				t.Fatalf("splitYAMLDocuments() returned %d parts, want %d", len(parts), tc.expected)
			}
			if len(parts) > 0 && parts[len(parts)-1].line != tc.lastStart {
				t.Errorf("last part starts at line %d, want %d", parts[len(parts)-1].line, tc.lastStart)
			}
		})
	}
}

func TestFlow_ResolveImage(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name     string
		imageDir string
		ref      string
		want     string
	}{
		{"no imageDir", "", "a.png", "a.png"},
		{"relative imageDir", "images", "a.png", filepath.Join(dir, "images", "a.png")},
		{"absolute imageDir", "/refs", "a.png", "/refs/a.png"},
		{"absolute ref", "images", "/abs/a.png", "/abs/a.png"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := &Flow{SourcePath: filepath.Join(dir, "flow.yaml"), Config: Config{ImageDir: tc.imageDir}}
			if got := f.ResolveImage(tc.ref); got != tc.want {
				t.Errorf("ResolveImage(%q) = %q, want %q", tc.ref, got, tc.want)
			}
		})
	}
}
