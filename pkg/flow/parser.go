package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single YAML flow file.
func ParseFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided flow file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses flow YAML content. An optional config document may precede
// the step list, separated by "---".
func Parse(data []byte, sourcePath string) (*Flow, error) {
	parts := splitYAMLDocuments(string(data))

	flow := &Flow{
		SourcePath: sourcePath,
	}

	switch len(parts) {
	case 0:
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "empty flow file",
		}
	case 1:
		if err := parseSteps(parts[0], flow); err != nil {
			return nil, err
		}
	case 2:
		if err := parseConfig(parts[0], flow); err != nil {
			return nil, err
		}
		if err := parseSteps(parts[1], flow); err != nil {
			return nil, err
		}
	default:
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    parts[2].line,
			Message: "expected at most a config document and a step list",
		}
	}

	return flow, nil
}

// document is one "---" separated section and the line it starts on.
type document struct {
	content string
	line    int
}

func splitYAMLDocuments(content string) []document {
	var parts []document
	var current strings.Builder
	start := 1

	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			parts = append(parts, document{content: current.String(), line: start})
		}
		current.Reset()
	}

	for i, line := range strings.Split(content, "\n") {
		if strings.TrimRight(line, " \t\r") == "---" {
			flush()
			start = i + 2
			continue
		}
		// Pad with the preceding lines so yaml.Node line numbers match the file.
		if current.Len() == 0 {
			current.WriteString(strings.Repeat("\n", i))
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	return parts
}

func parseConfig(doc document, flow *Flow) error {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(doc.content), &node); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Message: fmt.Sprintf("invalid config: %v", err),
		}
	}

	var config Config
	if err := node.Decode(&config); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Line:    node.Line,
			Message: fmt.Sprintf("invalid config: %v", err),
		}
	}
	if config.Similarity != nil {
		if msg := checkSimilarity(*config.Similarity); msg != "" {
			return &ParseError{Path: flow.SourcePath, Line: doc.line, Message: msg}
		}
	}

	flow.Config = config
	return nil
}

func parseSteps(doc document, flow *Flow) error {
	var rawSteps []yaml.Node
	if err := yaml.Unmarshal([]byte(doc.content), &rawSteps); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Message: fmt.Sprintf("invalid steps: %v", err),
		}
	}

	for i := range rawSteps {
		step, err := parseStep(&rawSteps[i], flow.SourcePath)
		if err != nil {
			return err
		}
		flow.Steps = append(flow.Steps, step)
	}

	return nil
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	errorf := func(n *yaml.Node, format string, args ...interface{}) error {
		return &ParseError{
			Path:    sourcePath,
			Line:    n.Line,
			Message: fmt.Sprintf(format, args...),
		}
	}

	// Handle scalar nodes like "- waitForAnimationToEnd" (no colon, no params)
	if node.Kind == yaml.ScalarNode {
		if !isStepType(node.Value) {
			return nil, errorf(node, "unknown step type: %s", node.Value)
		}
		emptyNode := &yaml.Node{Kind: yaml.MappingNode, Line: node.Line}
		return decodeStep(StepType(node.Value), emptyNode, errorf)
	}

	if node.Kind != yaml.MappingNode {
		return nil, errorf(node, "step must be a mapping or command name")
	}

	if len(node.Content) != 2 {
		return nil, errorf(node, "step must have exactly one command")
	}
	key, valueNode := node.Content[0], node.Content[1]
	if !isStepType(key.Value) {
		return nil, errorf(key, "unknown step type: %s", key.Value)
	}

	return decodeStep(StepType(key.Value), valueNode, errorf)
}

func isStepType(key string) bool {
	switch StepType(key) {
	case StepTapOnImage, StepLongPressOnImage,
		StepAssertImageVisible, StepAssertImageNotVisible,
		StepWaitForAnimationToEnd, StepTakeScreenshot, StepWait:
		return true
	}
	return false
}

type errorfFunc func(n *yaml.Node, format string, args ...interface{}) error

func decodeStep(stepType StepType, valueNode *yaml.Node, errorf errorfFunc) (Step, error) {
	// "- tapOnImage:" with nothing after the colon
	if valueNode.Kind == yaml.ScalarNode && valueNode.Tag == "!!null" {
		valueNode = &yaml.Node{Kind: yaml.MappingNode, Line: valueNode.Line}
	}

	var step Step
	var target *ImageTarget
	var base *BaseStep

	switch stepType {
	case StepTapOnImage:
		s := &TapOnImageStep{}
		step, target, base = s, &s.ImageTarget, &s.BaseStep
	case StepLongPressOnImage:
		s := &LongPressOnImageStep{}
		step, target, base = s, &s.ImageTarget, &s.BaseStep
	case StepAssertImageVisible:
		s := &AssertImageVisibleStep{}
		step, target, base = s, &s.ImageTarget, &s.BaseStep
	case StepAssertImageNotVisible:
		s := &AssertImageNotVisibleStep{}
		step, target, base = s, &s.ImageTarget, &s.BaseStep

	case StepTakeScreenshot:
		s := &TakeScreenshotStep{}
		if valueNode.Kind == yaml.ScalarNode {
			s.Path = valueNode.Value
		} else if err := valueNode.Decode(s); err != nil {
			return nil, errorf(valueNode, "%v", err)
		}
		if s.Path == "" {
			return nil, errorf(valueNode, "takeScreenshot requires a file name")
		}
		s.StepType = stepType
		return s, nil

	case StepWait:
		s := &WaitStep{}
		if valueNode.Kind == yaml.ScalarNode {
			ms, err := strconv.Atoi(valueNode.Value)
			if err != nil {
				return nil, errorf(valueNode, "wait expects milliseconds, got %q", valueNode.Value)
			}
			s.DurationMs = ms
		} else if err := valueNode.Decode(s); err != nil {
			return nil, errorf(valueNode, "%v", err)
		}
		if s.DurationMs < 0 {
			return nil, errorf(valueNode, "wait duration must not be negative")
		}
		s.StepType = stepType
		return s, nil

	case StepWaitForAnimationToEnd:
		s := &WaitForAnimationToEndStep{}
		if err := valueNode.Decode(s); err != nil {
			return nil, errorf(valueNode, "%v", err)
		}
		s.StepType = stepType
		return s, nil

	default:
		return nil, errorf(valueNode, "unknown step type: %s", stepType)
	}

	// Image steps: "- tapOnImage: login.png" or a mapping with image.
	if valueNode.Kind == yaml.ScalarNode {
		target.Image = valueNode.Value
	} else if err := valueNode.Decode(step); err != nil {
		return nil, errorf(valueNode, "%v", err)
	}
	if target.Image == "" {
		return nil, errorf(valueNode, "%s requires an image", stepType)
	}
	if target.Similarity != nil {
		if msg := checkSimilarity(*target.Similarity); msg != "" {
			return nil, errorf(valueNode, "%s", msg)
		}
	}
	if base.TimeoutMs < 0 {
		return nil, errorf(valueNode, "timeout must not be negative")
	}
	base.StepType = stepType
	return step, nil
}

func checkSimilarity(s float64) string {
	if !(s >= 0 && s <= 1) {
		return fmt.Sprintf("similarity must be between 0 and 1, got %v", s)
	}
	return ""
}

// ParseDirectory parses all YAML files in a directory.
func ParseDirectory(dir string, includeTags, excludeTags []string) ([]*Flow, error) {
	var flows []*Flow

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
		// Workspace config lives next to flows.
		if base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)); base == "imagefinder" {
			return nil
		}

		flow, parseErr := ParseFile(path)
		if parseErr != nil {
			return parseErr
		}

		if ShouldIncludeFlow(flow, includeTags, excludeTags) {
			flows = append(flows, flow)
		}
		return nil
	})

	return flows, err
}

// ShouldIncludeFlow checks if a flow matches tag filters.
func ShouldIncludeFlow(flow *Flow, includeTags, excludeTags []string) bool {
	if len(includeTags) > 0 && !hasAnyTag(flow.Config.Tags, includeTags) {
		return false
	}
	return !hasAnyTag(flow.Config.Tags, excludeTags)
}

func hasAnyTag(tags, wanted []string) bool {
	for _, tag := range tags {
		for _, w := range wanted {
			if tag == w {
				return true
			}
		}
	}
	return false
}
