package viz

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"server/internal/domain"
	"server/internal/infra"
)

// TypeMindmap identifies the Markdown mindmap strategy.
const TypeMindmap = "mindmap"

// Mindmaps benefit from some creative branching.
const mindmapTemperature = 0.7

// Markdown has six heading levels; deeper nodes are clamped to level 6.
const maxHeadingLevels = 6

// mindmapNode is the recursive intermediate schema: a title with an ordered
// sequence of children. Freshly decoded per request, so cycles cannot occur.
type mindmapNode struct {
	Title    string        `json:"title"`
	Children []mindmapNode `json:"children"`
}

var headingPattern = regexp.MustCompile(`(?m)^\s*#+\s.+`)

// MindmapStrategy generates Markdown mindmap content from a question.
type MindmapStrategy struct {
	gen    TextGenerator
	logger infra.Logger
	titler cases.Caser
}

func NewMindmapStrategy(gen TextGenerator, logger infra.Logger) *MindmapStrategy {
	return &MindmapStrategy{gen: gen, logger: logger, titler: cases.Title(language.English)}
}

func (s *MindmapStrategy) Generate(ctx context.Context, question string, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	dom := detectDomain(question)
	s.logger.Info().
		Str("type", TypeMindmap).
		Str("domain", dom).
		Str("complexity", opts.Complexity).
		Int("max_depth", opts.MaxDepth).
		Msg("starting generation")

	raw, err := s.gen.GenerateText(ctx, s.buildPrompt(question, dom, opts), mindmapTemperature)
	if err != nil {
		return nil, fmt.Errorf("mindmap generation: %w", err)
	}

	var root mindmapNode
	if err := decodeModelJSON(raw, &root); err != nil {
		return nil, err
	}
	if strings.TrimSpace(root.Title) == "" {
		return nil, domain.NewValidationError("mindmap root node has no title", nil)
	}

	markdown := renderMindmap(root, opts.MaxDepth)
	if !s.ValidateContent(markdown) {
		return nil, domain.NewValidationError("generated mindmap content is invalid", nil)
	}

	// Counts and depth are measured over the full parsed tree, before depth
	// pruning, so they reflect what the model proposed rather than what was
	// rendered.
	totalNodes := countNodes(root)
	actualDepth := treeDepth(root)
	s.logger.Info().
		Str("type", TypeMindmap).
		Int("total_nodes", totalNodes).
		Int("actual_depth", actualDepth).
		Msg("generation complete")

	return &Result{
		Type:    TypeMindmap,
		Content: markdown,
		Metadata: map[string]any{
			"total_nodes":         totalNodes,
			"actual_depth":        actualDepth,
			"requested_max_depth": opts.MaxDepth,
			"domain":              s.titler.String(dom),
		},
	}, nil
}

// ValidateContent requires at least one Markdown heading, a minimum useful
// size, and the renderer cost ceiling.
func (s *MindmapStrategy) ValidateContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 10 {
		return false
	}
	if !headingPattern.MatchString(content) {
		return false
	}
	return len(content) <= maxContentLength
}

func (s *MindmapStrategy) buildPrompt(question, dom string, opts Options) string {
	sb := &strings.Builder{}
	sb.WriteString(mindmapTemplate(dom))
	fmt.Fprintf(sb, "\nTopic: %s\n\n%s\n\nMaximum depth: %d levels.\n%s\n\n", question, mindmapJSONSchema, opts.MaxDepth, complexityGuidance(opts.Complexity))
	sb.WriteString("Return ONLY a valid JSON object, wrapped in ```json ... ``` markdown block.\n")
	sb.WriteString("Do NOT include any other text or explanation outside the JSON block.\n")
	return sb.String()
}

// renderMindmap walks the tree depth-first and emits one heading per node.
// Nodes at or beyond maxDepth are pruned from the output entirely; heading
// levels are capped at Markdown's six.
func renderMindmap(root mindmapNode, maxDepth int) string {
	var lines []string
	var walk func(node mindmapNode, depth int)
	walk = func(node mindmapNode, depth int) {
		if depth >= maxDepth {
			return
		}
		level := depth + 1
		if level > maxHeadingLevels {
			level = maxHeadingLevels
		}
		lines = append(lines, strings.Repeat("#", level)+" "+node.Title)
		for _, child := range node.Children {
			walk(child, depth+1)
		}
	}
	walk(root, 0)
	return strings.Join(lines, "\n")
}

func countNodes(node mindmapNode) int {
	count := 1
	for _, child := range node.Children {
		count += countNodes(child)
	}
	return count
}

func treeDepth(node mindmapNode) int {
	deepest := 0
	for _, child := range node.Children {
		if d := treeDepth(child); d > deepest {
			deepest = d
		}
	}
	return deepest + 1
}

var _ Strategy = (*MindmapStrategy)(nil)
