package viz

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"server/internal/domain"
	"server/internal/infra"
)

// TypeFlowchart identifies the Mermaid flowchart strategy.
const TypeFlowchart = "flowchart"

// Flowcharts want precise, repeatable structure over creativity.
const flowchartTemperature = 0.4

// flowchartDiagram is the intermediate schema the model must produce before
// it is rendered into Mermaid.
type flowchartDiagram struct {
	Type      string          `json:"type"`
	Direction string          `json:"direction"`
	Nodes     []flowchartNode `json:"nodes"`
	Edges     []flowchartEdge `json:"edges"`
}

type flowchartNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Shape string `json:"shape"`
}

type flowchartEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

// Mermaid open/close delimiters per node shape. The original source
// disagreed with itself about start/end; the mapping fixed here is
// start ([..]), end ((..)).
var flowchartShapes = map[string][2]string{
	"start":       {"([", "])"},
	"end":         {"((", "))"},
	"decision":    {"{", "}"},
	"inputoutput": {"[/", "/]"},
	"process":     {"[", "]"},
	"default":     {"[", "]"},
}

// FlowchartStrategy generates Mermaid flowchart code from a question.
type FlowchartStrategy struct {
	gen    TextGenerator
	logger infra.Logger
}

func NewFlowchartStrategy(gen TextGenerator, logger infra.Logger) *FlowchartStrategy {
	return &FlowchartStrategy{gen: gen, logger: logger}
}

func (s *FlowchartStrategy) Generate(ctx context.Context, question string, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	s.logger.Info().Str("type", TypeFlowchart).Str("complexity", opts.Complexity).Msg("starting generation")

	raw, err := s.gen.GenerateText(ctx, s.buildPrompt(question, opts), flowchartTemperature)
	if err != nil {
		return nil, fmt.Errorf("flowchart generation: %w", err)
	}

	var diagram flowchartDiagram
	if err := decodeModelJSON(raw, &diagram); err != nil {
		return nil, err
	}

	code := renderFlowchart(diagram)
	if !s.ValidateContent(code) {
		return nil, domain.NewValidationError("generated flowchart content is invalid", nil)
	}

	s.logger.Info().Str("type", TypeFlowchart).Int("chars", len(code)).Msg("generation complete")
	return &Result{
		Type:    TypeFlowchart,
		Content: code,
		Metadata: map[string]any{
			"node_count": len(diagram.Nodes),
			"edge_count": len(diagram.Edges),
		},
	}, nil
}

// ValidateContent checks the structural marker, a minimum useful size, and
// the renderer cost ceiling.
func (s *FlowchartStrategy) ValidateContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 10 {
		return false
	}
	if !strings.HasPrefix(trimmed, "flowchart") {
		return false
	}
	return len(content) <= maxContentLength
}

func (s *FlowchartStrategy) buildPrompt(question string, opts Options) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, `You are an expert technical explainer and diagram designer.
The user is asking: %q.

Your task is to design a clear, high-level flow of how this works and represent that flow as a JSON object.
This JSON will then be used to generate a Mermaid flowchart.

JSON schema:
`+"```json"+`
{
  "type": "flowchart",
  "direction": "TD" | "LR",
  "nodes": [
    {"id": "A1", "label": "Start Node Label", "shape": "start"},
    {"id": "B1", "label": "Process Step", "shape": "process"},
    {"id": "C1", "label": "Decision Point", "shape": "decision"},
    {"id": "D1", "label": "End Node Label", "shape": "end"}
  ],
  "edges": [
    {"from": "A1", "to": "B1", "label": "optional edge label"}
  ]
}
`+"```"+`
Supported node shapes: "start", "end", "decision", "inputoutput", "process" (also the default).

Important:
- Respond with valid, parseable JSON only.
- Wrap the JSON in a `+"```json ... ```"+` markdown block.
- Do NOT include any text before or after the JSON block.
- Ensure node IDs are unique and alphanumeric.
- %s
`, question, complexityGuidance(opts.Complexity))
	return sb.String()
}

// renderFlowchart converts the decoded diagram into Mermaid flowchart code.
// Rendering is deterministic: identical input yields byte-identical output.
func renderFlowchart(d flowchartDiagram) string {
	direction := strings.TrimSpace(d.Direction)
	if direction != "TD" && direction != "LR" {
		direction = "TD"
	}

	lines := []string{"flowchart " + direction}

	for _, node := range d.Nodes {
		safeID := sanitizeNodeID(node.ID)
		if safeID == "" {
			continue
		}
		label := escapeLabel(strings.TrimSpace(node.Label))
		if label == "" {
			label = safeID
		}
		shape, ok := flowchartShapes[strings.ToLower(strings.TrimSpace(node.Shape))]
		if !ok {
			shape = flowchartShapes["default"]
		}
		lines = append(lines, fmt.Sprintf("%s%s\"%s\"%s", safeID, shape[0], label, shape[1]))
	}

	for _, edge := range d.Edges {
		src := sanitizeNodeID(edge.From)
		dst := sanitizeNodeID(edge.To)
		if src == "" || dst == "" {
			continue
		}
		if label := strings.TrimSpace(edge.Label); label != "" {
			lines = append(lines, fmt.Sprintf("%s -->|\"%s\"| %s", src, escapeLabel(label), dst))
		} else {
			lines = append(lines, fmt.Sprintf("%s --> %s", src, dst))
		}
	}

	// Nothing survived sanitization: emit a fixed placeholder diagram
	// instead of an empty header.
	if len(lines) == 1 {
		lines = append(lines,
			`A(["Unable to build diagram"])`,
			`A --> B(("Please refine your question"))`,
		)
	}

	return strings.Join(lines, "\n")
}

// sanitizeNodeID keeps letters, digits and underscores so ids are safe in
// Mermaid syntax. An id that sanitizes to the empty string disqualifies its
// node and any edge that references it.
func sanitizeNodeID(id string) string {
	var sb strings.Builder
	for _, ch := range strings.TrimSpace(id) {
		if ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			sb.WriteRune(ch)
		}
	}
	return sb.String()
}

// escapeLabel neutralizes double quotes, which would otherwise terminate the
// Mermaid label early.
func escapeLabel(label string) string {
	return strings.ReplaceAll(label, `"`, "&quot;")
}

var _ Strategy = (*FlowchartStrategy)(nil)
