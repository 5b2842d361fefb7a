package viz

import "strings"

// Question domains recognized by the mindmap template selector.
const (
	domainComparison = "comparison"
	domainLearning   = "learning"
	domainBusiness   = "business"
	domainTechnical  = "technical"
	domainGeneral    = "general"
)

var domainKeywords = []struct {
	domain   string
	keywords []string
}{
	{domainComparison, []string{"compare", "vs", "versus", "difference"}},
	{domainLearning, []string{"learn", "explain", "understand", "teach"}},
	{domainBusiness, []string{"process", "workflow", "procedure", "steps"}},
	{domainTechnical, []string{"how does", "technical", "system", "architecture"}},
}

// detectDomain picks a prompt template family by scanning the question for
// category keywords. First match wins; unknown questions fall back to the
// general template.
func detectDomain(question string) string {
	q := strings.ToLower(question)
	for _, entry := range domainKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(q, kw) {
				return entry.domain
			}
		}
	}
	return domainGeneral
}

// complexityGuidance translates the requested complexity level into prompt
// guidance. Unknown levels get the balanced default.
func complexityGuidance(complexity string) string {
	switch strings.ToLower(complexity) {
	case "simple":
		return "Keep it high-level: 2-3 main branches, maximum 2 levels deep, 2-5 words per label."
	case "balanced":
		return "Provide a balanced view: 3-5 main branches, moderate detail, 3-4 levels deep, 3-7 words per label."
	case "detailed":
		return "Be comprehensive: 4-6 main branches, detailed explanations with examples, 5-6 levels deep, 4-10 words per label."
	default:
		return "Provide a balanced view with good detail."
	}
}

const mindmapJSONSchema = `Your output MUST be a valid JSON object that adheres to the following schema:
` + "```json" + `
{
  "title": "The central topic of the mindmap",
  "children": [
    {
      "title": "A sub-topic or main branch",
      "children": [
        {
          "title": "A nested sub-topic",
          "children": []
        }
      ]
    }
  ]
}
` + "```" + `
- The root object must have a "title" and a "children" property.
- Each node in the "children" array must also have a "title" and a "children" property.
- The "children" property is an array of nodes, which can be empty.`

// Per-domain branch suggestions interpolated into the mindmap prompt.
var mindmapBranches = map[string]string{
	domainTechnical: `You are an expert at explaining complex technical concepts as a mindmap.
Suggested main branches for a technical concept:
- Definition
- Key Components
- How It Works
- Use Cases
- Advantages/Disadvantages
- Related Concepts`,
	domainBusiness: `You are an expert at outlining business processes as a mindmap.
Suggested main branches for a business process:
- Overview
- Stakeholders
- Process Steps (sequential flow)
- Inputs/Outputs
- Success Metrics
- Potential Challenges`,
	domainLearning: `You are an expert educator, creating mindmaps for effective learning.
Suggested main branches for a learning topic:
- Core Concepts
- Key Terminology
- Relationships & Connections
- Practical Applications
- Common Misconceptions
- Further Reading/Resources`,
	domainComparison: `You are an expert at structured comparison, presenting differences and similarities as a mindmap.
Suggested main branches for a comparison:
- Overview of the compared subjects
- Key Similarities
- Key Differences (e.g., based on features, use cases, performance, cost)
- Pros and Cons of each subject
- Recommendation/Conclusion`,
}

// mindmapTemplate returns the domain-specific intro. The general domain
// reuses the technical template, matching the historical default.
func mindmapTemplate(domain string) string {
	if branches, ok := mindmapBranches[domain]; ok {
		return branches
	}
	return mindmapBranches[domainTechnical]
}
