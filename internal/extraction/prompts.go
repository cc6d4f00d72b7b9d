package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"clinical-review-backend/internal/analysis"
)

const truncationMarker = "\n[document truncated]"

// Context carries caller metadata embedded in the prompt.
type Context struct {
	FileName   string
	Priority   string
	PatientRef string
	Notes      string
	Model      string
}

const systemPrompt = `You are a clinical documentation specialist for home health agencies.
Return ONLY one JSON object, no markdown, no commentary.
The object has two keys: "confidence" (a number between 0 and 1 describing how well the document supported your answers) and "results".
"results" MUST match the provided JSON shape exactly: same keys, same nesting, same value types.
Use "" for unknown strings, 0 for unknown numbers and [] for empty lists. Never invent patient data that the document does not contain.`

var taskInstructions = map[analysis.Type]string{
	analysis.TypeQAReview: `Perform a quality-assurance review of the clinical document.
Check regulatory compliance, documentation completeness and clarity, clinical consistency between sections,
whether each functional assessment answer is supported by the narrative, and patient risk flags.
List every finding with its severity and give prioritized recommendations.`,
	analysis.TypeCodingReview: `Perform a diagnosis coding review of the clinical document.
Validate the primary ICD-10-CM diagnosis against the narrative and suggest a more specific code with alternatives when warranted.
Review sequencing, secondary diagnoses and their comorbidity tiers, missing diagnoses supported by documentation,
concrete corrections, and the effect on clinical grouping and case-mix weight.`,
	analysis.TypeFinancialOptimization: `Perform a reimbursement optimization review of the clinical document.
Estimate current and optimized episode revenue, the drivers of the difference, visit utilization opportunities by discipline,
low-utilization risk, payer and authorization issues, and prioritized recommendations with estimated impact.`,
}

func buildPrompt(t analysis.Type, text string, c Context, maxRunes int) (string, error) {
	instructions, ok := taskInstructions[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", analysis.ErrUnknownAnalysisType, string(t))
	}
	empty, err := analysis.EmptyResult(t)
	if err != nil {
		return "", err
	}
	shape, err := json.MarshalIndent(empty, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nJSON shape for \"results\":\n")
	b.Write(shape)
	b.WriteString("\n\nContext:\n")
	fmt.Fprintf(&b, "- analysis type: %s\n", t)
	writeContextLine(&b, "file name", c.FileName)
	writeContextLine(&b, "priority", c.Priority)
	writeContextLine(&b, "patient reference", c.PatientRef)
	writeContextLine(&b, "reviewer notes", c.Notes)
	b.WriteString("\nDocument:\n")
	b.WriteString(truncateRunes(text, maxRunes))
	return b.String(), nil
}

func writeContextLine(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + truncationMarker
}
