package orchestrator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/balidesk/oracle/pkg/memory"
	"github.com/balidesk/oracle/pkg/retrieval"
	"github.com/balidesk/oracle/pkg/router"
)

const persona = `You are the Bali Desk assistant, an expert on Indonesian
immigration, taxation, business setup and legal matters. You answer with
grounded, practical guidance for expats and businesses in Indonesia.

Rules:
- Base factual claims on the provided passages; cite them as [1], [2], etc.
- If the passages do not cover the question, say so rather than guessing.
- Use the pricing_lookup tool for any price or fee question.
- Answer in the user's language.`

var modeInstructions = map[router.Mode]string{
	router.ModeGreeting:         "Reply with a short, warm greeting. One or two sentences, no business content unless asked.",
	router.ModeSmallTalk:        "Keep it light and brief. Do not volunteer legal or tax detail.",
	router.ModeIdentityResponse: "Briefly introduce yourself and what you can help with.",
	router.ModeTechnical:        "Be precise and complete. Name the regulation and article where known.",
	router.ModeProcedureGuide:   "Answer as a numbered step-by-step procedure with required documents per step.",
	router.ModeRiskExplainer:    "Lead with the risks and penalties, then the safe path. Be direct, not alarmist.",
	router.ModeLegalDeep:        "Give a thorough legal analysis: governing rules, obligations, exceptions, and open risks.",
	router.ModeLegalBrief:       "Summarize the legal position in a few sentences. Offer to go deeper.",
}

// buildSystemPrompt assembles persona, mode instructions, memory and
// retrieved passages into one system prompt.
func buildSystemPrompt(mode router.Mode, mem *memory.MemoryContext, passages []retrieval.Passage) string {
	var sb strings.Builder
	sb.WriteString(persona)

	if instr, ok := modeInstructions[mode]; ok {
		sb.WriteString("\n\nMode: ")
		sb.WriteString(instr)
	}

	if !mem.IsEmpty() {
		sb.WriteString("\n\n")
		sb.WriteString(mem.ToSystemPrompt())
	}

	if len(passages) > 0 {
		sb.WriteString("\n\n## Retrieved Passages\n")
		for i, p := range passages {
			tag := sourceTag(p)
			fmt.Fprintf(&sb, "\n[%d]%s\n%s\n", i+1, tag, strings.TrimSpace(p.Text))
		}
	}

	return sb.String()
}

func sourceTag(p retrieval.Passage) string {
	title, _ := p.Metadata["title"].(string)
	source, _ := p.Metadata["source_file"].(string)
	switch {
	case title != "":
		return " (" + title + ")"
	case source != "":
		return " (" + source + ")"
	default:
		return ""
	}
}

var blankLinesRe = regexp.MustCompile(`\n{3,}`)

// cleanResponse trims and collapses runs of blank lines.
func cleanResponse(s string) string {
	return strings.TrimSpace(blankLinesRe.ReplaceAllString(s, "\n\n"))
}

// detectLanguage picks the reply language: explicit override, then profile
// preference, then a keyword scan of the query. Defaults to English.
func detectLanguage(override, preferred, query string) string {
	if override != "" {
		return normalizeLang(override)
	}
	if preferred != "" {
		return normalizeLang(preferred)
	}

	q := " " + strings.ToLower(query) + " "
	for _, w := range []string{" apa ", " bagaimana ", " berapa ", " saya ", " untuk ", " yang ", " bisa ", " tolong "} {
		if strings.Contains(q, w) {
			return "id"
		}
	}
	for _, w := range []string{" quanto ", " come ", " posso ", " grazie ", " sono ", " vorrei "} {
		if strings.Contains(q, w) {
			return "it"
		}
	}
	return "en"
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if len(lang) > 2 {
		lang = lang[:2]
	}
	return lang
}
