package ai

import "strings"

const (
	strategicSystem  = "You are a strategic communication analyst. Respond with strict JSON only: {\"strategy_insights\":string[],\"opportunities\":string[],\"risks\":string[],\"confidence_score\":number}. confidence_score is between 0 and 1."
	emotionalSystem  = "You are an emotional intelligence analyst. Rewrite the text you are given so that it states plainly the feelings, tensions and unspoken needs beneath it. Keep an analytical tone."
	relationalSystem = "You are a relational dynamics analyst. Summarize how the people in the text relate to one another: social cues, trust indicators and points of connection."
)

func buildStrategicPrompt(content string, o Options, lang string) string {
	var sb strings.Builder
	sb.WriteString("Analyze this text for strategic elements:\n\n\"")
	sb.WriteString(content)
	sb.WriteString("\"\n\nFocus on:")
	sb.WriteString("\n- Power dynamics and hierarchy")
	sb.WriteString("\n- Hidden agendas or ulterior motives")
	sb.WriteString("\n- Negotiation leverage points")
	sb.WriteString("\n- Strategic opportunities")
	sb.WriteString("\n- Potential risks or threats")
	sb.WriteString("\n\nFormat response as JSON with: strategy_insights, opportunities, risks, confidence_score")
	writeOptions(&sb, o)
	writeLanguage(&sb, lang)
	return sb.String()
}

func buildOptionPrompt(instruction, content string, o Options, lang string) string {
	var sb strings.Builder
	sb.WriteString(instruction)
	writeOptions(&sb, o)
	writeLanguage(&sb, lang)
	sb.WriteString("\n\nText:\n\n")
	sb.WriteString(content)
	return sb.String()
}

func writeOptions(sb *strings.Builder, o Options) {
	pairs := [][2]string{{"tone", o.Tone}, {"perspective", o.Perspective}, {"focus", o.Focus}, {"format", o.Format}}
	wrote := false
	for _, p := range pairs {
		if strings.TrimSpace(p[1]) == "" {
			continue
		}
		if !wrote {
			sb.WriteString("\n\nOptions:")
			wrote = true
		}
		sb.WriteString("\n- ")
		sb.WriteString(p[0])
		sb.WriteString(": ")
		sb.WriteString(p[1])
	}
}

func writeLanguage(sb *strings.Builder, lang string) {
	if strings.TrimSpace(lang) == "" {
		return
	}
	sb.WriteString("\nRespond in language: ")
	sb.WriteString(lang)
}
