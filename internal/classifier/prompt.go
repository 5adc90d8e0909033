package classifier

import (
	"fmt"
	"strings"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

// buildSystemPrompt constructs the system message for one blocker type.
// The prompt version from the config is embedded so regression runs can tell
// which template produced a verdict.
func buildSystemPrompt(bt models.BlockerType, cfg models.AnalysisConfig) string {
	var b strings.Builder
	b.WriteString("You are a behavioral pattern analyst. Examine the user's journal insights and conversation summaries for one specific thinking pattern.\n\n")
	fmt.Fprintf(&b, "Pattern under review: %s\n", bt)
	fmt.Fprintf(&b, "Pattern definition: %s\n\n", models.BlockerDescription(bt))
	fmt.Fprintf(&b, "Only report the pattern if it appears at least %d separate times across the evidence.\n\n", cfg.MinimumPatternOccurrences)
	b.WriteString(`Respond with a single JSON object and nothing else:
{
  "detected": bool,
  "confidence": number between 0 and 1,
  "severity": "low" | "medium" | "high" | "critical",
  "title": string,
  "description": string,
  "patterns": [{"pattern_type": "linguistic" | "behavioral" | "emotional" | "conceptual", "description": string, "evidence": [{"source_type": "insight" | "chat_message" | "user_context" | "card_reflection", "source_id": string, "excerpt": string, "timestamp": string}], "strength": number between 0 and 1}],
  "occurrences": int,
  "block_type_ids": [string],
  "insight_ids": [int],
  "conversation_ids": [int],
  "recommendations": [string]
}

If the pattern is not present, set detected to false and leave the lists empty.
`)
	fmt.Fprintf(&b, "\nPrompt version: %s\n", cfg.ModelSettings.PromptVersion)
	return b.String()
}

// buildUserPrompt renders the evidence records into the user message. Each
// evidence kind has its own renderer; adding a new kind means adding a
// renderer here.
func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evidence window: last %d days.\n\n", req.Config.AnalysisWindowDays)

	if len(req.Insights) == 0 {
		b.WriteString("Insights: none.\n")
	} else {
		fmt.Fprintf(&b, "Insights (%d):\n", len(req.Insights))
		for _, ins := range req.Insights {
			b.WriteString(renderInsight(ins))
		}
	}
	b.WriteString("\n")

	if len(req.Conversations) == 0 {
		b.WriteString("Conversations: none.\n")
	} else {
		fmt.Fprintf(&b, "Conversations (%d):\n", len(req.Conversations))
		for _, conv := range req.Conversations {
			b.WriteString(renderConversation(conv))
		}
	}

	fmt.Fprintf(&b, "\nAnalyze the evidence above for the %q pattern.\n", req.BlockerType)
	return b.String()
}

func renderInsight(ins models.InsightRecord) string {
	card := ins.CardID
	if card == "" {
		card = "none"
	}
	return fmt.Sprintf("- [insight %d, %s, card %s] %s\n",
		ins.ID, ins.CreatedAt.Format("2006-01-02"), card, ins.Text)
}

func renderConversation(conv models.ConversationRecord) string {
	return fmt.Sprintf("- [conversation %d, %s, %d messages] %s\n",
		conv.ID, conv.CreatedAt.Format("2006-01-02"), conv.MessageCount, conv.Summary)
}
