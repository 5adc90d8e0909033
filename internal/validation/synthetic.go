package validation

import (
	"time"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

// SyntheticCase is one hand-authored evidence fixture with a known expected
// outcome. Cases are used by regression tests against a scripted classifier
// and make no external calls.
type SyntheticCase struct {
	Name          string
	Insights      []models.InsightRecord
	Conversations []models.ConversationRecord
	ExpectedTypes []models.BlockerType
	Rationale     string
}

// SyntheticTestCases returns the fixed fixture set. Record timestamps are
// relative to now so the fixtures always fall inside an analysis window.
func SyntheticTestCases() []SyntheticCase {
	now := time.Now()
	day := func(n int) time.Time { return now.AddDate(0, 0, -n) }

	return []SyntheticCase{
		{
			Name: "repeated evidence filtering",
			Insights: []models.InsightRecord{
				{ID: 1, UserID: "synthetic-1", CardID: "card-3", Text: "The reading confirmed what I already knew: my manager is against me.", CreatedAt: day(20)},
				{ID: 2, UserID: "synthetic-1", CardID: "card-7", Text: "Ignored the part about listening more. The rest proved my point.", CreatedAt: day(12)},
				{ID: 3, UserID: "synthetic-1", CardID: "card-1", Text: "Every card keeps validating that I was right to distrust the team.", CreatedAt: day(4)},
			},
			ExpectedTypes: []models.BlockerType{models.BlockerConfirmationBias},
			Rationale:     "All three insights discard disconfirming guidance and keep only what agrees with a prior belief.",
		},
		{
			Name: "endless option weighing",
			Insights: []models.InsightRecord{
				{ID: 4, UserID: "synthetic-2", CardID: "card-2", Text: "Spent another week comparing the two job offers. Still can't choose.", CreatedAt: day(25)},
				{ID: 5, UserID: "synthetic-2", CardID: "card-9", Text: "Made a new spreadsheet of pros and cons. Need more data before deciding.", CreatedAt: day(15)},
				{ID: 6, UserID: "synthetic-2", CardID: "card-4", Text: "Asked three more friends for input. Every answer adds another variable.", CreatedAt: day(6)},
			},
			Conversations: []models.ConversationRecord{
				{ID: 1, UserID: "synthetic-2", Summary: "Circled the same job decision for forty minutes without committing to a next step.", MessageCount: 18, CreatedAt: day(5)},
			},
			ExpectedTypes: []models.BlockerType{models.BlockerAnalysisParalysis},
			Rationale:     "Research keeps expanding while the decision never lands.",
		},
		{
			Name: "dismissing own competence",
			Insights: []models.InsightRecord{
				{ID: 7, UserID: "synthetic-3", CardID: "card-5", Text: "They promoted me but it's only because nobody better applied.", CreatedAt: day(22)},
				{ID: 8, UserID: "synthetic-3", CardID: "card-8", Text: "The launch went well. Mostly luck, the team carried it.", CreatedAt: day(10)},
				{ID: 9, UserID: "synthetic-3", CardID: "card-6", Text: "Keep waiting for someone to notice I don't belong in this role.", CreatedAt: day(3)},
			},
			ExpectedTypes: []models.BlockerType{models.BlockerImposterSyndrome},
			Rationale:     "Successes are consistently attributed to luck or others; exposure fear is explicit.",
		},
		{
			Name: "worst-case spiraling with rigid standards",
			Insights: []models.InsightRecord{
				{ID: 10, UserID: "synthetic-4", CardID: "card-3", Text: "If this pitch has a single typo, the client will walk and the company folds.", CreatedAt: day(18)},
				{ID: 11, UserID: "synthetic-4", CardID: "card-2", Text: "Rewrote the deck nine times. It still isn't perfect enough to send.", CreatedAt: day(9)},
				{ID: 12, UserID: "synthetic-4", CardID: "card-7", Text: "One lukewarm reply and I'm sure the whole deal is dead.", CreatedAt: day(2)},
			},
			ExpectedTypes: []models.BlockerType{models.BlockerCatastrophizing, models.BlockerPerfectionism},
			Rationale:     "Minor setbacks escalate to ruin scenarios while the bar for 'done' keeps moving.",
		},
		{
			Name: "balanced reflections",
			Insights: []models.InsightRecord{
				{ID: 13, UserID: "synthetic-5", CardID: "card-1", Text: "The reading nudged me to delegate more. Tried it, worked out fine.", CreatedAt: day(14)},
				{ID: 14, UserID: "synthetic-5", CardID: "card-4", Text: "Disagreed with today's card but sat with it anyway. Useful angle.", CreatedAt: day(8)},
				{ID: 15, UserID: "synthetic-5", CardID: "card-9", Text: "Made the call on the vendor. Some risk, but waiting had a cost too.", CreatedAt: day(1)},
			},
			ExpectedTypes: nil,
			Rationale:     "Varied, flexible reflections with decisions actually made; nothing recurs.",
		},
	}
}
