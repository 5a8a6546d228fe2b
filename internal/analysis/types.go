package analysis

// KeyPhrase is a scored phrase extracted from the transcript. Scores decay
// by position so earlier phrases rank higher.
type KeyPhrase struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Entity is a named entity recognized in the transcript.
type Entity struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// SentimentScore holds the class probabilities and the resolved label for a
// piece of text.
type SentimentScore struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
	Overall  string  `json:"overall"`
}

// NeutralSentiment is the fallback used when sentiment analysis is
// unavailable.
func NeutralSentiment() SentimentScore {
	return SentimentScore{Positive: 0, Neutral: 1, Negative: 0, Overall: "neutral"}
}

// SegmentSentiment attaches a sentiment label to a single transcript
// segment. Speaker is filled in after diarization merge.
type SegmentSentiment struct {
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker,omitempty"`
	Sentiment string  `json:"sentiment"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Result is the combined output of the analysis stage. Sub-task failures are
// recorded in Errors keyed by sub-task name; the corresponding fields keep
// their zero or fallback values.
type Result struct {
	KeyPhrases        []KeyPhrase        `json:"key_phrases,omitempty"`
	Entities          []Entity           `json:"entities,omitempty"`
	ActionItems       []string           `json:"action_items,omitempty"`
	Topics            []string           `json:"topics,omitempty"`
	Summary           string             `json:"summary,omitempty"`
	Sentiment         SentimentScore     `json:"sentiment"`
	SegmentSentiments []SegmentSentiment `json:"segment_sentiments,omitempty"`
	Errors            map[string]string  `json:"errors,omitempty"`
}

// Sub-task names reported through the progress callback and the Errors map.
const (
	TaskKeyPhrases       = "key_phrases"
	TaskSentiment        = "sentiment"
	TaskEntities         = "entities"
	TaskActionItems      = "action_items"
	TaskSummary          = "summary"
	TaskSegmentSentiment = "segment_sentiment"
)

// Tasks lists all analysis sub-tasks in a stable order.
func Tasks() []string {
	return []string{
		TaskKeyPhrases,
		TaskSentiment,
		TaskEntities,
		TaskActionItems,
		TaskSummary,
		TaskSegmentSentiment,
	}
}
