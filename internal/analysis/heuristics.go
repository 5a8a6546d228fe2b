package analysis

import (
	"regexp"
	"strings"

	"meetscribe/internal/textutil"
)

var actionItemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:TODO|Action|Follow-up|Task):\s*(.+)`),
	regexp.MustCompile(`(?i)(?:We need to|We should|Must|Will)\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`@\w+\s+(?:will|to|should)\s+(.+?)(?:\.|$)`),
}

var sentenceSplitter = regexp.MustCompile(`(?m)[^.!?]+[.!?]?`)

// ExtractActionItems scans the transcript line by line for commitment
// phrasings and returns at most limit items. Very short matches are noise
// and dropped.
func ExtractActionItems(text string, limit int) []string {
	if limit <= 0 {
		limit = 10
	}
	seen := map[string]struct{}{}
	var items []string
	for _, line := range strings.Split(text, "\n") {
		for _, pattern := range actionItemPatterns {
			for _, match := range pattern.FindAllStringSubmatch(line, -1) {
				item := strings.TrimSpace(match[1])
				if len(item) <= 10 {
					continue
				}
				key := strings.ToLower(item)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				items = append(items, item)
				if len(items) >= limit {
					return items
				}
			}
		}
	}
	return items
}

// ScoreKeyPhrases attaches positional decay scores to raw phrases: the first
// phrase scores 1.0 and each subsequent one loses 0.05, floored at 0.5. At
// most limit phrases are kept.
func ScoreKeyPhrases(phrases []string, limit int) []KeyPhrase {
	if limit <= 0 {
		limit = 20
	}
	scored := make([]KeyPhrase, 0, len(phrases))
	for i, phrase := range phrases {
		phrase = strings.TrimSpace(phrase)
		if phrase == "" {
			continue
		}
		score := 1.0 - float64(i)*0.05
		if score < 0.5 {
			score = 0.5
		}
		scored = append(scored, KeyPhrase{Text: phrase, Score: score})
		if len(scored) >= limit {
			break
		}
	}
	return scored
}

// topicSimilarityCutoff collapses phrasings like "quarterly budget review"
// and "review of the quarterly budget" into one topic.
const topicSimilarityCutoff = 0.75

// TopicsFromKeyPhrases lowercases and deduplicates key phrases into a topic
// list of at most ten entries. Near-duplicate phrasings are collapsed by
// token fingerprint similarity, keeping the higher scored phrase.
func TopicsFromKeyPhrases(phrases []KeyPhrase) []string {
	seen := map[string]struct{}{}
	var topics []string
	var prints []*textutil.Fingerprint
	for _, phrase := range phrases {
		topic := strings.ToLower(strings.TrimSpace(phrase.Text))
		if topic == "" {
			continue
		}
		if _, dup := seen[topic]; dup {
			continue
		}
		print := textutil.NewFingerprint(topic)
		similar := false
		for _, kept := range prints {
			if textutil.CosineSimilarity(print, kept) >= topicSimilarityCutoff {
				similar = true
				break
			}
		}
		if similar {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
		prints = append(prints, print)
		if len(topics) >= 10 {
			break
		}
	}
	return topics
}

// Summarize produces a leading-sentences summary. Topics, when present, are
// appended as a digest sentence.
func Summarize(text string, sentences int, topics []string) string {
	if sentences <= 0 {
		sentences = 3
	}
	var lead []string
	for _, raw := range sentenceSplitter.FindAllString(text, -1) {
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}
		lead = append(lead, sentence)
		if len(lead) >= sentences {
			break
		}
	}
	summary := strings.Join(lead, " ")
	if len(topics) > 0 {
		top := topics
		if len(top) > 5 {
			top = top[:5]
		}
		if summary != "" {
			summary += " "
		}
		summary += "Key topics discussed: " + strings.Join(top, ", ") + "."
	}
	return summary
}

// DedupEntities collapses duplicate (text, category) pairs keeping the
// highest confidence seen.
func DedupEntities(entities []Entity) []Entity {
	type key struct{ text, category string }
	best := map[key]int{}
	out := make([]Entity, 0, len(entities))
	for _, entity := range entities {
		k := key{strings.ToLower(entity.Text), entity.Category}
		if idx, ok := best[k]; ok {
			if entity.Confidence > out[idx].Confidence {
				out[idx].Confidence = entity.Confidence
			}
			continue
		}
		best[k] = len(out)
		out = append(out, entity)
	}
	return out
}
