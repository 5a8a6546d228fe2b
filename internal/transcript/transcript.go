package transcript

import "sort"

// Segment is a single recognized phrase with timing in seconds from the
// start of the recording. Speaker is empty until diarization assigns one.
type Segment struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Speaker    string  `json:"speaker,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// DiarizationSegment is a speaker turn produced by a separate diarization
// pass, independent of the recognized phrases.
type DiarizationSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Diarization mode recorded on a result.
const (
	DiarizationNone   = "none"
	DiarizationInline = "inline"
	DiarizationHybrid = "hybrid"
)

// Result is the output of a transcription backend, possibly enriched with
// speaker labels.
type Result struct {
	Text         string    `json:"text"`
	Language     string    `json:"language,omitempty"`
	Duration     float64   `json:"duration,omitempty"`
	Segments     []Segment `json:"segments"`
	Speakers     []string  `json:"speakers,omitempty"`
	SpeakerCount int       `json:"speaker_count,omitempty"`
	Diarization  string    `json:"diarization,omitempty"`
	MergedTurns  int       `json:"merged_turns,omitempty"`
}

// MergeDiarization assigns speaker labels to the segments of result using a
// separately produced diarization pass. Each segment takes the speaker whose
// turn overlaps it the most; when two turns overlap a segment equally, the
// turn that appears earlier in diar wins. Segments with no temporal overlap
// keep an empty speaker. Neither input is mutated.
func MergeDiarization(result Result, diar []DiarizationSegment) Result {
	merged := result
	merged.Segments = make([]Segment, len(result.Segments))
	copy(merged.Segments, result.Segments)

	for i := range merged.Segments {
		seg := &merged.Segments[i]
		best := 0.0
		speaker := ""
		for _, turn := range diar {
			overlap := overlapSeconds(seg.Start, seg.End, turn.Start, turn.End)
			if overlap > best {
				best = overlap
				speaker = turn.Speaker
			}
		}
		seg.Speaker = speaker
	}

	merged.Speakers = uniqueSpeakers(merged.Segments)
	merged.SpeakerCount = len(merged.Speakers)
	merged.Diarization = DiarizationHybrid
	merged.MergedTurns = len(diar)
	return merged
}

// RecomputeSpeakers refreshes the speaker roster after segments change, for
// example when a backend labeled speakers inline.
func RecomputeSpeakers(result *Result) {
	result.Speakers = uniqueSpeakers(result.Segments)
	result.SpeakerCount = len(result.Speakers)
}

func overlapSeconds(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}

func uniqueSpeakers(segments []Segment) []string {
	seen := map[string]struct{}{}
	var speakers []string
	for _, seg := range segments {
		if seg.Speaker == "" {
			continue
		}
		if _, ok := seen[seg.Speaker]; ok {
			continue
		}
		seen[seg.Speaker] = struct{}{}
		speakers = append(speakers, seg.Speaker)
	}
	sort.Strings(speakers)
	return speakers
}
