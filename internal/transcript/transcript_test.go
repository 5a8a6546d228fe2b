package transcript

import (
	"reflect"
	"testing"
)

func TestMergeDiarizationAssignsByMaxOverlap(t *testing.T) {
	result := Result{
		Text: "hello world. goodbye.",
		Segments: []Segment{
			{Text: "hello world.", Start: 0, End: 4},
			{Text: "goodbye.", Start: 4, End: 6},
		},
	}
	diar := []DiarizationSegment{
		{Speaker: "Speaker 1", Start: 0, End: 3},
		{Speaker: "Speaker 2", Start: 3, End: 6},
	}

	merged := MergeDiarization(result, diar)

	if merged.Segments[0].Speaker != "Speaker 1" {
		t.Fatalf("segment 0 speaker = %q, want Speaker 1", merged.Segments[0].Speaker)
	}
	if merged.Segments[1].Speaker != "Speaker 2" {
		t.Fatalf("segment 1 speaker = %q, want Speaker 2", merged.Segments[1].Speaker)
	}
	if merged.Diarization != DiarizationHybrid {
		t.Fatalf("diarization = %q", merged.Diarization)
	}
	if merged.SpeakerCount != 2 {
		t.Fatalf("speaker count = %d", merged.SpeakerCount)
	}
	if !reflect.DeepEqual(merged.Speakers, []string{"Speaker 1", "Speaker 2"}) {
		t.Fatalf("speakers = %v", merged.Speakers)
	}
	if merged.MergedTurns != 2 {
		t.Fatalf("merged turns = %d", merged.MergedTurns)
	}
}

func TestMergeDiarizationTieBreakFirstWins(t *testing.T) {
	result := Result{Segments: []Segment{{Text: "tied", Start: 0, End: 4}}}
	// Both turns overlap the segment for exactly two seconds.
	diar := []DiarizationSegment{
		{Speaker: "Speaker 1", Start: 0, End: 2},
		{Speaker: "Speaker 2", Start: 2, End: 4},
	}

	merged := MergeDiarization(result, diar)
	if merged.Segments[0].Speaker != "Speaker 1" {
		t.Fatalf("tie should go to earlier turn, got %q", merged.Segments[0].Speaker)
	}

	// Swapping the input order flips the winner.
	swapped := MergeDiarization(result, []DiarizationSegment{diar[1], diar[0]})
	if swapped.Segments[0].Speaker != "Speaker 2" {
		t.Fatalf("tie should follow input order, got %q", swapped.Segments[0].Speaker)
	}
}

func TestMergeDiarizationZeroOverlapLeavesUnassigned(t *testing.T) {
	result := Result{Segments: []Segment{{Text: "late", Start: 10, End: 12}}}
	diar := []DiarizationSegment{{Speaker: "Speaker 1", Start: 0, End: 5}}

	merged := MergeDiarization(result, diar)
	if merged.Segments[0].Speaker != "" {
		t.Fatalf("expected unassigned speaker, got %q", merged.Segments[0].Speaker)
	}
	if merged.SpeakerCount != 0 {
		t.Fatalf("speaker count = %d", merged.SpeakerCount)
	}
}

func TestMergeDiarizationTouchingBoundariesDoNotOverlap(t *testing.T) {
	result := Result{Segments: []Segment{{Text: "edge", Start: 5, End: 7}}}
	diar := []DiarizationSegment{{Speaker: "Speaker 1", Start: 0, End: 5}}

	merged := MergeDiarization(result, diar)
	if merged.Segments[0].Speaker != "" {
		t.Fatalf("a shared boundary is not overlap, got %q", merged.Segments[0].Speaker)
	}
}

func TestMergeDiarizationDeterministic(t *testing.T) {
	result := Result{
		Segments: []Segment{
			{Text: "a", Start: 0, End: 2.5},
			{Text: "b", Start: 2.5, End: 5},
			{Text: "c", Start: 5, End: 9},
		},
	}
	diar := []DiarizationSegment{
		{Speaker: "Speaker 2", Start: 1, End: 4},
		{Speaker: "Speaker 1", Start: 0, End: 1},
		{Speaker: "Speaker 3", Start: 4, End: 9},
	}

	first := MergeDiarization(result, diar)
	for i := 0; i < 10; i++ {
		again := MergeDiarization(result, diar)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("merge not deterministic: %v vs %v", first, again)
		}
	}
}

func TestMergeDiarizationDoesNotMutateInputs(t *testing.T) {
	segments := []Segment{{Text: "x", Start: 0, End: 2}}
	result := Result{Segments: segments}
	diar := []DiarizationSegment{{Speaker: "Speaker 1", Start: 0, End: 2}}
	diarCopy := append([]DiarizationSegment(nil), diar...)

	merged := MergeDiarization(result, diar)

	if segments[0].Speaker != "" {
		t.Fatal("input segments were mutated")
	}
	if !reflect.DeepEqual(diar, diarCopy) {
		t.Fatal("diarization input was mutated")
	}
	if merged.Segments[0].Speaker != "Speaker 1" {
		t.Fatalf("merged speaker = %q", merged.Segments[0].Speaker)
	}
}

func TestMergeDiarizationEmptyTurns(t *testing.T) {
	result := Result{Segments: []Segment{{Text: "solo", Start: 0, End: 1}}}
	merged := MergeDiarization(result, nil)
	if merged.Diarization != DiarizationHybrid {
		t.Fatalf("diarization = %q", merged.Diarization)
	}
	if merged.MergedTurns != 0 {
		t.Fatalf("merged turns = %d", merged.MergedTurns)
	}
	if merged.Segments[0].Speaker != "" {
		t.Fatalf("speaker = %q", merged.Segments[0].Speaker)
	}
}

func TestRecomputeSpeakers(t *testing.T) {
	result := Result{Segments: []Segment{
		{Text: "a", Speaker: "Guest-2"},
		{Text: "b", Speaker: "Guest-1"},
		{Text: "c", Speaker: "Guest-2"},
		{Text: "d"},
	}}
	RecomputeSpeakers(&result)
	if !reflect.DeepEqual(result.Speakers, []string{"Guest-1", "Guest-2"}) {
		t.Fatalf("speakers = %v", result.Speakers)
	}
	if result.SpeakerCount != 2 {
		t.Fatalf("speaker count = %d", result.SpeakerCount)
	}
}
