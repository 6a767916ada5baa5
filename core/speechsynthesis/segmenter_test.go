package speechsynthesis

import (
	"slices"
	"testing"
)

func TestSegmentSplitsAtPunctuation(t *testing.T) {
	got := Segment("你好。今天天气不错！")
	expected := []string{"你好。", "今天天气不错！"}

	if !slices.Equal(got, expected) {
		t.Fatalf("expected %q, got %q", expected, got)
	}
}

func TestSegmentIsIdempotentOnTerminatedText(t *testing.T) {
	first := Segment("The weather is nice today!")
	if len(first) != 1 {
		t.Fatalf("expected exactly one segment, got %q", first)
	}

	second := Segment(first[0])
	if !slices.Equal(first, second) {
		t.Fatalf("expected re-segmenting to give %q, got %q", first, second)
	}
}

func TestSegmentKeepsUnterminatedTail(t *testing.T) {
	got := Segment("One, two and three")
	expected := []string{"One,", " two and three"}

	if !slices.Equal(got, expected) {
		t.Fatalf("expected %q, got %q", expected, got)
	}
}

func TestSegmenterHoldsRemainderAcrossChunks(t *testing.T) {
	var segmenter Segmenter

	if got := segmenter.Push("Hello wor"); len(got) != 0 {
		t.Fatalf("expected no segments yet, got %q", got)
	}
	if got := segmenter.Push("ld. How are"); !slices.Equal(got, []string{"Hello world."}) {
		t.Fatalf("expected completed first sentence, got %q", got)
	}
	if pending := segmenter.Pending(); pending != " How are" {
		t.Fatalf("expected pending remainder %q, got %q", " How are", pending)
	}
	if rest := segmenter.Flush(); rest != " How are" {
		t.Fatalf("expected flushed remainder %q, got %q", " How are", rest)
	}
	if pending := segmenter.Pending(); pending != "" {
		t.Fatalf("expected empty remainder after flush, got %q", pending)
	}
}

func TestSegmenterFlushDropsBlankRemainder(t *testing.T) {
	var segmenter Segmenter
	segmenter.Push("Done.  ")

	if rest := segmenter.Flush(); rest != "" {
		t.Fatalf("expected blank remainder to be dropped, got %q", rest)
	}
}

func TestCleanTextRemovesUnspokenParts(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{input: "<happy>Hello there.", expected: "Hello there."},
		{input: "Sure (quietly) thing.", expected: "Sure  thing."},
		{input: "好的（笑）。", expected: "好的。"},
		{input: "*waves* Hi!", expected: " Hi!"},
		{input: "plain text", expected: "plain text"},
	}

	for _, testCase := range testCases {
		if got := CleanText(testCase.input); got != testCase.expected {
			t.Fatalf("expected %q to clean to %q, got %q", testCase.input, testCase.expected, got)
		}
	}
}
