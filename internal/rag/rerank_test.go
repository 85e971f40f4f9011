package rag

import (
	"strings"
	"testing"
)

func TestLexicalScoreBasicMatch(t *testing.T) {
	query := "Project updates"
	chunk := "The project timeline lists recent updates for the project. These updates cover scope."
	score := lexicalScore(query, chunk)

	if score <= 0 {
		t.Fatalf("expected score to be positive, got %f", score)
	}
	if score > maxLexicalScore {
		t.Fatalf("score should be clamped to maxLexicalScore, got %f", score)
	}
}

func TestLexicalScoreNoOverlap(t *testing.T) {
	score := lexicalScore("database", "General context without the keyword.")
	if score != 0 {
		t.Fatalf("expected 0 for disjoint text, got %f", score)
	}
}

func TestLexicalScoreStopwordsRemoved(t *testing.T) {
	score := lexicalScore("the and of", "the and of")
	if score != 0 {
		t.Fatalf("expected score 0 when query tokens are only stopwords, got %f", score)
	}
}

func TestLexicalScoreNormalization(t *testing.T) {
	chunk := "project " + strings.Repeat(" filler", 200)
	score := lexicalScore("project", chunk)

	if score <= 0 {
		t.Fatalf("expected normalized score to stay positive, got %f", score)
	}
	if score > maxLexicalScore {
		t.Fatalf("expected score to be clamped to %f, got %f", maxLexicalScore, score)
	}
}

func TestCandidateCount(t *testing.T) {
	tests := []struct {
		k, available, want int
	}{
		{k: 4, available: 100, want: 12},
		{k: 4, available: 5, want: 5},
		{k: 1, available: 1, want: 1},
		{k: 4, available: 0, want: 1},
	}
	for _, tt := range tests {
		if got := candidateCount(tt.k, tt.available); got != tt.want {
			t.Errorf("candidateCount(%d, %d) = %d, want %d", tt.k, tt.available, got, tt.want)
		}
	}
}

func TestRerank(t *testing.T) {
	t.Run("lexical match lifts a chunk", func(t *testing.T) {
		hits := []Hit{
			{ChunkIndex: 0, Text: "unrelated filler text", ScoreVector: 0.50},
			{ChunkIndex: 1, Text: "revenue growth revenue", ScoreVector: 0.48},
		}
		got := rerank("revenue", hits, 2)
		if got[0].ChunkIndex != 1 {
			t.Fatalf("expected chunk 1 first, got %d", got[0].ChunkIndex)
		}
		if got[0].ScoreFinal <= got[0].ScoreVector {
			t.Errorf("ScoreFinal %f should exceed ScoreVector %f", got[0].ScoreFinal, got[0].ScoreVector)
		}
	})

	t.Run("ties keep document order", func(t *testing.T) {
		hits := []Hit{
			{ChunkIndex: 7, Text: "alpha", ScoreVector: 0.3},
			{ChunkIndex: 2, Text: "alpha", ScoreVector: 0.3},
			{ChunkIndex: 5, Text: "alpha", ScoreVector: 0.3},
		}
		got := rerank("zeta", hits, 3)
		for i, want := range []int{2, 5, 7} {
			if got[i].ChunkIndex != want {
				t.Errorf("position %d: got chunk %d, want %d", i, got[i].ChunkIndex, want)
			}
		}
	})

	t.Run("truncates to k", func(t *testing.T) {
		hits := []Hit{
			{ChunkIndex: 0, ScoreVector: 0.9},
			{ChunkIndex: 1, ScoreVector: 0.8},
			{ChunkIndex: 2, ScoreVector: 0.7},
		}
		if got := rerank("q", hits, 2); len(got) != 2 {
			t.Errorf("len = %d, want 2", len(got))
		}
	})
}
