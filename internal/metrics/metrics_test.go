package metrics

import (
	"testing"
	"time"
)

func TestWordCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"hello", 1},
		{"  hello   world \n again\t", 3},
		{"um so like I think the answer is O(1)", 9},
	}
	for _, tc := range cases {
		if got := WordCount(tc.in); got != tc.want {
			t.Fatalf("WordCount(%q)=%d want %d", tc.in, got, tc.want)
		}
		if got := WordCount(" \t" + tc.in + "\n "); got != tc.want {
			t.Fatalf("WordCount with padding of %q=%d want %d", tc.in, got, tc.want)
		}
	}
}

func TestFillerCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"um uh like", 3},
		{"UM, Uh... LIKE!", 3},
		{"I would likely use an umbrella", 0},
		{"you know, it is sort of kind of basically literally actually fine", 6},
		{"you  know", 0},
		{"um so like I think the answer is O(1)", 2},
		{"the deadline is close", 0},
	}
	for _, tc := range cases {
		if got := FillerCount(tc.in); got != tc.want {
			t.Fatalf("FillerCount(%q)=%d want %d", tc.in, got, tc.want)
		}
	}
}

func TestConfidenceScore_ZeroWords(t *testing.T) {
	if got := ConfidenceScore("maybe um", 5, 0); got != 0 {
		t.Fatalf("expected 0 for zero words, got %d", got)
	}
	if got := ConfidenceScore("", 0, 0); got != 0 {
		t.Fatalf("expected 0 for empty text, got %d", got)
	}
}

func TestConfidenceScore_Formula(t *testing.T) {
	cases := []struct {
		text    string
		fillers int
		words   int
		want    int
	}{
		{"um so like I think the answer is O(1)", 2, 9, 56},
		{"clear answer", 0, 2, 100},
		{"maybe it works", 0, 3, 90},
		{"um um", 2, 2, 0},
		{"um maybe", 1, 2, 0},
		{"perhaps a b c d e f g h i", 1, 10, 70},
		{"it could be hashing", 0, 4, 90},
	}
	for _, tc := range cases {
		if got := ConfidenceScore(tc.text, tc.fillers, tc.words); got != tc.want {
			t.Fatalf("ConfidenceScore(%q,%d,%d)=%d want %d", tc.text, tc.fillers, tc.words, got, tc.want)
		}
	}
}

func TestConfidenceScore_MonotonicAndBounded(t *testing.T) {
	for _, text := range []string{"plain words here", "maybe hedged words"} {
		for words := 1; words <= 20; words++ {
			prev := 101
			for fillers := 0; fillers <= words+3; fillers++ {
				got := ConfidenceScore(text, fillers, words)
				if got < 0 || got > 100 {
					t.Fatalf("score out of range: %d (fillers=%d words=%d)", got, fillers, words)
				}
				if got > prev {
					t.Fatalf("score increased with fillers: %d > %d (fillers=%d words=%d)", got, prev, fillers, words)
				}
				prev = got
			}
		}
	}
}

func TestSpeakingPace(t *testing.T) {
	if got := SpeakingPace(10, 0); got != 0 {
		t.Fatalf("expected 0 for zero duration, got %d", got)
	}
	if got := SpeakingPace(150, 60); got != 150 {
		t.Fatalf("expected 150 wpm, got %d", got)
	}
	if got := SpeakingPace(7, 4); got != 105 {
		t.Fatalf("expected 105 wpm, got %d", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "0:00"},
		{999, "0:00"},
		{5000, "0:05"},
		{90000, "1:30"},
		{3661000, "61:01"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.ms); got != tc.want {
			t.Fatalf("FormatDuration(%d)=%q want %q", tc.ms, got, tc.want)
		}
	}
}

func TestCompute(t *testing.T) {
	start := time.Unix(1000, 0)
	now := start.Add(6 * time.Second)
	got := Compute("um so like I think the answer is O(1)", start, now)
	if got.WordCount != 9 || got.FillerCount != 2 || got.ConfidenceScore != 56 {
		t.Fatalf("unexpected metrics: %+v", got)
	}
	if got.ResponseTime != 6*time.Second {
		t.Fatalf("unexpected response time: %v", got.ResponseTime)
	}
	if got.SpeakingPace != 90 {
		t.Fatalf("unexpected pace: %d", got.SpeakingPace)
	}

	empty := Compute("", time.Time{}, now)
	if empty != (Live{}) {
		t.Fatalf("expected zero metrics, got %+v", empty)
	}

	// A clock that reads earlier than the start never yields a negative time.
	back := Compute("hello", start, start.Add(-time.Second))
	if back.ResponseTime != 0 {
		t.Fatalf("expected zero response time, got %v", back.ResponseTime)
	}
}
