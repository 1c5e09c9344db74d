package resolver

import "testing"

func TestSimilarity(t *testing.T) {
	if got := Similarity("apple", "apple"); got != 1.0 {
		t.Errorf("Similarity(apple, apple) = %v, want 1.0", got)
	}
	if got := Similarity("", ""); got != 1.0 {
		t.Errorf("Similarity(\"\", \"\") = %v, want 1.0", got)
	}
	if got := Similarity("apple", "aple"); got <= 0 || got >= 1 {
		t.Errorf("Similarity(apple, aple) = %v, want strictly between 0 and 1", got)
	}
	if got := Similarity("abc", ""); got != 0 {
		t.Errorf("Similarity(abc, \"\") = %v, want 0", got)
	}
}

func TestSimilarityIsCaseFolded(t *testing.T) {
	if got := Similarity("Apple Pie", "apple pie"); got != 1.0 {
		t.Errorf("Similarity ignoring case = %v, want 1.0", got)
	}
}

func TestSimilarityCountsRunes(t *testing.T) {
	// one substitution over four runes, regardless of byte width
	got := Similarity("café", "cafe")
	if got != 0.75 {
		t.Errorf("Similarity(café, cafe) = %v, want 0.75", got)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"abc", "abc", 0},
		{"", "abc", 3},
	}
	for _, tt := range tests {
		if got := levenshtein([]rune(tt.a), []rune(tt.b)); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
