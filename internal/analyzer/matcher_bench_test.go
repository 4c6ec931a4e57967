package analyzer

import (
	"strings"
	"testing"
)

// benchmarkContent generates realistic small-business page text.
func benchmarkContent(size int) string {
	sb := strings.Builder{}
	sb.Grow(size)

	paragraphs := []string{
		"Family owned plumbing and heating since 1987. We serve the greater Seattle area seven days a week.",
		"Call (206) 624-6000 for emergency repairs. Our licensed technicians arrive within the hour!",
		"Lorem ipsum dolor sit amet, consectetur adipiscing elit. Your address here.",
		"Email info@yourdomain.com or visit the shop at 400 Pine Street NE. Free estimates on every job.",
		"Water heater installation, drain cleaning and leak detection. Ask about our maintenance plans?",
	}

	for sb.Len() < size {
		for _, p := range paragraphs {
			sb.WriteString(p)
			sb.WriteString(" ")
		}
	}
	return sb.String()
}

func BenchmarkFindTermMatches_SmallPage(b *testing.B) {
	content := benchmarkContent(2 * 1024)
	b.ReportAllocs()
	for b.Loop() {
		FindTermMatches(content, PlaceholderTerms)
	}
}

func BenchmarkFindTermMatches_LargePage(b *testing.B) {
	content := benchmarkContent(200 * 1024)
	b.ReportAllocs()
	for b.Loop() {
		FindTermMatches(content, PlaceholderTerms)
	}
}

func BenchmarkFindContacts(b *testing.B) {
	content := benchmarkContent(20 * 1024)
	b.ReportAllocs()
	for b.Loop() {
		FindContacts(content, "US", nil)
	}
}

func BenchmarkSplitIntoSentences(b *testing.B) {
	content := benchmarkContent(50 * 1024)
	b.ReportAllocs()
	for b.Loop() {
		splitIntoSentences(content)
	}
}

func TestSplitIntoSentencesBasic(t *testing.T) {
	content := "First sentence. Second one! Third?  trailing words"
	sentences := splitIntoSentences(content)

	want := []string{"First sentence.", "Second one!", "Third?", "trailing words"}
	if len(sentences) != len(want) {
		t.Fatalf("expected %d sentences, got %d", len(want), len(sentences))
	}
	for i, w := range want {
		if sentences[i].original != w {
			t.Errorf("sentence %d: expected %q, got %q", i, w, sentences[i].original)
		}
		if sentences[i].lower != strings.ToLower(w) {
			t.Errorf("sentence %d: lower form mismatch %q", i, sentences[i].lower)
		}
	}
}
