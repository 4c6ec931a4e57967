// Package analyzer finds terms and contact details in page text.
package analyzer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// PlaceholderTerms are template leftovers that mean a site's contact details
// were never filled in.
var PlaceholderTerms = []string{
	"555-555-5555",
	"(555) 555-5555",
	"123-456-7890",
	"(123) 456-7890",
	"example@example.com",
	"email@example.com",
	"your@email.com",
	"youremail@domain.com",
	"info@yourdomain.com",
	"lorem ipsum",
	"your address here",
	"123 main street, anytown",
	"your business name",
}

// TermMatch represents occurrences of a term within a page.
type TermMatch struct {
	Term      string   `json:"term"`
	Count     int      `json:"count"`
	Sentences []string `json:"sentences"`
}

// FindTermMatches scans content for each term (case-insensitive) and returns
// one TermMatch per term found, with the sentences that contain it. Terms
// that do not occur are omitted.
func FindTermMatches(content string, terms []string) []TermMatch {
	if len(content) == 0 || len(terms) == 0 {
		return nil
	}

	lowerContent := strings.ToLower(content)
	sentences := splitIntoSentences(content)

	results := make([]TermMatch, 0, len(terms))
	for _, term := range terms {
		lowerTerm := strings.ToLower(term)
		if lowerTerm == "" {
			continue
		}
		count := strings.Count(lowerContent, lowerTerm)
		if count == 0 {
			continue
		}

		var matched []string
		for _, sd := range sentences {
			if strings.Contains(sd.lower, lowerTerm) {
				matched = append(matched, sd.original)
			}
		}

		results = append(results, TermMatch{
			Term:      term,
			Count:     count,
			Sentences: matched,
		})
	}
	return results
}

// MatchedTerms returns the sorted, distinct terms that occur in content.
func MatchedTerms(content string, terms []string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, m := range FindTermMatches(content, terms) {
		key := strings.ToLower(m.Term)
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// sentence holds original and lowercase versions together
type sentence struct {
	original string
	lower    string
}

// splitIntoSentences splits text on '.', '!' or '?', keeping the delimiter at
// the end of each sentence.
func splitIntoSentences(text string) []sentence {
	if len(text) == 0 {
		return nil
	}

	// Estimate sentence count: roughly 1 sentence per 50 chars average
	sentences := make([]sentence, 0, max(len(text)/50, 1))
	start := 0

	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, sentence{original: s, lower: strings.ToLower(s)})
		}
	}

	for i, r := range text {
		if i < start {
			continue
		}
		if r == '.' || r == '!' || r == '?' {
			end := i + 1
			for end < len(text) && unicode.IsSpace(rune(text[end])) {
				end++
			}
			add(text[start:end])
			start = end
		}
	}
	if start < len(text) {
		add(text[start:])
	}
	return sentences
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\(?\d[\d\s().-]{7,}\d`)
)

// Contacts are the contact details found in a page.
type Contacts struct {
	Emails []string
	// Phones are E.164 without the leading '+'.
	Phones []string
}

// Empty reports whether no contact detail was found.
func (c Contacts) Empty() bool {
	return len(c.Emails) == 0 && len(c.Phones) == 0
}

// FindContacts extracts email addresses and valid phone numbers from text.
// Numbers without a country code are read in region. Values equal to one of
// terms are skipped; nil terms means PlaceholderTerms.
func FindContacts(text, region string, terms []string) Contacts {
	if terms == nil {
		terms = PlaceholderTerms
	}
	var c Contacts
	seen := make(map[string]bool)

	for _, m := range emailPattern.FindAllString(text, -1) {
		email := strings.ToLower(strings.TrimRight(m, "."))
		if seen[email] || isPlaceholder(email, terms) {
			continue
		}
		seen[email] = true
		c.Emails = append(c.Emails, email)
	}

	for _, m := range phonePattern.FindAllString(text, -1) {
		if isPlaceholder(m, terms) {
			continue
		}
		num, err := phonenumbers.Parse(m, region)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			continue
		}
		e164 := strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+")
		if seen[e164] {
			continue
		}
		seen[e164] = true
		c.Phones = append(c.Phones, e164)
	}
	return c
}

func isPlaceholder(s string, terms []string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, term := range terms {
		if s == strings.ToLower(term) {
			return true
		}
	}
	return false
}
