// Package normalize canonicalizes the free-text fields scraped from business
// listings so that the same business reads the same way across sources.
package normalize

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultRegion is used to interpret phone numbers written without a country code.
const DefaultRegion = "US"

// Phone returns a canonical digit string for raw: the E.164 form without the
// leading '+' when the number parses as valid for region, otherwise just the
// digits found in raw.
func Phone(raw, region string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if region == "" {
		region = DefaultRegion
	}

	if num, err := phonenumbers.Parse(trimmed, region); err == nil && phonenumbers.IsValidNumber(num) {
		return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+")
	}
	return digits(trimmed)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Address collapses whitespace, normalizes comma spacing and title-cases
// words. The result does not depend on the input's casing: directionals
// ("NE") are always upper-case, and so are state codes ("WA") outside the
// street part or when followed by a ZIP code.
func Address(raw string) string {
	// Casers carry state and must not be shared across goroutines.
	title := cases.Title(language.English)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		words := strings.Fields(part)
		if len(words) == 0 {
			continue
		}
		street := len(out) == 0
		for i, w := range words {
			lower := strings.ToLower(w)
			upper := strings.ToUpper(w)
			switch {
			case directionals[upper]:
				words[i] = upper
			case stateCodes[upper] && (!street || (i+1 < len(words) && isZIP(words[i+1]))):
				words[i] = upper
			case w != "" && unicode.IsDigit(rune(w[0])):
				// "123rd" and "5th" stay lower-case after the digits.
				words[i] = lower
			default:
				words[i] = title.String(lower)
			}
		}
		out = append(out, strings.Join(words, " "))
	}
	return strings.Join(out, ", ")
}

var directionals = set("N", "S", "E", "W", "NE", "NW", "SE", "SW")

var stateCodes = set(
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "DC", "FL", "GA", "HI", "ID",
	"IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD", "MA", "MI", "MN", "MS", "MO",
	"MT", "NE", "NV", "NH", "NJ", "NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA",
	"PR", "RI", "SC", "SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
)

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// isZIP matches "98101" and "98101-1234".
func isZIP(w string) bool {
	if len(w) != 5 && len(w) != 10 {
		return false
	}
	for i, r := range w {
		if i == 5 && r == '-' && len(w) == 10 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// trackingParams are dropped from canonical website URLs.
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"msclkid": true,
	"dclid":   true,
	"yclid":   true,
	"ref":     true,
	"_ga":     true,
	"_gl":     true,
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	return trackingParams[k] || strings.HasPrefix(k, "utm_") || strings.HasPrefix(k, "mc_")
}

// URL canonicalizes a website URL: lower-case scheme and host, no fragment,
// no trailing slash on the path, tracking parameters removed. A missing
// scheme defaults to http. Values that cannot be turned into an http(s)
// URL with a host yield "".
func URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + strings.TrimPrefix(raw, "//")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Host = strings.ToLower(u.Host)
	if u.Hostname() == "" {
		return ""
	}
	if (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443") {
		u.Host = u.Hostname()
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if isTrackingParam(key) {
				q.Del(key)
			}
		}
		// Encode sorts keys, which keeps the canonical form stable.
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Key folds text for identity comparison: lower-case, punctuation removed,
// whitespace collapsed. "Joe's Café, Inc." and "joes café inc" share a key.
func Key(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == ',' || r == '-' || r == '/':
			space = true
		}
	}
	return b.String()
}

// Text trims and collapses internal whitespace.
func Text(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
