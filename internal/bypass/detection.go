// Package bypass recognizes anti-bot challenge and block pages so that the
// fetcher can report them as blocked instead of as ordinary content.
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// scanLimit bounds how much of the body the signature checks look at.
// Challenge pages put their markers near the top.
const scanLimit = 64 << 10

// Response is the part of an HTTP response the detectors look at.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Detection names the protection that challenged a request.
type Detection struct {
	Source string // e.g. "Cloudflare", "Akamai", "PerimeterX", "DataDome"
	Reason string // which signal matched: "header", "body", "status"
}

// Detector examines a response and reports whether a bot protection
// mechanism blocked or challenged it.
type Detector func(res *Response) (Detection, bool)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectCaptcha,
	}
}

// Analyze runs res through detectors in order and returns the first match.
func Analyze(res *Response, detectors []Detector) (Detection, bool) {
	if res == nil {
		return Detection{}, false
	}
	for _, d := range detectors {
		if det, ok := d(res); ok {
			return det, true
		}
	}
	return Detection{}, false
}

// signature is one vendor's set of markers. A response matches when its
// status is in statuses and any header or body marker is present.
type signature struct {
	source   string
	statuses []int
	server   []string // substrings of the lower-cased Server header
	headers  []string // presence of any of these headers
	body     [][]byte // lower-case body substrings
	allBody  [][]byte // all must be present
}

func (s signature) match(res *Response) (Detection, bool) {
	if !containsInt(s.statuses, res.StatusCode) {
		return Detection{}, false
	}

	server := strings.ToLower(res.Headers.Get("Server"))
	for _, marker := range s.server {
		if strings.Contains(server, marker) {
			return Detection{Source: s.source, Reason: "header"}, true
		}
	}
	for _, h := range s.headers {
		if res.Headers.Get(h) != "" {
			return Detection{Source: s.source, Reason: "header"}, true
		}
	}

	body := lowerPrefix(res.Body)
	for _, marker := range s.body {
		if bytes.Contains(body, marker) {
			return Detection{Source: s.source, Reason: "body"}, true
		}
	}
	if len(s.allBody) > 0 {
		for _, marker := range s.allBody {
			if !bytes.Contains(body, marker) {
				return Detection{}, false
			}
		}
		return Detection{Source: s.source, Reason: "body"}, true
	}
	return Detection{}, false
}

var (
	cloudflare = signature{
		source:   "Cloudflare",
		statuses: []int{http.StatusForbidden, http.StatusServiceUnavailable},
		server:   []string{"cloudflare"},
		body: [][]byte{
			[]byte("cf-browser-verification"),
			[]byte("cloudflare-nginx"),
			[]byte("cf-turnstile"),
			[]byte("attention required! | cloudflare"),
		},
	}
	akamai = signature{
		source:   "Akamai",
		statuses: []int{http.StatusForbidden},
		server:   []string{"akamai"},
		// Akamai's generic block page carries both markers.
		allBody: [][]byte{[]byte("reference #"), []byte("access denied")},
	}
	dataDome = signature{
		source:   "DataDome",
		statuses: []int{http.StatusForbidden},
		server:   []string{"datadome"},
		headers:  []string{"X-DataDome", "X-DataDome-Response"},
		body:     [][]byte{[]byte("geo.captcha-delivery.com"), []byte("datadome")},
	}
	perimeterX = signature{
		source:   "PerimeterX",
		statuses: []int{http.StatusForbidden},
		headers:  []string{"X-Px-Captcha"},
		body: [][]byte{
			[]byte("client.perimeterx.net"),
			[]byte("px-captcha"),
			[]byte("_pxblock"),
		},
	}
)

func detectCloudflare(res *Response) (Detection, bool) { return cloudflare.match(res) }
func detectAkamai(res *Response) (Detection, bool)     { return akamai.match(res) }
func detectDataDome(res *Response) (Detection, bool)   { return dataDome.match(res) }
func detectPerimeterX(res *Response) (Detection, bool) { return perimeterX.match(res) }

// detectCaptcha catches interstitial captcha pages served with a 200, which
// listing sites use instead of an error status.
func detectCaptcha(res *Response) (Detection, bool) {
	body := lowerPrefix(res.Body)
	if len(body) == 0 {
		return Detection{}, false
	}
	hasWidget := bytes.Contains(body, []byte("g-recaptcha")) ||
		bytes.Contains(body, []byte("h-captcha")) ||
		bytes.Contains(body, []byte("hcaptcha.com/1/api.js"))
	if !hasWidget {
		return Detection{}, false
	}
	// A captcha widget on a contact form is fine; a page that is nothing
	// but a challenge says so in its title.
	if bytes.Contains(body, []byte("are you a robot")) ||
		bytes.Contains(body, []byte("unusual traffic")) ||
		bytes.Contains(body, []byte("verify you are human")) {
		return Detection{Source: "Captcha", Reason: "body"}, true
	}
	return Detection{}, false
}

func lowerPrefix(b []byte) []byte {
	if len(b) > scanLimit {
		b = b[:scanLimit]
	}
	return bytes.ToLower(b)
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
