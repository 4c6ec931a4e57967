package bypass

import (
	"net/http"
	"strings"
	"testing"
)

func resp(status int, headers map[string]string, body string) *Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &Response{StatusCode: status, Headers: h, Body: []byte(body)}
}

func TestDetectors(t *testing.T) {
	tests := []struct {
		name       string
		detector   Detector
		res        *Response
		wantSource string
		wantReason string
	}{
		{"cloudflare ok page", detectCloudflare, resp(200, map[string]string{"Server": "cloudflare"}, "OK"), "", ""},
		{"cloudflare server header", detectCloudflare, resp(403, map[string]string{"Server": "cloudflare"}, "Access Denied"), "Cloudflare", "header"},
		{"cloudflare turnstile body", detectCloudflare, resp(503, nil, "<html>... cf-turnstile ...</html>"), "Cloudflare", "body"},
		{"cloudflare title mixed case", detectCloudflare, resp(403, nil, "<title>Attention Required! | Cloudflare</title>"), "Cloudflare", "body"},
		{"akamai server header", detectAkamai, resp(403, map[string]string{"Server": "AkamaiGHost"}, ""), "Akamai", "header"},
		{"akamai block page", detectAkamai, resp(403, nil, "Access Denied... Reference #123.456"), "Akamai", "body"},
		{"akamai needs both markers", detectAkamai, resp(403, nil, "Access Denied"), "", ""},
		{"datadome header", detectDataDome, resp(403, map[string]string{"x-datadome": "1"}, ""), "DataDome", "header"},
		{"datadome body", detectDataDome, resp(403, nil, "script src='https://geo.captcha-delivery.com/...'"), "DataDome", "body"},
		{"perimeterx header", detectPerimeterX, resp(403, map[string]string{"X-Px-Captcha": "1"}, ""), "PerimeterX", "header"},
		{"perimeterx body", detectPerimeterX, resp(403, nil, "<div id='px-captcha'></div>"), "PerimeterX", "body"},
		{"perimeterx wrong status", detectPerimeterX, resp(200, nil, "<div id='px-captcha'></div>"), "", ""},
		{"captcha interstitial", detectCaptcha, resp(200, nil, "<title>Are you a robot?</title><div class='g-recaptcha'></div>"), "Captcha", "body"},
		{"captcha on contact form", detectCaptcha, resp(200, nil, "<form><div class='g-recaptcha'></div></form>"), "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det, ok := tt.detector(tt.res)
			if ok != (tt.wantSource != "") {
				t.Fatalf("expected detected=%v, got %v (%+v)", tt.wantSource != "", ok, det)
			}
			if det.Source != tt.wantSource || det.Reason != tt.wantReason {
				t.Errorf("expected %s/%s, got %s/%s", tt.wantSource, tt.wantReason, det.Source, det.Reason)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	if _, ok := Analyze(nil, DefaultDetectors()); ok {
		t.Errorf("nil response must not be detected")
	}

	clean := resp(200, map[string]string{"Server": "nginx"}, "<html><body>Welcome</body></html>")
	if det, ok := Analyze(clean, DefaultDetectors()); ok {
		t.Errorf("expected clean page, got %+v", det)
	}

	blocked := resp(403, map[string]string{"Server": "cloudflare"}, "")
	det, ok := Analyze(blocked, DefaultDetectors())
	if !ok || det.Source != "Cloudflare" {
		t.Errorf("expected Cloudflare, got %+v", det)
	}
}

func TestScanLimit(t *testing.T) {
	body := strings.Repeat("a", scanLimit) + "px-captcha"
	if _, ok := detectPerimeterX(resp(403, nil, body)); ok {
		t.Errorf("markers past the scan limit should be ignored")
	}
}
