package browser

import "strings"

var blockTitleMarkers = []string{
	"Just a moment",
	"Attention Required! | Cloudflare",
	"Access denied",
	"アクセスが制限されています",
}

var blockContentMarkers = []string{
	"cf-browser-verification",
	"cf-challenge-running",
	"challenges.cloudflare.com/turnstile",
	"Checking if the site connection is secure",
}

// DetectBlock reports whether a loaded document is a bot-protection
// interstitial rather than the requested page.
func DetectBlock(title, content string) bool {
	for _, m := range blockTitleMarkers {
		if strings.Contains(title, m) {
			return true
		}
	}
	for _, m := range blockContentMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}
