// Package fingerprint computes the lightweight document summaries used for
// cheap existence and change checks without a full parse.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// Hash returns the hex-encoded SHA-256 digest of content.
func Hash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

var wordRe = regexp.MustCompile(`[a-z0-9][a-z0-9-]{2,}`)

// maxKeywords bounds the keyword set so fingerprints stay cheap to store
// and compare.
const maxKeywords = 24

var stopwords = map[string]struct{}{
	"and": {}, "are": {}, "for": {}, "from": {}, "has": {}, "how": {},
	"its": {}, "not": {}, "the": {}, "this": {}, "was": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "with": {}, "your": {},
}

// Keywords derives a fingerprint keyword set from the document title and
// heading titles: lowercased words of three or more characters in first
// occurrence order, stopwords removed, capped at maxKeywords.
func Keywords(title string, headings []models.Heading) []string {
	seen := make(map[string]struct{})
	var out []string

	collect := func(text string) {
		for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
			if _, stop := stopwords[w]; stop {
				continue
			}
			if _, dup := seen[w]; dup {
				continue
			}
			if len(out) >= maxKeywords {
				return
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}

	collect(title)
	for _, h := range headings {
		if len(out) >= maxKeywords {
			break
		}
		collect(h.Title)
	}
	return out
}
