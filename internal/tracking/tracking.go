package tracking

import (
	"crypto/rand"
	"regexp"
)

const (
	// IDLength is the fixed width of a tracking id.
	IDLength = 6

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Messages carry the literal pattern `id:<tracking id>` so the submission
// flow can attribute a lead back to the touchpoint that produced it.
var idPattern = regexp.MustCompile(`id:([A-Za-z0-9]{6})`)

// Generate returns a 6-character tracking id drawn uniformly from
// [A-Za-z0-9]. There is no uniqueness guarantee by construction; callers
// that need uniqueness check the registry and retry on collision.
func Generate() string {
	// Reject bytes >= 248 (the largest multiple of 62 below 256) to keep
	// the per-character distribution uniform.
	const limit = 248

	out := make([]byte, 0, IDLength)
	buf := make([]byte, 16)
	for len(out) < IDLength {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand never fails on supported platforms
			panic(err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == IDLength {
				break
			}
		}
	}
	return string(out)
}

// Embed renders the message-embedding convention for a tracking id.
func Embed(id string) string {
	return "id:" + id
}

// Extract parses a tracking id out of free text using the fixed `id:XXXXXX`
// pattern. Returns false when the pattern is absent.
func Extract(text string) (string, bool) {
	m := idPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}
