package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"newspipe/internal/textutil"
)

// Fingerprint derives the stable identity of an article from its title and
// resolved URL. Both are case-folded and whitespace-collapsed first, so
// trivial formatting differences map to the same fingerprint across runs.
func Fingerprint(title, articleURL string) string {
	h := sha256.New()
	io.WriteString(h, textutil.Normalize(title))
	io.WriteString(h, "\n")
	io.WriteString(h, textutil.Normalize(articleURL))
	return hex.EncodeToString(h.Sum(nil))
}
