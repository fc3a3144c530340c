package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	trimDashes   = regexp.MustCompile(`^-+|-+$`)
)

// Slugify lower-cases a string and collapses anything that isn't
// [a-z0-9] into a single dash, trimming leading/trailing dashes. No
// ecosystem slug library (e.g. gosimple/slug) appears anywhere in the
// retrieval pack, so this stays a small stdlib helper.
func Slugify(s string) string {
	lower := strings.ToLower(s)
	dashed := nonSlugChars.ReplaceAllString(lower, "-")
	return trimDashes.ReplaceAllString(dashed, "")
}

// StableHash returns a short, deterministic hex fingerprint of a string,
// used to disambiguate two projects that slugify to the same name.
func StableHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:10]
}

// PathSlug computes the directory name a project's persisted state lives
// under: slug(basename) + "-" + stable-hash(full path).
func PathSlug(name, fullPath string) string {
	return Slugify(name) + "-" + StableHash(fullPath)
}

// KeyFromSlug derives the short project "key" (e.g. BITBUCKET_PROJECT_KEY)
// from a slug: the uppercased initials of its dash-separated words,
// e.g. "my-cool-app" -> "MCA".
func KeyFromSlug(slug string) string {
	parts := strings.Split(slug, "-")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteByte(strings.ToUpper(p)[0])
	}
	if b.Len() == 0 {
		return "PRJ"
	}
	return b.String()
}
