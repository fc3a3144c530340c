package containerrt

import (
	"fmt"
	"strings"
)

// shellSpecialChars are the characters hex-escaped before a Pipe's
// variable values are interpolated into a `docker run -e K=V` argument,
// so a malicious or merely unlucky value can't break out of its quoting.
const shellSpecialChars = "\\$%{}\"'"

// EscapeShellString replaces every shell-special character with its
// \xNN hex escape.
func EscapeShellString(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(shellSpecialChars, r) && r < 128 {
			fmt.Fprintf(&b, "\\x%02x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
