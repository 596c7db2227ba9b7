package extract

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	unsafeChars = regexp.MustCompile(`[<>:"|?*]`)
	dotRuns     = regexp.MustCompile(`\.\.+`)
)

// allowedExtensions is the attachment extension allow-list. Anything
// else is rejected before it reaches disk.
var allowedExtensions = map[string]struct{}{
	".las":  {},
	".txt":  {},
	".csv":  {},
	".pdf":  {},
	".doc":  {},
	".docx": {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

const maxFilenameLen = 255

// SanitizeFilename reduces an untrusted attachment name to a safe flat
// filename: path components stripped, unsafe characters replaced, runs
// of dots collapsed so no ".." sequence survives. An empty or dot-only
// result is replaced with a generated "attachment_<seq>.bin" name.
// Sanitizing is idempotent: applying it twice yields the same name.
func SanitizeFilename(name string, seq int) string {
	// Strip path components, including backslash-separated ones from
	// non-POSIX senders.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = unsafeChars.ReplaceAllString(name, "_")
	name = dotRuns.ReplaceAllString(name, ".")

	if len(name) > maxFilenameLen {
		name = truncateFilename(name)
	}

	if name == "" || name == "." {
		return fmt.Sprintf("attachment_%d.bin", seq)
	}
	return name
}

// truncateFilename caps a name at maxFilenameLen bytes, keeping the
// extension when it fits and never splitting a multibyte rune. The
// extension itself is attacker-controlled and can exceed the cap, in
// which case it is not worth preserving.
func truncateFilename(name string) string {
	ext := filepath.Ext(name)
	if len(ext) >= maxFilenameLen {
		ext = ""
	}

	base := name[:len(name)-len(ext)]
	keep := maxFilenameLen - len(ext)
	for keep > 0 && !utf8.RuneStart(base[keep]) {
		keep--
	}
	return base[:keep] + ext
}

// ExtensionAllowed reports whether the filename's extension is on the
// allow-list. The comparison is case-insensitive.
func ExtensionAllowed(name string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
