package maps

import (
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var unsafeCharacters = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces a client supplied name to something that is safe to
// join onto a directory: ASCII only, no separators, whitespace collapsed to
// underscores, no leading or trailing dots and underscores.
func SecureFilename(name string) string {
	var ascii strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r > unicode.MaxASCII {
			continue
		}
		ascii.WriteRune(r)
	}

	name = strings.NewReplacer("/", " ", "\\", " ").Replace(ascii.String())
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeCharacters.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// BaseName extracts the file name from a content reference such as
// "maps/dungeon.png".
func BaseName(reference string) string {
	reference = strings.ReplaceAll(reference, "\\", "/")
	return path.Base(reference)
}

// ContentPath is the reference players use to fetch a content file.
func ContentPath(name string) string {
	return path.Join(CONTENT_PREFIX, SecureFilename(name))
}

func Extension(name string) string {
	index := strings.LastIndex(name, ".")
	if index == -1 {
		return ""
	}
	return strings.ToLower(name[index+1:])
}
