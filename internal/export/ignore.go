package export

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// IgnoreFile lists extra gitignore-style patterns excluded from backend.zip.
const IgnoreFile = ".trellisignore"

// DefaultIgnore is always excluded from backend.zip.
var DefaultIgnore = []string{
	".git/",
	".web/",
	"node_modules/",
	"__pycache__/",
	"*.pyc",
	".venv/",
	"venv/",
	"*.db",
	".env",
	FrontendZip,
	BackendZip,
}

// Matcher tests slash-separated relative paths against gitignore-style patterns.
// Negated patterns are not supported and are skipped.
type Matcher struct {
	patterns []pattern
}

type pattern struct {
	re      *regexp.Regexp
	dirOnly bool
}

// NewMatcher compiles patterns; blank lines and comments are skipped.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") || strings.HasPrefix(p, "!") {
			continue
		}
		m.patterns = append(m.patterns, pattern{
			re:      regexp.MustCompile(gitignoreToRegex(p)),
			dirOnly: strings.HasSuffix(p, "/"),
		})
	}
	return m
}

// LoadMatcher combines DefaultIgnore with the patterns in dir/.trellisignore.
func LoadMatcher(dir string) (*Matcher, error) {
	patterns := append([]string(nil), DefaultIgnore...)

	f, err := os.Open(filepath.Join(dir, IgnoreFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewMatcher(patterns), nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return NewMatcher(patterns), nil
}

// Match reports whether rel (relative to the project root) is ignored. isDir
// says whether rel itself is a directory; dir-only patterns match only those.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")
	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		if p.re.MatchString(rel) {
			return true
		}
	}
	return false
}

func gitignoreToRegex(p string) string {
	anchored := strings.HasPrefix(p, "/")
	p = strings.Trim(p, "/")
	p = regexp.QuoteMeta(p)
	p = strings.ReplaceAll(p, `\*\*`, ".*")
	p = strings.ReplaceAll(p, `\*`, "[^/]*")
	p = strings.ReplaceAll(p, `\?`, "[^/]")
	if anchored {
		return "^" + p + "$"
	}
	return "(^|/)" + p + "$"
}
