// Package ignore implements .gitignore-style path exclusion with a single
// glob-matching implementation shared by the filesystem adapter and the
// branch sync engine.
package ignore

import (
	"path/filepath"
	"regexp"
	"strings"
)

// hardcoded patterns excluded regardless of rule-file contents:
// version-control metadata, secret files, and dependency caches.
var hardcoded = []string{
	".git",
	".framegit",
	".env",
	".env.local",
	"node_modules",
	"vendor",
}

// RuleSet is an ordered list of ignore patterns plus implicit excludes.
type RuleSet struct {
	patterns []pattern
}

type pattern struct {
	raw       string
	negated   bool // parsed but not honored: matched like an ordinary pattern
	dirOnly   bool
	hasSlash  bool // pattern contains a slash, so match against the full path
	dirPrefix bool // hardcoded and dir-only patterns also match descendants
	regex     *regexp.Regexp
}

// Default returns a RuleSet containing only the hardcoded excludes.
func Default() *RuleSet {
	return Parse("")
}

// Parse builds a RuleSet from .gitignore-style content. Blank lines and
// # comments are skipped. The hardcoded excludes always apply and cannot
// be overridden.
func Parse(content string) *RuleSet {
	rs := &RuleSet{}
	for _, h := range hardcoded {
		rs.patterns = append(rs.patterns, pattern{raw: h, dirPrefix: true})
	}
	for _, line := range strings.Split(content, "\n") {
		if p := parseLine(line); p != nil {
			rs.patterns = append(rs.patterns, *p)
		}
	}
	return rs
}

// parseLine parses a single rule line. Returns nil for blanks and comments.
func parseLine(line string) *pattern {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	p := &pattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		p.dirPrefix = true
		line = strings.TrimRight(line, "/")
	}
	p.hasSlash = strings.Contains(line, "/")
	p.raw = line
	if strings.Contains(line, "**") {
		if re, err := regexp.Compile(globToRegex(line)); err == nil {
			p.regex = re
		}
	}
	return p
}

// Match reports whether the path is excluded. The path must use forward
// slashes and be relative to the synced root.
//
// Negated (!) patterns are parsed but matched like ordinary patterns; a
// path matching "!keep.txt" is still ignored.
func (rs *RuleSet) Match(path string) bool {
	path = strings.Trim(filepath.ToSlash(path), "/")
	if path == "" || path == "." {
		return false
	}
	base := path[strings.LastIndexByte(path, '/')+1:]

	for i := range rs.patterns {
		if rs.patterns[i].matches(path, base) {
			return true
		}
	}
	return false
}

func (p *pattern) matches(path, base string) bool {
	// Prefix patterns exclude the matched segment and everything beneath
	// it. Slashless ones apply at any depth; patterns with a slash stay
	// anchored to the root.
	if p.dirPrefix {
		if p.hasSlash {
			return path == p.raw || strings.HasPrefix(path, p.raw+"/")
		}
		return p.anySegment(path)
	}

	if p.hasSlash {
		return p.match(path)
	}
	return p.match(base)
}

// anySegment reports whether the pattern matches any single segment of
// the path.
func (p *pattern) anySegment(path string) bool {
	for {
		seg := path
		if i := strings.IndexByte(path, '/'); i >= 0 {
			seg, path = path[:i], path[i+1:]
		} else {
			path = ""
		}
		if p.match(seg) {
			return true
		}
		if path == "" {
			return false
		}
	}
}

func (p *pattern) match(target string) bool {
	if p.regex != nil {
		return p.regex.MatchString(target)
	}
	matched, _ := filepath.Match(p.raw, target)
	return matched
}

func globToRegex(pat string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pat); i++ {
		ch := pat[i]
		if ch == '*' {
			if i+1 < len(pat) && pat[i+1] == '*' {
				if i+2 < len(pat) && pat[i+2] == '/' {
					// Globstar directory segment: zero or more path segments.
					b.WriteString("(?:.*/)?")
					i += 2
				} else {
					b.WriteString(".*")
					i++
				}
				continue
			}
			b.WriteString("[^/]*")
			continue
		}
		if ch == '?' {
			b.WriteString("[^/]")
			continue
		}
		if strings.ContainsRune(`.+()|[]{}^$\\`, rune(ch)) {
			b.WriteByte('\\')
		}
		b.WriteByte(ch)
	}
	b.WriteString("$")
	return b.String()
}
