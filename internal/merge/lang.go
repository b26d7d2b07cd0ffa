package merge

import (
	"regexp"
	"strings"
	"unicode"
)

// The built-in parsers are line-oriented structural extractors, not
// full grammars: provider output is frequently truncated or lightly
// malformed, and a tolerant scanner still yields the declaration list
// the merge strategies need. A line that defeats the scanner surfaces
// as part of the preceding declaration's body rather than an error.

type pythonParser struct{}

func (p *pythonParser) Language() string { return "python" }

var (
	pyDefRe    = regexp.MustCompile(`^(async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\((.*?)\)`)
	pyClassRe  = regexp.MustCompile(`^class\s+([A-Za-z_][A-Za-z0-9_]*)`)
	pyImportRe = regexp.MustCompile(`^(import\s+\S+|from\s+\S+\s+import\s+.+)$`)
)

func (p *pythonParser) Parse(content string) (*Structure, error) {
	s := &Structure{Language: "python"}
	lines := strings.Split(content, "\n")

	flush := func(start, end int, kind, name string, arity int) {
		body := strings.Join(lines[start:end], "\n")
		s.Decls = append(s.Decls, Decl{
			Kind:       kind,
			Name:       name,
			Arity:      arity,
			Body:       body,
			Complexity: Complexity(body),
			Exported:   !strings.HasPrefix(name, "_"),
		})
	}

	i := 0
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		indented := len(line) > 0 && (line[0] == ' ' || line[0] == '\t')

		switch {
		case !indented && pyImportRe.MatchString(trimmed):
			s.Imports = append(s.Imports, trimmed)
			i++
		case !indented && pyDefRe.MatchString(trimmed):
			m := pyDefRe.FindStringSubmatch(trimmed)
			end := pyBlockEnd(lines, i)
			flush(i, end, "function", m[2], countArgs(m[3]))
			i = end
		case !indented && pyClassRe.MatchString(trimmed):
			m := pyClassRe.FindStringSubmatch(trimmed)
			end := pyBlockEnd(lines, i)
			flush(i, end, "class", m[1], 0)
			i = end
		default:
			i++
		}
	}
	return s, nil
}

// pyBlockEnd scans forward from the def/class header at start to the
// first subsequent non-blank line at column zero.
func pyBlockEnd(lines []string, start int) int {
	for i := start + 1; i < len(lines); i++ {
		line := lines[i]
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			return i
		}
	}
	return len(lines)
}

type goParser struct{}

func (p *goParser) Language() string { return "go" }

var (
	goFuncRe   = regexp.MustCompile(`^func\s+(\([^)]*\)\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*\((.*?)\)`)
	goTypeRe   = regexp.MustCompile(`^type\s+([A-Za-z_][A-Za-z0-9_]*)\s`)
	goImportRe = regexp.MustCompile(`^import\s+(?:\w+\s+)?"([^"]+)"`)
	goConstRe  = regexp.MustCompile(`^(const|var)\s+([A-Za-z_][A-Za-z0-9_]*)`)
)

func (p *goParser) Parse(content string) (*Structure, error) {
	s := &Structure{Language: "go"}
	lines := strings.Split(content, "\n")

	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		switch {
		case goImportRe.MatchString(trimmed):
			s.Imports = append(s.Imports, goImportRe.FindStringSubmatch(trimmed)[1])
			i++
		case trimmed == "import (":
			i++
			for i < len(lines) {
				t := strings.TrimSpace(lines[i])
				if t == ")" {
					i++
					break
				}
				if q := regexp.MustCompile(`"([^"]+)"`).FindStringSubmatch(t); q != nil {
					s.Imports = append(s.Imports, q[1])
				}
				i++
			}
		case goFuncRe.MatchString(trimmed):
			m := goFuncRe.FindStringSubmatch(trimmed)
			end := braceBlockEnd(lines, i)
			body := strings.Join(lines[i:end], "\n")
			s.Decls = append(s.Decls, Decl{
				Kind:       "function",
				Name:       m[2],
				Arity:      countArgs(m[3]),
				Body:       body,
				Complexity: Complexity(body),
				Exported:   isUpper(m[2]),
			})
			i = end
		case goTypeRe.MatchString(trimmed):
			m := goTypeRe.FindStringSubmatch(trimmed)
			end := braceBlockEnd(lines, i)
			body := strings.Join(lines[i:end], "\n")
			s.Decls = append(s.Decls, Decl{
				Kind: "type", Name: m[1], Body: body,
				Complexity: Complexity(body), Exported: isUpper(m[1]),
			})
			i = end
		case goConstRe.MatchString(trimmed):
			m := goConstRe.FindStringSubmatch(trimmed)
			s.Decls = append(s.Decls, Decl{
				Kind: m[1], Name: m[2], Body: trimmed,
				Complexity: 1, Exported: isUpper(m[2]),
			})
			i++
		default:
			i++
		}
	}
	return s, nil
}

type jsParser struct{}

func (p *jsParser) Language() string { return "javascript" }

var (
	jsFuncRe   = regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\((.*?)\)`)
	jsArrowRe  = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*(?:async\s+)?\((.*?)\)\s*=>`)
	jsClassRe  = regexp.MustCompile(`^(?:export\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	jsImportRe = regexp.MustCompile(`^import\s+.+\s+from\s+['"]([^'"]+)['"]`)
)

func (p *jsParser) Parse(content string) (*Structure, error) {
	s := &Structure{Language: "javascript"}
	lines := strings.Split(content, "\n")

	i := 0
	for i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		var name, args, kind string
		switch {
		case jsImportRe.MatchString(trimmed):
			s.Imports = append(s.Imports, jsImportRe.FindStringSubmatch(trimmed)[1])
			i++
			continue
		case jsFuncRe.MatchString(trimmed):
			m := jsFuncRe.FindStringSubmatch(trimmed)
			name, args, kind = m[1], m[2], "function"
		case jsArrowRe.MatchString(trimmed):
			m := jsArrowRe.FindStringSubmatch(trimmed)
			name, args, kind = m[1], m[2], "function"
		case jsClassRe.MatchString(trimmed):
			m := jsClassRe.FindStringSubmatch(trimmed)
			name, kind = m[1], "class"
		default:
			i++
			continue
		}
		end := braceBlockEnd(lines, i)
		body := strings.Join(lines[i:end], "\n")
		s.Decls = append(s.Decls, Decl{
			Kind:       kind,
			Name:       name,
			Arity:      countArgs(args),
			Body:       body,
			Complexity: Complexity(body),
			Exported:   true,
		})
		i = end
	}
	return s, nil
}

// braceBlockEnd scans from the header line at start to the line after
// the brace-balanced end of the block. A header with no opening brace
// is a single-line declaration.
func braceBlockEnd(lines []string, start int) int {
	depth := 0
	opened := false
	for i := start; i < len(lines); i++ {
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return i + 1
		}
	}
	if !opened {
		return start + 1
	}
	return len(lines)
}

func isUpper(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}
