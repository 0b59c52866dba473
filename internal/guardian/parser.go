package guardian

import (
	"fmt"
	"regexp"
	"strings"
)

// Grammar is one chat line format. Grammars are matched independently and
// never merged into a single expression.
type Grammar struct {
	Name string
	re   *regexp.Regexp
}

// NewGrammar compiles pattern, which must have exactly two capture groups:
// speaker and message.
func NewGrammar(name, pattern string) (Grammar, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Grammar{}, err
	}
	if n := re.NumSubexp(); n != 2 {
		return Grammar{}, fmt.Errorf("guardian: grammar %q has %d capture groups, want 2", name, n)
	}
	return Grammar{Name: name, re: re}, nil
}

func mustGrammar(name, pattern string) Grammar {
	return Grammar{Name: name, re: regexp.MustCompile(pattern)}
}

// DefaultGrammars is the priority order used by DefaultParser.
var DefaultGrammars = []Grammar{
	mustGrammar("angle", `<([^>]+)> (.+)`),
	mustGrammar("chat_tag", `\[CHAT\] <([^>]+)> (.+)`),
	mustGrammar("bracket", `\[([^\]]+)\] (.+)`),
}

// Parser extracts (speaker, message) from raw log lines. The first grammar
// that matches anywhere in the line wins.
type Parser struct {
	grammars []Grammar
}

func NewParser(grammars ...Grammar) *Parser {
	return &Parser{grammars: append([]Grammar(nil), grammars...)}
}

func DefaultParser() *Parser { return NewParser(DefaultGrammars...) }

// Parse reports ok=false for lines that are not chat (log noise).
func (p *Parser) Parse(line string) (speaker, message string, ok bool) {
	for _, g := range p.grammars {
		m := g.re.FindStringSubmatch(line)
		if len(m) < 3 {
			continue
		}
		speaker, message = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if speaker == "" || message == "" {
			return "", "", false
		}
		return speaker, message, true
	}
	return "", "", false
}
