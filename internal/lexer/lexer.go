// Package lexer separates code from comments and string literals for the
// languages docsync understands. Parser adapters use the masked output to find
// declarations and braces without being fooled by quoted text, and the model
// builder uses Normalize to hash element bodies independent of layout.
package lexer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// BacktickMode describes how a language treats the ` character
type BacktickMode int

const (
	BacktickNone     BacktickMode = iota
	BacktickRaw                   // Go raw strings
	BacktickTemplate              // JS template literals with ${...}
)

// Syntax describes the lexical rules needed to mask a language
type Syntax struct {
	LineComment   string // "//" or "#"
	BlockComments bool   // /* ... */
	Backtick      BacktickMode
	TripleQuotes  bool // """ and ''' strings
	RegexLiterals bool // JS-style /re/ literals
	StrPrefixes   bool // Python r"", b"", f"" prefixes belong to the literal
	LenientQuotes bool // unterminated single-line strings end at EOL instead of failing
	Indented      bool // indentation delimits blocks
}

// Predefined syntaxes
var (
	Python     = Syntax{LineComment: "#", TripleQuotes: true, StrPrefixes: true, Indented: true}
	Go         = Syntax{LineComment: "//", BlockComments: true, Backtick: BacktickRaw}
	JavaScript = Syntax{LineComment: "//", BlockComments: true, Backtick: BacktickTemplate, RegexLiterals: true, LenientQuotes: true}
	Java       = Syntax{LineComment: "//", BlockComments: true, TripleQuotes: true}
)

// ErrUnterminated is wrapped by Mask when a comment or multi-line string never closes
var ErrUnterminated = errors.New("unterminated token")

// ForLanguage returns the syntax for a language tag. The second result is
// false when the language is unknown.
func ForLanguage(lang string) (Syntax, bool) {
	switch lang {
	case "python":
		return Python, true
	case "go":
		return Go, true
	case "javascript", "typescript":
		return JavaScript, true
	case "java":
		return Java, true
	default:
		return Syntax{}, false
	}
}

// Comment is a comment found in source. Lines are 1-based.
type Comment struct {
	StartLine int
	EndLine   int
	Text      string // Raw text including delimiters
	Block     bool
	Doc       bool // Block comment opened with /**
	Trailing  bool // Preceded by code on its first line
}

// Literal is a string literal found in source
type Literal struct {
	StartLine int
	EndLine   int
	StartCol  int // 0-based byte column of the first character (prefix or quote)
	Text      string
}

// Masked is source with comments and literal contents blanked out. Newlines
// are kept so line numbers in Code match the original.
type Masked struct {
	Code     []byte
	Comments []Comment
	Literals []Literal
}

// Lines returns the masked code split into lines
func (m *Masked) Lines() []string {
	return strings.Split(string(m.Code), "\n")
}

// LiteralAt returns the literal starting on the given line, if any
func (m *Masked) LiteralAt(line int) *Literal {
	for i := range m.Literals {
		if m.Literals[i].StartLine == line {
			return &m.Literals[i]
		}
		if m.Literals[i].StartLine > line {
			break
		}
	}
	return nil
}

type scanner struct {
	src  []byte
	syn  Syntax
	pos  int
	line int
	col  int
	out  []byte

	comments []Comment
	literals []Literal

	// lineHasCode tracks whether non-space code was seen on the current line
	lineHasCode bool
	// prevSignificant is the last non-space code byte, used for regex detection
	prevSignificant byte
	prevWord        string
	wordBroken      bool

	litStart int

	// template nesting: each entry counts open braces inside a ${ } expression
	templates []int

	// keep literal text when true (Normalize)
	emitLiterals bool
	// drop whitespace outside literals when true (Normalize)
	dropSpace bool

	// block structure of indented languages under Normalize
	indents     []int
	brackets    int
	atLineStart bool
}

// Mask blanks out comments and string contents in src. Delimiters of string
// literals are kept so the masked code still shows where a literal sits.
func Mask(src []byte, syn Syntax) (*Masked, error) {
	s := &scanner{src: src, syn: syn, line: 1}
	if err := s.run(); err != nil {
		return nil, err
	}
	return &Masked{Code: s.out, Comments: s.comments, Literals: s.literals}, nil
}

// Normalize removes comments and whitespace outside string literals. Adjacent
// words stay apart by a single space, and indented languages keep one depth
// marker per logical line. Unterminated tokens are tolerated: the remainder is
// kept with its whitespace collapsed.
func Normalize(src string, syn Syntax) string {
	syn.LenientQuotes = true
	s := &scanner{src: []byte(src), syn: syn, line: 1, emitLiterals: true, dropSpace: true, atLineStart: true}
	if err := s.run(); err != nil {
		rest := strings.Join(strings.Fields(string(s.src[s.pos:])), " ")
		if rest == "" {
			return string(s.out)
		}
		return string(s.out) + " " + rest
	}
	return string(s.out)
}

func (s *scanner) peek(off int) byte {
	if s.pos+off < len(s.src) {
		return s.src[s.pos+off]
	}
	return 0
}

func (s *scanner) hasPrefix(p string) bool {
	return strings.HasPrefix(string(s.src[s.pos:min(len(s.src), s.pos+len(p))]), p)
}

// emitCode consumes one byte and writes it to out as code
func (s *scanner) emitCode() {
	c := s.src[s.pos]
	if c == '\n' {
		s.consume()
		if !s.dropSpace {
			s.out = append(s.out, c)
		}
		if s.brackets == 0 && s.prevSignificant != '\\' {
			s.atLineStart = true
		}
		s.wordBroken = true
		return
	}
	if isSpace(c) {
		s.consume()
		if !s.dropSpace {
			s.out = append(s.out, c)
		}
		s.wordBroken = true
		return
	}
	marked := s.markLine()
	s.consume()
	if s.dropSpace && !marked && s.wordBroken && s.prevWord != "" && isWordByte(c) {
		s.out = append(s.out, ' ')
	}
	switch c {
	case '(', '[', '{':
		s.brackets++
	case ')', ']', '}':
		if s.brackets > 0 {
			s.brackets--
		}
	}
	s.out = append(s.out, c)
	s.lineHasCode = true
	s.prevSignificant = c
	if isWordByte(c) {
		if s.wordBroken {
			s.prevWord = ""
		}
		s.prevWord += string(c)
	} else {
		s.prevWord = ""
	}
	s.wordBroken = false
}

// consume moves past one byte, tracking line and column
func (s *scanner) consume() {
	if s.src[s.pos] == '\n' {
		s.line++
		s.col = 0
		s.lineHasCode = false
	} else {
		s.col++
	}
	s.pos++
}

// blank consumes one byte inside a comment or literal
func (s *scanner) blank(keep bool) {
	c := s.src[s.pos]
	s.consume()
	switch {
	case keep:
		s.out = append(s.out, c)
	case c == '\n':
		if !s.dropSpace {
			s.out = append(s.out, '\n')
		}
	case !s.dropSpace:
		s.out = append(s.out, ' ')
	}
}

func (s *scanner) run() error {
	for s.pos < len(s.src) {
		c := s.src[s.pos]

		if len(s.templates) > 0 {
			switch c {
			case '{':
				s.templates[len(s.templates)-1]++
			case '}':
				if s.templates[len(s.templates)-1] == 0 {
					s.templates = s.templates[:len(s.templates)-1]
					s.emitCode()
					if err := s.template(); err != nil {
						return err
					}
					continue
				}
				s.templates[len(s.templates)-1]--
			}
		}

		switch {
		case s.syn.LineComment != "" && s.hasPrefix(s.syn.LineComment):
			s.lineComment()
		case s.syn.BlockComments && s.hasPrefix("/*"):
			if err := s.blockComment(); err != nil {
				return err
			}
		case s.syn.TripleQuotes && (s.hasPrefix(`"""`) || s.hasPrefix("'''")):
			if err := s.triple(); err != nil {
				return err
			}
		case c == '"' || c == '\'':
			if err := s.quoted(c); err != nil {
				return err
			}
		case c == '`' && s.syn.Backtick == BacktickRaw:
			if err := s.raw(); err != nil {
				return err
			}
		case c == '`' && s.syn.Backtick == BacktickTemplate:
			s.emitDelim()
			if err := s.template(); err != nil {
				return err
			}
		case c == '/' && s.syn.RegexLiterals && s.regexAllowed():
			s.regex()
		default:
			s.emitCode()
		}
	}
	return nil
}

// markLine writes the block depth before the first token of a logical line
// of an indented language. It reports whether a marker was written.
func (s *scanner) markLine() bool {
	if !s.atLineStart {
		return false
	}
	s.atLineStart = false
	if !s.dropSpace || !s.syn.Indented {
		return false
	}
	for len(s.indents) > 0 && s.indents[len(s.indents)-1] > s.col {
		s.indents = s.indents[:len(s.indents)-1]
	}
	if len(s.indents) == 0 || s.indents[len(s.indents)-1] < s.col {
		s.indents = append(s.indents, s.col)
	}
	s.out = append(s.out, '\n')
	s.out = strconv.AppendInt(s.out, int64(len(s.indents)-1), 10)
	s.out = append(s.out, ':')
	return true
}

func (s *scanner) emitDelim() {
	c := s.src[s.pos]
	s.markLine()
	s.consume()
	s.out = append(s.out, c)
	s.lineHasCode = true
	s.prevSignificant = c
	s.prevWord = ""
	s.wordBroken = false
}

func (s *scanner) literalStart() {
	start := s.pos
	// Prefix letters were already written out as code
	for s.syn.StrPrefixes && start > 0 && s.pos-start < 2 && strings.IndexByte("rRbBfFuU", s.src[start-1]) >= 0 {
		start--
	}
	s.literals = append(s.literals, Literal{
		StartLine: s.line,
		StartCol:  s.col - (s.pos - start),
	})
	s.litStart = start
}

func (s *scanner) literalEnd() {
	if len(s.literals) == 0 {
		return
	}
	l := &s.literals[len(s.literals)-1]
	l.EndLine = s.line
	l.Text = string(s.src[s.litStart:s.pos])
}

func (s *scanner) lineComment() {
	start := s.pos
	startLine := s.line
	trailing := s.lineHasCode
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		s.blank(false)
	}
	s.comments = append(s.comments, Comment{
		StartLine: startLine,
		EndLine:   startLine,
		Text:      string(s.src[start:s.pos]),
		Trailing:  trailing,
	})
}

func (s *scanner) blockComment() error {
	start := s.pos
	startLine := s.line
	trailing := s.lineHasCode
	doc := s.hasPrefix("/**") && !s.hasPrefix("/**/")
	s.blank(false)
	s.blank(false)
	for {
		if s.pos >= len(s.src) {
			return fmt.Errorf("%w: block comment opened on line %d", ErrUnterminated, startLine)
		}
		if s.hasPrefix("*/") {
			s.blank(false)
			s.blank(false)
			break
		}
		s.blank(false)
	}
	s.comments = append(s.comments, Comment{
		StartLine: startLine,
		EndLine:   s.line,
		Text:      string(s.src[start:s.pos]),
		Block:     true,
		Doc:       doc,
		Trailing:  trailing,
	})
	s.wordBroken = true
	return nil
}

func (s *scanner) triple() error {
	quote := string(s.src[s.pos : s.pos+3])
	startLine := s.line
	s.literalStart()
	s.emitDelim()
	s.emitDelim()
	s.emitDelim()
	for {
		if s.pos >= len(s.src) {
			return fmt.Errorf("%w: triple-quoted string opened on line %d", ErrUnterminated, startLine)
		}
		if s.src[s.pos] == '\\' && s.pos+1 < len(s.src) {
			s.blank(s.emitLiterals)
			s.blank(s.emitLiterals)
			continue
		}
		if s.hasPrefix(quote) {
			s.emitDelim()
			s.emitDelim()
			s.emitDelim()
			break
		}
		s.blank(s.emitLiterals)
	}
	s.literalEnd()
	return nil
}

func (s *scanner) quoted(q byte) error {
	startLine := s.line
	s.literalStart()
	s.emitDelim()
	for {
		if s.pos >= len(s.src) || s.src[s.pos] == '\n' {
			if s.syn.LenientQuotes {
				s.literalEnd()
				return nil
			}
			return fmt.Errorf("%w: string opened on line %d", ErrUnterminated, startLine)
		}
		c := s.src[s.pos]
		if c == '\\' && s.pos+1 < len(s.src) {
			s.blank(s.emitLiterals)
			s.blank(s.emitLiterals)
			continue
		}
		if c == q {
			s.emitDelim()
			break
		}
		s.blank(s.emitLiterals)
	}
	s.literalEnd()
	return nil
}

func (s *scanner) raw() error {
	startLine := s.line
	s.literalStart()
	s.emitDelim()
	for {
		if s.pos >= len(s.src) {
			return fmt.Errorf("%w: raw string opened on line %d", ErrUnterminated, startLine)
		}
		if s.src[s.pos] == '`' {
			s.emitDelim()
			break
		}
		s.blank(s.emitLiterals)
	}
	s.literalEnd()
	return nil
}

// template scans the body of a template literal up to the closing backtick or
// the start of a ${ expression. The opening delimiter is already consumed.
func (s *scanner) template() error {
	startLine := s.line
	for {
		if s.pos >= len(s.src) {
			return fmt.Errorf("%w: template literal opened on line %d", ErrUnterminated, startLine)
		}
		c := s.src[s.pos]
		if c == '\\' && s.pos+1 < len(s.src) {
			s.blank(s.emitLiterals)
			s.blank(s.emitLiterals)
			continue
		}
		if c == '`' {
			s.emitDelim()
			return nil
		}
		if c == '$' && s.peek(1) == '{' {
			s.emitDelim()
			s.emitDelim()
			s.templates = append(s.templates, 0)
			return nil
		}
		s.blank(s.emitLiterals)
	}
}

// regexAllowed decides whether a slash starts a regex literal rather than a
// division, based on the previous significant token.
func (s *scanner) regexAllowed() bool {
	if s.peek(1) == '/' || s.peek(1) == '*' {
		return false
	}
	switch s.prevWord {
	case "return", "typeof", "case", "do", "else", "in", "of", "new", "delete", "void", "throw", "yield", "await":
		return true
	}
	switch s.prevSignificant {
	case 0, '(', ',', '=', ':', '[', '!', '&', '|', '?', '{', '}', ';', '+', '-', '*', '%', '<', '>', '~', '^':
		return true
	}
	return false
}

func (s *scanner) regex() {
	s.emitDelim()
	inClass := false
	for s.pos < len(s.src) && s.src[s.pos] != '\n' {
		c := s.src[s.pos]
		if c == '\\' && s.pos+1 < len(s.src) && s.src[s.pos+1] != '\n' {
			s.blank(s.emitLiterals)
			s.blank(s.emitLiterals)
			continue
		}
		if c == '[' {
			inClass = true
		} else if c == ']' {
			inClass = false
		} else if c == '/' && !inClass {
			s.emitDelim()
			return
		}
		s.blank(s.emitLiterals)
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v'
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
