// Package chunker splits documents into ordered chunks that fit a model's
// context window, breaking at the largest structural boundary available.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Unit is what Policy.MaxSize counts.
type Unit string

const (
	UnitChars  Unit = "chars"
	UnitTokens Unit = "tokens"
)

// Strategy selects the coarsest boundary chunks are packed from.
type Strategy string

const (
	// StrategyParagraph packs blank-line separated paragraphs.
	StrategyParagraph Strategy = "paragraph"
	// StrategyScene packs whole screenplay scenes, falling back to paragraphs
	// for scenes that do not fit.
	StrategyScene Strategy = "scene"
)

// Policy bounds chunk size. MaxSize <= 0 disables splitting.
type Policy struct {
	MaxSize  int      `json:"max_size"`
	Unit     Unit     `json:"unit"`
	Strategy Strategy `json:"strategy"`
}

// Chunk is one bounded slice of a document. Index order is source order.
type Chunk struct {
	Index           int    `json:"index"`
	Text            string `json:"text"`
	ApproxTokens    int    `json:"approx_tokens"`
	PreserveSpacing bool   `json:"preserve_spacing"`
}

// EstimateTokens approximates a token count at four runes per token.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

func (p Policy) measure(s string) int {
	if p.Unit == UnitTokens {
		return EstimateTokens(s)
	}
	return utf8.RuneCountInString(s)
}

// Split breaks text into chunks no larger than policy.MaxSize. Whitespace-only
// text yields no chunks; text that already fits yields one chunk equal to it.
func Split(text string, policy Policy) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if policy.MaxSize <= 0 || policy.measure(text) <= policy.MaxSize {
		return []Chunk{newChunk(0, text, text)}
	}

	var units []string
	level := levelParagraph
	if policy.Strategy == StrategyScene {
		units = scenes(text)
		level = levelScene
	} else {
		units = paragraphs(text)
	}

	s := splitter{policy: policy}
	pieces := s.pack(units, level)

	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, newChunk(len(chunks), p, trimChunk(p)))
	}
	return chunks
}

func newChunk(index int, raw, text string) Chunk {
	return Chunk{
		Index:           index,
		Text:            text,
		ApproxTokens:    EstimateTokens(text),
		PreserveSpacing: screenplayFormatted(raw),
	}
}

// trimChunk drops surrounding whitespace. Formatted text keeps the
// indentation of its first line.
func trimChunk(p string) string {
	if !screenplayFormatted(p) {
		return strings.TrimSpace(p)
	}
	p = strings.TrimRight(p, " \t\r\n")
	for {
		i := strings.IndexByte(p, '\n')
		if i < 0 || strings.TrimSpace(p[:i]) != "" {
			return p
		}
		p = p[i+1:]
	}
}

type level int

const (
	levelScene level = iota
	levelParagraph
	levelSentence
	levelWord
	levelRune
)

// separator joins units of a level back together inside one chunk.
func (l level) separator() string {
	switch l {
	case levelScene, levelParagraph:
		return "\n\n"
	case levelSentence, levelWord:
		return " "
	default:
		return ""
	}
}

type splitter struct {
	policy Policy
}

// pack greedily accumulates units while the joined size stays within
// MaxSize. Units that are too large on their own are refined one level down.
func (s splitter) pack(units []string, l level) []string {
	sep := l.separator()
	var out []string
	cur := ""
	flush := func() {
		if cur != "" {
			out = append(out, cur)
			cur = ""
		}
	}

	for _, u := range units {
		if s.policy.measure(u) > s.policy.MaxSize {
			flush()
			out = append(out, s.refine(u, l)...)
			continue
		}
		if cur == "" {
			cur = u
			continue
		}
		if joined := cur + sep + u; s.policy.measure(joined) <= s.policy.MaxSize {
			cur = joined
			continue
		}
		flush()
		cur = u
	}
	flush()
	return out
}

func (s splitter) refine(u string, l level) []string {
	switch l {
	case levelScene:
		return s.pack(paragraphs(u), levelParagraph)
	case levelParagraph:
		return s.pack(sentences(u), levelSentence)
	case levelSentence:
		return s.pack(strings.Fields(u), levelWord)
	default:
		return s.hardSplit(u)
	}
}

// hardSplit cuts at rune boundaries for text with no usable boundary.
func (s splitter) hardSplit(u string) []string {
	limit := s.policy.MaxSize
	if s.policy.Unit == UnitTokens {
		limit *= 4
	}
	runes := []rune(u)
	var out []string
	for len(runes) > 0 {
		n := limit
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

var blankLine = regexp.MustCompile(`\n[ \t\r]*\n`)

// paragraphs splits on blank lines. Leading indentation inside a paragraph
// is kept so screenplay formatting survives.
func paragraphs(text string) []string {
	raw := blankLine.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.Trim(p, "\n")
		p = strings.TrimRight(p, " \t")
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

var sceneHeading = regexp.MustCompile(`^(?:INT\./EXT\.|EXT\./INT\.|INT\.|EXT\.|I/E\.?)\s`)

// IsSceneHeading reports whether line starts a screenplay scene.
func IsSceneHeading(line string) bool {
	return sceneHeading.MatchString(strings.TrimSpace(line) + " ")
}

// scenes groups paragraphs into scenes, each starting at a heading.
// Text before the first heading forms its own unit.
func scenes(text string) []string {
	var out []string
	cur := ""
	for _, p := range paragraphs(text) {
		for _, part := range splitAtHeadings(p) {
			if IsSceneHeading(firstLine(part)) && cur != "" {
				out = append(out, cur)
				cur = ""
			}
			if cur == "" {
				cur = part
			} else {
				cur += "\n\n" + part
			}
		}
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// splitAtHeadings breaks a paragraph before any heading line that is not its
// first line, for scripts that omit the blank line before a heading.
func splitAtHeadings(p string) []string {
	lines := strings.Split(p, "\n")
	var out []string
	start := 0
	for i := 1; i < len(lines); i++ {
		if IsSceneHeading(lines[i]) {
			out = append(out, strings.Join(lines[start:i], "\n"))
			start = i
		}
	}
	return append(out, strings.Join(lines[start:], "\n"))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// sentences splits after terminal punctuation followed by whitespace.
func sentences(p string) []string {
	var out []string
	start := 0
	runes := []rune(p)
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && (isTerminal(runes[j]) || runes[j] == '"' || runes[j] == '\'' || runes[j] == ')') {
			j++
		}
		if j < len(runes) && !unicode.IsSpace(runes[j]) {
			i = j - 1
			continue
		}
		if s := strings.TrimSpace(string(runes[start:j])); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// screenplayFormatted reports whether spacing carries meaning in text:
// indented lines or all-caps character cues.
func screenplayFormatted(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			return true
		}
		if isCue(line) || IsSceneHeading(line) {
			return true
		}
	}
	return false
}

func isCue(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) < 2 || len(line) > 40 {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2
}
