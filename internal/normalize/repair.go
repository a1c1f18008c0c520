package normalize

import "strings"

// scanner walks JSON-ish text and tracks whether the cursor is inside a
// double-quoted string, so repairs leave string contents alone.
type scanner struct {
	src      string
	i        int
	inString bool
	escaped  bool
}

// next advances one byte and reports whether that byte was outside a string
// (string delimiters count as inside).
func (sc *scanner) next() (byte, bool) {
	c := sc.src[sc.i]
	sc.i++
	if sc.inString {
		switch {
		case sc.escaped:
			sc.escaped = false
		case c == '\\':
			sc.escaped = true
		case c == '"':
			sc.inString = false
		}
		return c, false
	}
	if c == '"' {
		sc.inString = true
		return c, false
	}
	return c, true
}

func (sc *scanner) done() bool { return sc.i >= len(sc.src) }

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// singleToDoubleQuotes rewrites 'single-quoted' strings as "double-quoted".
func singleToDoubleQuotes(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	sc := scanner{src: s}
	for !sc.done() {
		c, outside := sc.next()
		if !outside || c != '\'' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('"')
		for sc.i < len(s) {
			d := s[sc.i]
			sc.i++
			if d == '\\' && sc.i < len(s) {
				e := s[sc.i]
				sc.i++
				if e == '\'' {
					b.WriteByte('\'')
				} else {
					b.WriteByte('\\')
					b.WriteByte(e)
				}
				continue
			}
			if d == '\'' {
				break
			}
			if d == '"' {
				b.WriteString(`\"`)
				continue
			}
			b.WriteByte(d)
		}
		b.WriteByte('"')
	}
	return b.String()
}

// removeTrailingCommas drops commas directly before a closing bracket.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	sc := scanner{src: s}
	for !sc.done() {
		c, outside := sc.next()
		if outside && c == ',' {
			j := sc.i
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isKeyStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKeyChar(c byte) bool {
	return isKeyStart(c) || c == '-' || (c >= '0' && c <= '9')
}

// quoteBareKeys quotes identifier keys in objects: {name: 1} -> {"name": 1}.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	sc := scanner{src: s}
	for !sc.done() {
		c, outside := sc.next()
		b.WriteByte(c)
		if !outside || (c != '{' && c != ',') {
			continue
		}
		j := sc.i
		for j < len(s) && isSpace(s[j]) {
			j++
		}
		if j >= len(s) || !isKeyStart(s[j]) {
			continue
		}
		k := j
		for k < len(s) && isKeyChar(s[k]) {
			k++
		}
		m := k
		for m < len(s) && isSpace(s[m]) {
			m++
		}
		if m >= len(s) || s[m] != ':' {
			continue
		}
		b.WriteString(s[sc.i:j])
		b.WriteByte('"')
		b.WriteString(s[j:k])
		b.WriteByte('"')
		sc.i = k
	}
	return b.String()
}

// balanceBrackets closes an unterminated string and any brackets left open,
// as happens when a response is cut off at the token limit.
func balanceBrackets(s string) string {
	var stack []byte
	sc := scanner{src: s}
	for !sc.done() {
		c, outside := sc.next()
		if !outside {
			continue
		}
		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 && !sc.inString {
		return s
	}

	out := s
	if sc.inString {
		if sc.escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	}
	out = strings.TrimRight(out, " \t\r\n")
	switch {
	case strings.HasSuffix(out, ","):
		out = strings.TrimSuffix(out, ",")
	case strings.HasSuffix(out, ":"):
		out += " null"
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}
