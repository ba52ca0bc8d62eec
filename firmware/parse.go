package firmware

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrRedefined   = errors.New("macro redefined")
	ErrUnbalanced  = errors.New("unbalanced conditional")
	ErrUnsupported = errors.New("unsupported directive")
	ErrUndefined   = errors.New("macro not defined")
)

type Macro struct {
	Body string
	Line int
	// Guard is set for the include guard, an empty #define right after an
	// #ifndef of the same name opening the header
	Guard bool
}

// Defines is the set of object-like macros known after preprocessing
type Defines map[string]Macro

type frame struct {
	parent   bool
	taking   bool
	seenElse bool
}

// Parse preprocesses a single header
func Parse(r io.Reader) (Defines, error) {
	d := make(Defines)
	if err := d.Include(r); err != nil {
		return nil, err
	}

	return d, nil
}

// Include processes another header into the same translation unit, a header
// with an include guard can be included any number of times
func (d Defines) Include(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	var stack []frame
	active := func() bool {
		if len(stack) == 0 {
			return true
		}
		top := stack[len(stack)-1]
		return top.parent && top.taking
	}

	inComment := false
	lineNumber := 0
	var logical strings.Builder
	start := 0
	directives := 0
	guard := ""

	for scanner.Scan() {
		lineNumber++
		text := scanner.Text()

		// Line continuations are joined before anything else
		if strings.HasSuffix(text, `\`) {
			if logical.Len() == 0 {
				start = lineNumber
			}
			logical.WriteString(strings.TrimSuffix(text, `\`))
			continue
		}
		if logical.Len() > 0 {
			logical.WriteString(text)
			text = logical.String()
			logical.Reset()
		} else {
			start = lineNumber
		}

		var line string
		line, inComment = stripComments(text, inComment)
		line = strings.TrimSpace(line)

		if !strings.HasPrefix(line, "#") {
			continue
		}

		directive, rest := splitWord(strings.TrimSpace(line[1:]))
		wrap := func(err error) error {
			return fmt.Errorf("line %d: %w", start, err)
		}

		index := directives
		directives++

		switch directive {
		case "ifndef", "ifdef":
			name, _ := splitWord(rest)
			if !identifier.MatchString(name) {
				return wrap(fmt.Errorf("#%s needs a macro name", directive))
			}
			if index == 0 && directive == "ifndef" {
				guard = name
			}
			_, defined := d[name]
			stack = append(stack, frame{parent: active(), taking: defined == (directive == "ifdef")})

		case "else":
			if len(stack) == 0 {
				return wrap(fmt.Errorf("%w: #else without #if", ErrUnbalanced))
			}
			top := &stack[len(stack)-1]
			if top.seenElse {
				return wrap(fmt.Errorf("%w: second #else", ErrUnbalanced))
			}
			top.seenElse = true
			top.taking = !top.taking

		case "endif":
			if len(stack) == 0 {
				return wrap(fmt.Errorf("%w: #endif without #if", ErrUnbalanced))
			}
			stack = stack[:len(stack)-1]

		case "if", "elif":
			return wrap(fmt.Errorf("%w: #%s", ErrUnsupported, directive))

		case "define":
			if !active() {
				continue
			}
			name, body := splitMacro(rest)
			if !identifier.MatchString(name) {
				return wrap(fmt.Errorf("#define needs a macro name, got %q", name))
			}
			if existing, ok := d[name]; ok {
				if existing.Body != body {
					return wrap(fmt.Errorf("%w: %s was defined on line %d", ErrRedefined, name, existing.Line))
				}
				continue
			}
			d[name] = Macro{Body: body, Line: start, Guard: index == 1 && name == guard && body == ""}

		case "undef":
			if !active() {
				continue
			}
			name, _ := splitWord(rest)
			delete(d, name)

		default:
			// #include, #pragma and friends do not affect the values
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	if inComment {
		return errors.New("unterminated comment")
	}
	if len(stack) > 0 {
		return fmt.Errorf("%w: missing #endif", ErrUnbalanced)
	}

	return nil
}

func (d Defines) Defined(name string) bool {
	_, ok := d[name]
	return ok
}

// Guard returns the include guard of the header, if it has one
func (d Defines) Guard() (string, bool) {
	name := ""
	line := 0
	for n, m := range d {
		if m.Guard && (name == "" || m.Line < line) {
			name, line = n, m.Line
		}
	}

	return name, name != ""
}

func (d Defines) lookup(name string) (Macro, error) {
	m, ok := d[name]
	if !ok {
		return Macro{}, fmt.Errorf("%w: %s", ErrUndefined, name)
	}

	return m, nil
}

// String returns the value of a macro that expands to a string literal,
// adjacent literals are concatenated like the compiler does
func (d Defines) String(name string) (string, error) {
	m, err := d.lookup(name)
	if err != nil {
		return "", err
	}

	value, err := unquote(m.Body)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}

	return value, nil
}

// Int returns the value of a macro that expands to an integer constant
func (d Defines) Int(name string) (int, error) {
	m, err := d.lookup(name)
	if err != nil {
		return 0, err
	}

	body := m.Body
	for strings.HasPrefix(body, "(") && strings.HasSuffix(body, ")") {
		body = strings.TrimSpace(body[1 : len(body)-1])
	}
	body = strings.TrimRight(body, "uUlL")

	value, err := strconv.ParseInt(body, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", name, m.Body)
	}

	return int(value), nil
}

func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}

	return s[:i], strings.TrimSpace(s[i:])
}

// splitMacro separates the name from the body, a function-like macro keeps
// its parameter list in the name so it never matches an identifier
func splitMacro(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t(")
	if i < 0 {
		return s, ""
	}
	if s[i] == '(' {
		return s, ""
	}

	return s[:i], strings.TrimSpace(s[i:])
}

// stripComments removes comments from a line, inComment carries an open
// block comment over to the next line
func stripComments(line string, inComment bool) (string, bool) {
	var b strings.Builder
	var quote byte

	for i := 0; i < len(line); i++ {
		c := line[i]

		if inComment {
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				inComment = false
				i++
				// A comment is replaced by a single space
				b.WriteByte(' ')
			}
			continue
		}

		if quote != 0 {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(line) {
				i++
				b.WriteByte(line[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return b.String(), false
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			inComment = true
			i++
		default:
			b.WriteByte(c)
		}
	}

	return b.String(), inComment
}

// unquote decodes one or more adjacent C string literals
func unquote(body string) (string, error) {
	var b strings.Builder

	s := strings.TrimSpace(body)
	if s == "" || s[0] != '"' {
		return "", fmt.Errorf("%q is not a string literal", body)
	}

	for len(s) > 0 {
		if s[0] != '"' {
			return "", fmt.Errorf("%q is not a string literal", body)
		}

		i := 1
		for ; i < len(s) && s[i] != '"'; i++ {
			if s[i] != '\\' {
				b.WriteByte(s[i])
				continue
			}

			i++
			if i >= len(s) {
				break
			}

			switch e := s[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'a':
				b.WriteByte('\a')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'v':
				b.WriteByte('\v')
			case '\\', '"', '\'', '?':
				b.WriteByte(e)
			case 'x':
				j := i + 1
				for j < len(s) && isHex(s[j]) {
					j++
				}
				value, err := strconv.ParseUint(s[i+1:j], 16, 8)
				if err != nil {
					return "", fmt.Errorf("invalid hex escape in %q", body)
				}
				b.WriteByte(byte(value))
				i = j - 1
			case '0', '1', '2', '3', '4', '5', '6', '7':
				j := i
				for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
					j++
				}
				value, err := strconv.ParseUint(s[i:j], 8, 8)
				if err != nil {
					return "", fmt.Errorf("invalid octal escape in %q", body)
				}
				b.WriteByte(byte(value))
				i = j - 1
			default:
				return "", fmt.Errorf("unknown escape \\%c in %q", e, body)
			}
		}

		if i >= len(s) {
			return "", fmt.Errorf("unterminated string literal %q", body)
		}

		s = strings.TrimSpace(s[i+1:])
	}

	return b.String(), nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
