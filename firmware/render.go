package firmware

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"

	"mcp9808/config"
)

const DefaultGuard = "CREDENTIALS_H"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var sectionTitles = map[config.Section]string{
	config.SectionWiFi:   "WiFi credentials",
	config.SectionMQTT:   "MQTT settings",
	config.SectionTopics: "topics",
}

var header = template.Must(template.New("credentials.h").Parse(`// Generated by mcp9808 header, do not commit this file
#ifndef {{ .Guard }}
#define {{ .Guard }}
{{ range .Sections }}
// {{ .Title }}
{{- range .Defines }}
#define {{ .Name }} {{ .Value }}{{ if .Comment }}    // {{ .Comment }}{{ end }}
{{- end }}
{{ end }}
#endif
`))

type define struct {
	Name    string
	Value   string
	Comment string
}

type section struct {
	Title   string
	Defines []define
}

type renderOptions struct {
	guard string
}

type RenderOption func(*renderOptions)

// WithGuard overrides the include guard macro from the config
func WithGuard(guard string) RenderOption {
	return func(o *renderOptions) {
		o.guard = guard
	}
}

// Render writes the firmware header for cfg. The output only depends on cfg,
// rendering the same config twice gives identical bytes. An invalid config
// is refused.
func Render(w io.Writer, cfg *config.Config, opts ...RenderOption) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to render header: %w", err)
	}

	o := renderOptions{guard: cfg.Firmware.Guard}
	for _, opt := range opts {
		opt(&o)
	}
	if o.guard == "" {
		o.guard = DefaultGuard
	}

	if !identifier.MatchString(o.guard) {
		return fmt.Errorf("include guard %q is not a valid identifier", o.guard)
	}

	var sections []section
	for _, c := range cfg.Constants() {
		if len(sections) == 0 || sections[len(sections)-1].Title != sectionTitles[c.Section] {
			sections = append(sections, section{Title: sectionTitles[c.Section]})
		}

		value := c.Value
		if c.Kind == config.KindString {
			value = Quote(value)
		}

		current := &sections[len(sections)-1]
		current.Defines = append(current.Defines, define{Name: c.Name, Value: value, Comment: c.Comment})
	}

	return header.Execute(w, struct {
		Guard    string
		Sections []section
	}{o.guard, sections})
}

// Quote returns s as a C string literal
func Quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '?' && i > 0 && s[i-1] == '?':
			// Avoid trigraphs
			b.WriteString(`\?`)
		case c < 0x20 || c >= 0x7f:
			// Octal escapes stop after three digits, hex escapes do not
			fmt.Fprintf(&b, `\%03o`, c)
		default:
			b.WriteByte(c)
		}
	}

	b.WriteByte('"')
	return b.String()
}
