// Package pretty implements the commit-walker's format-string expander
// of spec §4.8: a small set of "%x" placeholders are substituted from a
// parsed commit header, with lazy field access and optional mailmap
// rewriting, text wrapping, and ref decoration. Grounded on the
// teacher's Commit/Signature decode discipline
// (modules/zeta/object/commit.go) for how identity and header fields
// are already split out; the placeholder grammar itself has no
// surviving teacher analogue (hugescm's CLI formats commits with plain
// Go templates, not a git-pretty-format mini-language) and is written
// fresh against §4.8.
package pretty

import (
	"fmt"
	"strings"

	"github.com/vcsforge/gitcore/modules/object"
	"github.com/vcsforge/gitcore/modules/plumbing"
)

// Mailmap resolves a recorded (name, email) pair to a canonical
// identity, per §4.8's "Mailmap" bullet.
type Mailmap interface {
	Resolve(name, email string) (canonicalName, canonicalEmail string)
}

// Options configures one Format call.
type Options struct {
	Mailmap     Mailmap
	Decorations map[plumbing.Hash][]string // ref names pointing at a commit, for %d
	Marker      string                     // "%m" boundary/side marker: "<", ">", "-", or ""
	ReflogName  string                     // "%gn"
	ReflogSubj  string                     // "%gs"
}

const abbrevLen = 7

func abbrev(h plumbing.Hash) string {
	s := h.String()
	if len(s) > abbrevLen {
		return s[:abbrevLen]
	}
	return s
}

// Format expands format against c, substituting every recognized "%x"
// placeholder. Unrecognized sequences pass through unchanged.
func Format(c *object.Commit, format string, opts Options) string {
	var out strings.Builder
	i := 0
	for i < len(format) {
		ch := format[i]
		if ch != '%' || i+1 >= len(format) {
			out.WriteByte(ch)
			i++
			continue
		}

		// %w(width,indent1,indent2) takes a parenthesized argument list.
		if format[i+1] == 'w' && i+2 < len(format) && format[i+2] == '(' {
			end := strings.IndexByte(format[i+2:], ')')
			if end == -1 {
				out.WriteByte(ch)
				i++
				continue
			}
			args := format[i+3 : i+2+end]
			applyWrap(&out, args, format[i+3+end:])
			return out.String()
		}

		token, width := expandToken(c, format, i, opts)
		out.WriteString(token)
		i += width
	}
	return out.String()
}

// expandToken decodes the placeholder starting at format[i] (which must
// be '%') and returns its substitution plus the number of source bytes
// consumed.
func expandToken(c *object.Commit, format string, i int, opts Options) (string, int) {
	rest := format[i+1:]
	two := func(n int) (string, bool) {
		if len(rest) >= n {
			return rest[:n], true
		}
		return "", false
	}

	if s, ok := two(2); ok {
		switch s {
		case "an":
			return c.Author.Name, 3
		case "ae":
			return c.Author.Email, 3
		case "ad":
			return c.Author.When.Format(object.DateFormat), 3
		case "cn":
			return c.Committer.Name, 3
		case "ce":
			return c.Committer.Email, 3
		case "cd":
			return c.Committer.When.Format(object.DateFormat), 3
		case "aN":
			n, _ := mailmapName(opts.Mailmap, c.Author)
			return n, 3
		case "aE":
			_, e := mailmapName(opts.Mailmap, c.Author)
			return e, 3
		case "cN":
			n, _ := mailmapName(opts.Mailmap, c.Committer)
			return n, 3
		case "cE":
			_, e := mailmapName(opts.Mailmap, c.Committer)
			return e, 3
		}
	}
	if len(rest) >= 1 {
		switch rest[0] {
		case 'H':
			return c.Hash.String(), 2
		case 'h':
			return abbrev(c.Hash), 2
		case 'T':
			return c.Tree.String(), 2
		case 't':
			return abbrev(c.Tree), 2
		case 'P':
			return joinHashes(c.Parents, false), 2
		case 'p':
			return joinHashes(c.Parents, true), 2
		case 's':
			return c.Subject(), 2
		case 'f':
			return sanitizeSubject(c.Subject()), 2
		case 'b':
			return body(c.Message), 2
		case 'B':
			return c.Message, 2
		case 'N':
			return "", 2
		case 'e':
			return encodingOf(c), 2
		case 'd':
			return decoration(opts.Decorations[c.Hash]), 2
		case 'm':
			return opts.Marker, 2
		case 'g':
			if len(rest) >= 2 {
				switch rest[1] {
				case 'n':
					return opts.ReflogName, 3
				case 's':
					return opts.ReflogSubj, 3
				}
			}
		case 'C':
			if strings.HasPrefix(rest[1:], "red") {
				return "\x1b[31m", 5
			}
			if strings.HasPrefix(rest[1:], "reset") {
				return "\x1b[0m", 7
			}
		}
	}
	return "%", 1
}

func mailmapName(m Mailmap, s object.Signature) (string, string) {
	if m == nil {
		return s.Name, s.Email
	}
	return m.Resolve(s.Name, s.Email)
}

func joinHashes(hs []plumbing.Hash, short bool) string {
	parts := make([]string, len(hs))
	for i, h := range hs {
		if short {
			parts[i] = abbrev(h)
		} else {
			parts[i] = h.String()
		}
	}
	return strings.Join(parts, " ")
}

// body returns the message with its subject line and the following
// blank-line separator stripped.
func body(message string) string {
	idx := strings.IndexAny(message, "\r\n")
	if idx == -1 {
		return ""
	}
	rest := message[idx:]
	rest = strings.TrimLeft(rest, "\r\n")
	return rest
}

// sanitizeSubject renders a subject line fit for a filename: spaces
// become '-', and everything but alnum/.-_ is dropped.
func sanitizeSubject(subject string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range subject {
		switch {
		case r == ' ' || r == '\t':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastDash = false
		}
	}
	return strings.Trim(b.String(), "-")
}

func encodingOf(c *object.Commit) string {
	for _, h := range c.ExtraHeaders {
		if h.K == "encoding" {
			return h.V
		}
	}
	return ""
}

func decoration(refs []string) string {
	if len(refs) == 0 {
		return ""
	}
	return fmt.Sprintf(" (%s)", strings.Join(refs, ", "))
}

// applyWrap wraps tail to the geometry given by a "width,indent1,indent2"
// argument string, per %w(…), and writes the wrapped result directly —
// it consumes the remainder of the format string as the content to wrap,
// since %w applies to everything that follows it.
func applyWrap(out *strings.Builder, args string, tail string) {
	fields := strings.Split(args, ",")
	width, indent1, indent2 := 0, 0, 0
	if len(fields) > 0 {
		fmt.Sscanf(fields[0], "%d", &width)
	}
	if len(fields) > 1 {
		fmt.Sscanf(fields[1], "%d", &indent1)
	}
	if len(fields) > 2 {
		fmt.Sscanf(fields[2], "%d", &indent2)
	}
	out.WriteString(wrap(tail, width, indent1, indent2))
}

// wrap greedily wraps text to width columns, indenting the first line
// by indent1 spaces and continuation lines by indent2.
func wrap(text string, width, indent1, indent2 int) string {
	if width <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var lines []string
	indent := indent1
	line := strings.Repeat(" ", indent)
	lineLen := indent
	for _, w := range words {
		add := len(w)
		if lineLen > indent {
			add++
		}
		if lineLen+add > width && lineLen > indent {
			lines = append(lines, line)
			indent = indent2
			line = strings.Repeat(" ", indent)
			lineLen = indent
			add = len(w)
		}
		if lineLen > indent {
			line += " "
		}
		line += w
		lineLen += add
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}
