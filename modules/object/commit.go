package object

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/format/objfile"
)

// DateFormat matches git's own "git log" default date rendering, used by
// Commit.String/pretty's %ad. Ported from the teacher's object.DateFormat.
const DateFormat = "Mon Jan 02 15:04:05 2006 -0700"

const timeZoneLength = 5

// Signature is an author or committer identity line: "name <email> epoch
// tz" (§3). Decode/Encode are ported near-verbatim from the teacher's
// object.Signature (modules/zeta/object/commit.go), since git's identity
// line framing is the same shape hugescm copied it from.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

func (s *Signature) decodeTimeAndTimeZone(b []byte) {
	space := bytes.IndexByte(b, ' ')
	if space == -1 {
		space = len(b)
	}
	ts, err := strconv.ParseInt(string(b[:space]), 10, 64)
	if err != nil {
		return
	}
	s.When = time.Unix(ts, 0).In(time.UTC)

	tzStart := space + 1
	if tzStart >= len(b) || tzStart+timeZoneLength > len(b) {
		return
	}
	tz := string(b[tzStart : tzStart+timeZoneLength])
	tzhours, err1 := strconv.ParseInt(tz[0:3], 10, 64)
	tzmins, err2 := strconv.ParseInt(tz[3:], 10, 64)
	if err1 != nil || err2 != nil {
		return
	}
	if tzhours < 0 {
		tzmins *= -1
	}
	s.When = s.When.In(time.FixedZone("", int(tzhours*3600+tzmins*60)))
}

// Decode parses a "name <email> epoch tz" byte slice into a Signature.
func (s *Signature) Decode(b []byte) {
	open := bytes.LastIndexByte(b, '<')
	closeIdx := bytes.LastIndexByte(b, '>')
	if open == -1 || closeIdx == -1 || closeIdx < open {
		return
	}
	s.Name = string(bytes.TrimSpace(b[:open]))
	s.Email = string(b[open+1 : closeIdx])
	if closeIdx+2 < len(b) {
		s.decodeTimeAndTimeZone(b[closeIdx+2:])
	}
}

// String renders a Signature per §3's strict identity-line format: email
// in <>, single-space separators, epoch with no zero padding, tz as
// [+-]HHMM.
func (s *Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
}

// ExtraHeader preserves an unrecognized commit header (e.g. "encoding",
// "gpgsig", "mergetag") in its original key/value shape, so round-trip
// re-encoding is byte-exact.
type ExtraHeader struct {
	K string
	V string
}

// Commit is the §3 commit object: a tree reference, zero or more
// parents, author/committer identities, and a free-form message.
type Commit struct {
	Hash         plumbing.Hash
	Tree         plumbing.Hash
	Parents      []plumbing.Hash
	Author       Signature
	Committer    Signature
	ExtraHeaders []*ExtraHeader
	Message      string

	b Backend
}

func (c *Commit) Type() objfile.ObjectType { return objfile.CommitObject }
func (c *Commit) ID() plumbing.Hash        { return c.Hash }

// Encode writes the plain git commit framing (§3): "tree D\n", zero or
// more "parent D\n", "author …\n", "committer …\n", any extra headers,
// a blank line, then the message — with no magic header, replacing the
// teacher's COMMIT_MAGIC-prefixed envelope (modules/zeta/object/commit.go).
func (c *Commit) Encode(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "tree %s\n", c.Tree); err != nil {
		return err
	}
	for _, p := range c.Parents {
		if _, err := fmt.Fprintf(w, "parent %s\n", p); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "author %s\ncommitter %s\n", c.Author.String(), c.Committer.String()); err != nil {
		return err
	}
	for _, h := range c.ExtraHeaders {
		if _, err := fmt.Fprintf(w, "%s %s\n", h.K, strings.ReplaceAll(h.V, "\n", "\n ")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n%s", c.Message)
	return err
}

// Payload returns the canonical uncompressed bytes of the commit.
func (c *Commit) Payload() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses the plain git commit framing out of r. Ported from the
// teacher's Commit.Decode (modules/zeta/object/commit.go), adapted to a
// plain io.Reader instead of the teacher's typed Reader wrapper.
func (c *Commit) Decode(oid plumbing.Hash, r io.Reader) error {
	c.Hash = oid
	br := bufio.NewReader(r)

	var message strings.Builder
	var finishedHeaders bool
	for {
		line, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return readErr
		}
		text := strings.TrimSuffix(line, "\n")
		if !finishedHeaders && len(text) == 0 {
			finishedHeaders = true
			if readErr == io.EOF {
				break
			}
			continue
		}
		if !finishedHeaders {
			fields := strings.SplitN(text, " ", 2)
			if len(fields) < 2 {
				if readErr == io.EOF {
					break
				}
				continue
			}
			switch fields[0] {
			case "tree":
				c.Tree = plumbing.NewHash(fields[1])
			case "parent":
				c.Parents = append(c.Parents, plumbing.NewHash(fields[1]))
			case "author":
				c.Author.Decode([]byte(fields[1]))
			case "committer":
				c.Committer.Decode([]byte(fields[1]))
			default:
				if strings.HasPrefix(text, " ") && len(c.ExtraHeaders) != 0 {
					last := c.ExtraHeaders[len(c.ExtraHeaders)-1]
					last.V = last.V + "\n" + text[1:]
				} else {
					c.ExtraHeaders = append(c.ExtraHeaders, &ExtraHeader{K: fields[0], V: fields[1]})
				}
			}
		} else {
			message.WriteString(line)
		}
		if readErr == io.EOF {
			break
		}
	}
	c.Message = message.String()
	return nil
}

// Less orders two commits by committer time, then author time, then
// hash. Ported from the teacher's Commit.Less. The commit walk's
// priority queue (commitHeap) does not call it: it orders by committer
// time and then hash only.
func (c *Commit) Less(rhs *Commit) bool {
	return c.Committer.When.Before(rhs.Committer.When) ||
		(c.Committer.When.Equal(rhs.Committer.When) &&
			(c.Author.When.Before(rhs.Author.When) ||
				(c.Author.When.Equal(rhs.Author.When) && c.Hash.Compare(rhs.Hash) < 0)))
}

// Subject returns the first line of the commit message.
func (c *Commit) Subject() string {
	if i := strings.IndexAny(c.Message, "\r\n"); i != -1 {
		return c.Message[:i]
	}
	return c.Message
}

// Root resolves the commit's root Tree.
func (c *Commit) Root(ctx context.Context) (*Tree, error) {
	return resolveTree(ctx, c.b, c.Tree)
}

// File resolves a path within the commit's tree.
func (c *Commit) File(ctx context.Context, p string) (*Blob, error) {
	root, err := c.Root(ctx)
	if err != nil {
		return nil, err
	}
	return root.File(ctx, p)
}

func (c *Commit) String() string {
	return fmt.Sprintf("commit %s\nAuthor: %s\nDate:   %s\n\n%s\n",
		c.Hash, c.Author.String(), c.Author.When.Format(DateFormat), indent(c.Message))
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "    " + l
		}
	}
	return strings.Join(lines, "\n")
}
