package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/vcsforge/gitcore/modules/plumbing"
	"github.com/vcsforge/gitcore/modules/plumbing/format/objfile"
)

// Tag is the §3 annotated-tag object: same header shape as Commit but
// naming an arbitrary target object and type. Ported from the teacher's
// object.Tag (modules/zeta/object/tag.go), stripped of the TAG_MAGIC
// envelope in favor of git's plain framing.
type Tag struct {
	Hash    plumbing.Hash
	Object  plumbing.Hash
	Target  objfile.ObjectType
	Name    string
	Tagger  Signature
	Content string
}

func (t *Tag) Type() objfile.ObjectType { return objfile.TagObject }
func (t *Tag) ID() plumbing.Hash        { return t.Hash }

// Extract splits the tag's free-form content into message and an
// optional trailing PGP/SSH signature block, per
// https://git-scm.com/docs/signature-format.
func (t *Tag) Extract() (message string, signature string) {
	if i := strings.Index(t.Content, "-----BEGIN"); i > 0 {
		return t.Content[:i], t.Content[i:]
	}
	return t.Content, ""
}

func (t *Tag) Message() string {
	m, _ := t.Extract()
	return m
}

// Encode writes the plain git tag framing: "object D\ntype T\ntag
// NAME\ntagger IDENT\n\n" then the free-form content.
func (t *Tag) Encode(w io.Writer) error {
	headers := []string{
		fmt.Sprintf("object %s", t.Object),
		fmt.Sprintf("type %s", t.Target),
		fmt.Sprintf("tag %s", t.Name),
		fmt.Sprintf("tagger %s", t.Tagger.String()),
	}
	_, err := fmt.Fprintf(w, "%s\n\n%s", strings.Join(headers, "\n"), t.Content)
	return err
}

// Payload returns the canonical uncompressed bytes of the tag.
func (t *Tag) Payload() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses the plain git tag framing out of r.
func (t *Tag) Decode(oid plumbing.Hash, r io.Reader) error {
	t.Hash = oid
	br := bufio.NewReader(r)

	var finishedHeaders bool
	var message strings.Builder
	for {
		line, readErr := br.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return readErr
		}
		if finishedHeaders {
			message.WriteString(line)
		} else {
			text := strings.TrimSuffix(line, "\n")
			if len(text) == 0 {
				finishedHeaders = true
				if readErr == io.EOF {
					break
				}
				continue
			}
			field, value, ok := strings.Cut(text, " ")
			if !ok {
				return fmt.Errorf("object: invalid tag header: %s", text)
			}
			switch field {
			case "object":
				t.Object = plumbing.NewHash(value)
			case "type":
				typ, err := objfile.ParseObjectType(value)
				if err != nil {
					return fmt.Errorf("object: invalid tag type: %s", value)
				}
				t.Target = typ
			case "tag":
				t.Name = value
			case "tagger":
				t.Tagger.Decode([]byte(value))
			default:
				return fmt.Errorf("object: unknown tag header: %s", field)
			}
		}
		if readErr == io.EOF {
			break
		}
	}
	t.Content = message.String()
	return nil
}

// Equal reports whether two tags would hash to the same digest.
func (t *Tag) Equal(other *Tag) bool {
	if (t == nil) != (other == nil) {
		return false
	}
	if t == nil {
		return true
	}
	return t.Object == other.Object && t.Target == other.Target &&
		t.Name == other.Name && t.Tagger == other.Tagger && t.Content == other.Content
}
