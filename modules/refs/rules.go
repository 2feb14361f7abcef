package refs

import (
	"strings"

	"github.com/vcsforge/gitcore/modules/plumbing"
)

// rule is one entry of git's rev-parse disambiguation table
// (shorten_unambiguous_ref / refname_match in refs.c): a prefix and
// optional suffix that together map a short name to a full reference
// name, or back. Ported from the teacher's refs.Rule, which already
// carries the same six rules git itself uses.
type rule struct {
	prefix string
	suffix string
}

func (r rule) ReferenceName(name string) plumbing.ReferenceName {
	return plumbing.ReferenceName(r.prefix + name + r.suffix)
}

func (r rule) ShortName(name string) string {
	if strings.HasPrefix(name, r.prefix) {
		return strings.TrimSuffix(name[len(r.prefix):], r.suffix)
	}
	return ""
}

var refRevParseRules = []*rule{
	{},
	{prefix: "refs/"},
	{prefix: "refs/tags/"},
	{prefix: "refs/heads/"},
	{prefix: "refs/remotes/"},
	{prefix: "refs/remotes/", suffix: "/HEAD"},
}
