package refs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuleReferenceName(t *testing.T) {
	r := &rule{prefix: "refs/heads/"}
	assert.Equal(t, "refs/heads/main", string(r.ReferenceName("main")))
}

func TestRuleShortName(t *testing.T) {
	r := &rule{prefix: "refs/remotes/", suffix: "/HEAD"}
	assert.Equal(t, "origin", r.ShortName("refs/remotes/origin/HEAD"))
	assert.Equal(t, "", r.ShortName("refs/heads/main"))
}

func TestBareRuleIsIdentity(t *testing.T) {
	r := refRevParseRules[0]
	assert.Equal(t, "refs/heads/main", string(r.ReferenceName("refs/heads/main")))
	assert.Equal(t, "refs/heads/main", r.ShortName("refs/heads/main"))
}
