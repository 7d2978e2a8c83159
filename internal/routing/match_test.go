package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsFold(t *testing.T) {
	assert.True(t, containsFold("Update the Marketing copy", "MARKETING"))
	assert.True(t, containsFold("crms", "crm"))
	assert.False(t, containsFold("crm", "crms"))
}

func TestNormalizeChannel(t *testing.T) {
	assert.Equal(t, "dev", NormalizeChannel("#DEV"))
	assert.Equal(t, "dev", NormalizeChannel("dev"))
	assert.Equal(t, "#dev", NormalizeChannel("##dev"))
	assert.Equal(t, "", NormalizeChannel("#"))
}

func TestCleanTerms(t *testing.T) {
	assert.Nil(t, cleanTerms(nil))
	assert.Nil(t, cleanTerms([]string{"", "  "}))
	assert.Equal(t, []string{" a ", "b c"}, cleanTerms([]string{" a ", "", "b c", "\t"}))
}
