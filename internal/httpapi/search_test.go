package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcpgw/authgw/internal/discovery"
)

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"a", "b"}, splitCSV("a,b"))
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a , b ,"))
}

func TestEntityTypes(t *testing.T) {
	assert.Equal(t, []discovery.EntityType{discovery.EntityMCPTool, discovery.EntityMCPServer}, entityTypes("mcp_tool,mcp_server"))
	assert.Empty(t, entityTypes(""))
}

func TestAtoiDefault(t *testing.T) {
	assert.Equal(t, 10, atoiDefault("", 10))
	assert.Equal(t, 10, atoiDefault("not-a-number", 10))
	assert.Equal(t, 25, atoiDefault("25", 10))
}
