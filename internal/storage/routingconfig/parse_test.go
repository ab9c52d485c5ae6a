package routingconfig_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/transposer-crafting-fabric/internal/storage/routingconfig"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

const sampleConfig = `
# network dump, generated by the operator console
transposers:
00000000-0000-0000-0000-000000000001
00000000-0000-0000-0000-000000000002

storage:
"Main Chest"; connections = 0:2,1:4
"Overflow Chest"; connections = 0:3

input:
"Dropoff"; connections = 0:0

output:
"Pickup"; connections = 0:1

transfer:
"Relay Barrel"; connections = 0:5,1:0
`

func TestParse_SampleConfig(t *testing.T) {
	cfg, err := routingconfig.Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Len(t, cfg.TransposerIDs, 2)
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", cfg.TransposerIDs[0])

	require.Len(t, cfg.Inventories, 5)
	assert.Equal(t, fabric.RoleStorage, cfg.Inventories[0].Role)
	assert.Equal(t, "Main Chest", cfg.Inventories[0].Display)
	assert.Equal(t, []routingconfig.Connection{{TransposerIndex: 0, Side: 2}, {TransposerIndex: 1, Side: 4}}, cfg.Inventories[0].Connections)
}

func TestBuildGraph_AssignsPriorityByDeclarationOrder(t *testing.T) {
	cfg, err := routingconfig.Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	g, refs, displays, err := routingconfig.BuildGraph(cfg)
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	require.Len(t, refs, 5)
	assert.Equal(t, fabric.InventoryRef{Role: fabric.RoleStorage, Index: 0}, refs[0])
	assert.Equal(t, fabric.InventoryRef{Role: fabric.RoleStorage, Index: 1}, refs[1])
	assert.Equal(t, "Main Chest", displays[refs[0]])
}

func TestBuildGraph_RejectsMissingOutput(t *testing.T) {
	const noOutput = `
storage:
"Main Chest"; connections = 0:2

input:
"Dropoff"; connections = 0:0
`
	cfg, err := routingconfig.Parse(strings.NewReader(noOutput))
	require.NoError(t, err)

	_, _, _, err = routingconfig.BuildGraph(cfg)
	assert.Error(t, err)
}
