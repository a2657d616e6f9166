package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nplabs/meshrouter/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTopology(t *testing.T) {
	path := writeTemp(t, "topo.json", `{
		"type": "topo",
		"config": {
			"A": ["B", "D"],
			"B": ["A", "C"],
			"C": ["B", "D"],
			"D": ["C", "A"]
		}
	}`)

	topo, err := config.LoadTopology(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"B", "D"}, topo.NeighborsOf("A"))
	assert.Nil(t, topo.NeighborsOf("Z"))
}

func TestLoadTopologyRejectsWrongType(t *testing.T) {
	path := writeTemp(t, "topo.json", `{"type": "names", "config": {}}`)
	_, err := config.LoadTopology(path)
	assert.Error(t, err)
}

func TestLoadNames(t *testing.T) {
	path := writeTemp(t, "names.json", `{
		"type": "names",
		"config": {
			"A": {"host": "10.0.0.1", "port": 9001},
			"B": {"host": "10.0.0.2", "port": 9002}
		}
	}`)
	names, err := config.LoadNames(path)
	require.NoError(t, err)
	assert.Equal(t, 9002, names["B"].Port)
}

func TestLoadNamesRejectsWrongType(t *testing.T) {
	path := writeTemp(t, "names.json", `{"type": "topo", "config": {}}`)
	_, err := config.LoadNames(path)
	assert.Error(t, err)
}

func TestNeighborAddresses(t *testing.T) {
	names := config.Names{
		"B": {Host: "10.0.0.2", Port: 9002},
		"D": {Host: "10.0.0.4", Port: 9004},
	}
	addrs, err := config.NeighborAddresses(names, []string{"B", "D"})
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.2:9002", addrs["B"])
}

func TestNeighborAddressesMissingEntry(t *testing.T) {
	names := config.Names{"B": {Host: "10.0.0.2", Port: 9002}}
	_, err := config.NeighborAddresses(names, []string{"B", "Z"})
	assert.Error(t, err)
}

func TestLoadTopologyMissingFile(t *testing.T) {
	_, err := config.LoadTopology(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
