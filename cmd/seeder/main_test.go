package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"migrate", "seed"}, names)

	seed, _, err := root.Find([]string{"seed"})
	require.NoError(t, err)
	assert.Equal(t, "seed", seed.Flags().Lookup("dir").DefValue)
}

func TestSeedFilesExist(t *testing.T) {
	for _, name := range seedFiles {
		_, err := os.Stat(filepath.Join("..", "..", "seed", name))
		assert.NoError(t, err, name)
	}
}
