package yolobridge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLabels(t *testing.T) {

	file := filepath.Join(t.TempDir(), "labels.txt")

	err := os.WriteFile(file, []byte("person\nbicycle\n\ncar\n"), 0644)
	require.NoError(t, err)

	labels, err := LoadLabels(file)
	require.NoError(t, err)

	// blank lines are kept so the slice index still matches the class id
	assert.Equal(t, []string{"person", "bicycle", "", "car"}, labels)
}

func TestLoadLabelsMissingFile(t *testing.T) {

	_, err := LoadLabels(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
