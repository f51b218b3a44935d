package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixExpand(t *testing.T) {
	matrix := Matrix{
		"python-version": {"3.6", "3.7", "3.8", "3.9"},
	}
	combinations := matrix.Expand()
	require.Len(t, combinations, 4)
	for i, version := range []string{"3.6", "3.7", "3.8", "3.9"} {
		assert.Equal(t, version, combinations[i]["python-version"])
	}
}

func TestMatrixExpandCrossProduct(t *testing.T) {
	matrix := Matrix{
		"os":      {"linux", "darwin"},
		"version": {"1", "2", "3"},
	}
	combinations := matrix.Expand()
	require.Len(t, combinations, 6)

	// Axes iterate in sorted name order, so "os" is the outer loop.
	assert.Equal(t, MatrixCombination{"os": "linux", "version": "1"}, combinations[0])
	assert.Equal(t, MatrixCombination{"os": "linux", "version": "3"}, combinations[2])
	assert.Equal(t, MatrixCombination{"os": "darwin", "version": "1"}, combinations[3])
	assert.Equal(t, MatrixCombination{"os": "darwin", "version": "3"}, combinations[5])
}

func TestMatrixExpandEmpty(t *testing.T) {
	combinations := Matrix{}.Expand()
	require.Len(t, combinations, 1)
	assert.Empty(t, combinations[0])
}

func TestMatrixValidate(t *testing.T) {
	assert.NoError(t, Matrix{"python-version": {"3.6"}}.Validate())
	assert.Error(t, Matrix{"python-version": {}}.Validate())
	assert.Error(t, Matrix{"": {"3.6"}}.Validate())
	assert.Error(t, Matrix{"python-version": {""}}.Validate())
}

func TestMatrixCombinationString(t *testing.T) {
	combination := MatrixCombination{"python-version": "3.8", "os": "linux"}
	assert.Equal(t, "os=linux, python-version=3.8", combination.String())
	assert.Equal(t, "", MatrixCombination{}.String())
}
