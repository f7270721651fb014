package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/braintumor/models/model"
)

func TestDefaultClassSet(t *testing.T) {
	set, err := NewOutputClassSet(model.DefaultClasses)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultClasses, set.Labels())
	name, err := set.GetName(2)
	require.NoError(t, err)
	assert.Equal(t, "no_tumor", name)
}

func TestOutputClassSet(t *testing.T) {
	set, err := NewOutputClassSet([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	name, err := set.GetName(1)
	require.NoError(t, err)
	assert.Equal(t, "b", name)

	_, err = set.GetName(3)
	assert.Error(t, err)
	_, err = set.GetName(-1)
	assert.Error(t, err)

	_, err = NewOutputClassSet(nil)
	assert.Error(t, err)
	_, err = NewOutputClassSet([]string{"a", "a"})
	assert.Error(t, err)
	_, err = NewOutputClassSet([]string{"a", ""})
	assert.Error(t, err)
}
