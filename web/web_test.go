package web

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedAssets(t *testing.T) {
	index, err := fs.ReadFile(FS, "index.html")
	require.NoError(t, err)
	assert.Contains(t, string(index), "/static/app.js")
	assert.Contains(t, string(index), "/static/style.css")

	app, err := fs.ReadFile(FS, "static/app.js")
	require.NoError(t, err)
	assert.Contains(t, string(app), "'predictionHistory'")
	assert.Contains(t, string(app), "HISTORY_LIMIT = 10")
	assert.Contains(t, string(app), "'/predict'")

	_, err = fs.Stat(FS, "static/style.css")
	assert.NoError(t, err)
}
