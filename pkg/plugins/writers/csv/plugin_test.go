package csv

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsync/pkg/logging"
)

func TestPlugin_NewWriter(t *testing.T) {
	p := &Plugin{}
	assert.Equal(t, "csv", p.Name())
	assert.Contains(t, p.ConfigSchema()["required"], "filePath")

	cfg, err := json.Marshal(Config{FilePath: filepath.Join(t.TempDir(), "out.csv")})
	require.NoError(t, err)
	w, err := p.NewWriter(cfg, logging.Discard())
	require.NoError(t, err)
	assert.NotNil(t, w)

	_, err = p.NewWriter(json.RawMessage(`{}`), logging.Discard())
	assert.ErrorContains(t, err, "filePath is required")

	_, err = p.NewWriter(json.RawMessage(`not json`), logging.Discard())
	assert.Error(t, err)
}
