package companion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate())
	assert.Equal(t, "sunny", c.Default().ID)
	assert.NotContains(t, c.SelectableModes(), ModeLive)
	assert.Contains(t, c.SelectableModes(), ModeDiary)
	assert.True(t, c.HasMode(ModeLive))
}

func TestLoadCatalogFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	raw := `
default_personality: owl
personalities:
  - id: owl
    name: Owl
    style: Wise and patient.
    voice: Charon
  - id: fox
    name: Fox
    style: Quick and curious.
    voice: Puck
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"owl", "fox"}, c.PersonalityIDs())
	assert.Equal(t, "Owl", c.Default().Name)
	assert.True(t, c.HasMode(ModeChat), "modes default when omitted")
}

func TestLoadCatalogEmptyPath(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCatalog(), c)
}

func TestLoadCatalogRejectsBadDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_personality: ghost\npersonalities:\n  - id: owl\n"), 0o600))

	_, err := LoadCatalog(path)
	assert.ErrorIs(t, err, ErrUnknownPersonality)
}

func TestLoadCatalogRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("personalities:\n  - id: owl\n  - id: owl\n"), 0o600))

	_, err := LoadCatalog(path)
	assert.Error(t, err)
}
