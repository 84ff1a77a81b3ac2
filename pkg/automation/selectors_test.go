package automation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSelectorsAreComplete(t *testing.T) {
	sel := DefaultSelectors()

	assert.NotEmpty(t, sel.Login.Email)
	assert.NotEmpty(t, sel.Login.Password)
	assert.NotEmpty(t, sel.Login.Submit)
	assert.NotEmpty(t, sel.Login.Marker)
	assert.NotEmpty(t, sel.Navigation.ContainerFallbacks)
	assert.NotEmpty(t, sel.List.Container)
	assert.NotEmpty(t, sel.List.Item)
	assert.NotEmpty(t, sel.List.ExtractScript)
	assert.Contains(t, sel.List.ConnectButtonTemplate, "%d")
	assert.Contains(t, sel.Connect.SentMarkerTemplate, "%d")
}

func TestLoadSelectorsEmptyPathReturnsDefaults(t *testing.T) {
	sel, err := LoadSelectors("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSelectors(), sel)
}

func TestLoadSelectorsOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	content := `
login:
  marker: "header.app-shell"
list:
  item: "div.person-row"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	sel, err := LoadSelectors(path)
	require.NoError(t, err)

	assert.Equal(t, "header.app-shell", sel.Login.Marker)
	assert.Equal(t, "div.person-row", sel.List.Item)

	// Untouched fields keep their defaults.
	defaults := DefaultSelectors()
	assert.Equal(t, defaults.Login.Email, sel.Login.Email)
	assert.Equal(t, defaults.List.ConnectButtonTemplate, sel.List.ConnectButtonTemplate)
}

func TestLoadSelectorsMissingFile(t *testing.T) {
	_, err := LoadSelectors("/nonexistent/selectors.yaml")
	assert.Error(t, err)
}

func TestLoadSelectorsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("login: [not a map"), 0644))

	_, err := LoadSelectors(path)
	assert.Error(t, err)
}
