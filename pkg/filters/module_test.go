package filters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFilter(t *testing.T, root string, id string, config string, shaders bool) {
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CONFIG_FILE), []byte(config), 0644))
	if shaders {
		require.NoError(t, os.WriteFile(filepath.Join(dir, VERTEX_SHADER), []byte("void main() {}"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, FRAGMENT_SHADER), []byte("void main() {}"), 0644))
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()

	writeFilter(t, root, "none", `{"id": "none", "name": "None", "params": {}}`, true)
	writeFilter(t, root, "crt", `{
  "id": "crt",
  "name": "CRT",
  "description": "scanlines",
  "params": {
    "intensity": {"value": 0.5, "min": 0, "max": 1},
    "fontSize": {"value": 12},
    "backgroundImageFilename": {"value": "bg.png"}
  }
}`, false)
	// id mismatch
	writeFilter(t, root, "broken", `{"id": "other", "name": "Broken", "params": {}}`, false)
	// missing params
	writeFilter(t, root, "partial", `{"id": "partial", "name": "Partial"}`, false)
	// not a filter at all
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	catalog, err := Load(root)
	require.NoError(t, err)

	list := catalog.List()
	require.Len(t, list, 2)
	assert.Equal(t, "crt", list[0].ID)
	assert.Equal(t, "none", list[1].ID)

	crt := list[0]
	assert.Equal(t, "CRT", crt.Name)
	assert.Contains(t, crt.Params, "intensity")
	assert.NotContains(t, crt.Params, "fontSize")
	assert.NotContains(t, crt.Params, "backgroundImageFilename")
	assert.Empty(t, crt.VertexShaderPath)
	assert.Equal(t, "scanlines", crt.Extra["description"])

	value, ok := crt.Params["intensity"].Default()
	assert.True(t, ok)
	assert.Equal(t, 0.5, value)

	none, ok := catalog.Find("none")
	require.True(t, ok)
	assert.Equal(t, "filters/none/vertex.glsl", none.VertexShaderPath)
	assert.Equal(t, "filters/none/fragment.glsl", none.FragmentShaderPath)
}

func TestLoadMissingRoot(t *testing.T) {
	catalog, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, catalog.List())
}

func TestPublic(t *testing.T) {
	descriptor := Descriptor{
		ID:   "crt",
		Name: "CRT",
		Params: map[string]Param{
			"intensity": {"value": 1.0},
			"fontSize":  {"value": 10.0},
		},
		Extra:              map[string]any{"description": "d"},
		VertexShaderPath:   "filters/crt/vertex.glsl",
		FragmentShaderPath: "filters/crt/fragment.glsl",
	}

	public := descriptor.Public()
	assert.Equal(t, "crt", public["id"])
	assert.Equal(t, "d", public["description"])
	assert.NotContains(t, public, "vertex_shader_path")

	params := public["params"].(map[string]Param)
	assert.Contains(t, params, "intensity")
	assert.NotContains(t, params, "fontSize")
}
