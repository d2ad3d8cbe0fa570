package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPut(t *testing.T) {
	root := t.TempDir()
	d, err := Open(context.Background(), root)
	require.NoError(t, err)

	uri, err := d.Put(context.Background(), "Mangrove_AGERS2024", "Sentinel2_2019.tif", strings.NewReader("tiff"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Mangrove_AGERS2024", "Sentinel2_2019.tif"), uri)

	data, err := os.ReadFile(uri)
	require.NoError(t, err)
	assert.Equal(t, "tiff", string(data))

	_, err = os.Stat(uri + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestObjectNameRejectsTraversal(t *testing.T) {
	m := NewMemory()
	for _, c := range [][2]string{{"../x", "a"}, {"f", "../../a"}, {"/abs", "a"}, {"f", ""}} {
		_, err := m.Put(context.Background(), c[0], c[1], strings.NewReader(""))
		assert.Error(t, err, c)
	}
}

func TestMemoryPut(t *testing.T) {
	d, err := Open(context.Background(), "mem://")
	require.NoError(t, err)
	m := d.(*Memory)

	uri, err := m.Put(context.Background(), "f", "a.shp", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "mem://f/a.shp", uri)

	_, err = m.Put(context.Background(), "f", "a.dbf", strings.NewReader("y"))
	require.NoError(t, err)
	assert.Equal(t, []string{"f/a.dbf", "f/a.shp"}, m.Names())

	b, ok := m.Get("f/a.shp")
	require.True(t, ok)
	assert.Equal(t, "x", string(b))
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
	_, err = Open(context.Background(), "gs://")
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/tiff", contentType("a.TIF"))
	assert.Equal(t, "application/octet-stream", contentType("a.shx"))
}
