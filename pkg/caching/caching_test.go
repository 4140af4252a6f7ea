package caching

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGet(t *testing.T) {
	c, err := NewCache(filepath.Join(t.TempDir(), "cache"), time.Hour)
	require.NoError(t, err)

	_, ok := c.Get("https://x.test/a")
	assert.False(t, ok)

	require.NoError(t, c.Set("https://x.test/a", []byte("<html>a</html>")))
	data, ok := c.Get("https://x.test/a")
	require.True(t, ok)
	assert.Equal(t, "<html>a</html>", string(data))

	_, ok = c.Get("https://x.test/b")
	assert.False(t, ok)
}

func TestCache_Expired(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, time.Minute)
	require.NoError(t, err)

	require.NoError(t, c.Set("https://x.test/a", []byte("old")))
	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(dir, c.key("https://x.test/a")), old, old))

	_, ok := c.Get("https://x.test/a")
	assert.False(t, ok)
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir, 0)
	require.NoError(t, err)

	require.NoError(t, c.Set("u", []byte("kept")))
	old := time.Now().Add(-24 * 365 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, c.key("u")), old, old))

	data, ok := c.Get("u")
	require.True(t, ok)
	assert.Equal(t, "kept", string(data))
}
