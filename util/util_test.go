package util

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrDefault(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(5.0, OrDefault(5.0, 1))
	assert.Equal(1.0, OrDefault(0.0, 1))
	assert.Equal(1.0, OrDefault(-3.0, 1))
	assert.Equal(1.0, OrDefault(math.NaN(), 1))
	assert.Equal(1.0, OrDefault(math.Inf(1), 1))
	assert.Equal(16, OrDefault(0, 16))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []uint8{1, 4, 9}, SortedKeys(map[uint8]string{9: "c", 1: "a", 4: "b"}))
}

func TestGatherChartPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.mid", "notes.txt", "sub/c.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, nil, 0644))
	}

	paths, err := GatherChartPaths(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.mid"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "sub/c.json"),
	}, paths)

	paths, err = GatherChartPaths(dir, 2)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestSubscribersRecoverPanics(t *testing.T) {
	subs := NewSubscribers[int]("test", nil)
	var got []int
	subs.Subscribe(func(v int) { panic("boom") })
	unsubscribe := subs.Subscribe(func(v int) { got = append(got, v) })

	subs.Publish(1)
	unsubscribe()
	unsubscribe()
	subs.Publish(2)

	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 1, subs.Len())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	type doc struct {
		Name string `json:"name" yaml:"name"`
	}

	yamlPath := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("name: yam\n"), 0644))
	jsonPath := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name": "jay"}`), 0644))

	var d doc
	require.NoError(t, LoadFile(yamlPath, &d))
	assert.Equal(t, "yam", d.Name)
	require.NoError(t, LoadFile(jsonPath, &d))
	assert.Equal(t, "jay", d.Name)

	assert.Error(t, LoadFile(filepath.Join(dir, "missing.yaml"), &d))
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{`), 0644))
	assert.Error(t, LoadFile(jsonPath, &d))
}
