package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/workplan/workflow"
)

type rawStub struct{}

func (rawStub) Name() string          { return "raw-stub" }
func (rawStub) DefaultConfig() Config { return Config{"mode": "fast"} }
func (rawStub) RenderRaw(wf *workflow.Workflow, cfg Config) (map[string]string, error) {
	return map[string]string{RootKey: "raw output\n"}, nil
}

type structuredStub struct{}

func (structuredStub) Name() string          { return "structured-stub" }
func (structuredStub) DefaultConfig() Config { return Config{} }
func (structuredStub) Render(wf *workflow.Workflow, cfg Config) (map[string]any, error) {
	return map[string]any{
		RootKey: map[string]any{"class": "Workflow"},
		"inner": map[string]any{"class": "Workflow"},
	}, nil
}

type bareStub struct{}

func (bareStub) Name() string          { return "bare" }
func (bareStub) DefaultConfig() Config { return Config{} }

func TestSelect(t *testing.T) {
	t.Run("raw renderers pass output through", func(t *testing.T) {
		call, err := Select(rawStub{}, false)
		require.NoError(t, err)
		docs, err := call(workflow.New(), nil)
		require.NoError(t, err)
		assert.Equal(t, "raw output\n", docs[RootKey])
	})

	t.Run("structured renderers are serialized to YAML", func(t *testing.T) {
		call, err := Select(structuredStub{}, false)
		require.NoError(t, err)
		docs, err := call(workflow.New(), nil)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Contains(t, docs[RootKey], "class: Workflow")
	})

	t.Run("renderers with no variant are rejected", func(t *testing.T) {
		_, err := Select(bareStub{}, false)
		assert.ErrorContains(t, err, "neither raw nor structured")
	})
}

func TestMergeConfig(t *testing.T) {
	merged := MergeConfig(rawStub{}, Config{"mode": "slow", "extra": 1})
	assert.Equal(t, "slow", merged["mode"])
	assert.Equal(t, 1, merged["extra"])

	defaults := MergeConfig(rawStub{}, nil)
	assert.Equal(t, "fast", defaults["mode"])
}

func TestWrite(t *testing.T) {
	docs := map[string]string{
		RootKey: "root doc\n",
		"inner": "inner doc\n",
	}

	t.Run("stdout stream puts the root first", func(t *testing.T) {
		var sb strings.Builder
		require.NoError(t, Write(docs, "-", &sb))
		out := sb.String()
		assert.True(t, strings.HasPrefix(out, "root doc\n"))
		assert.Contains(t, out, "--- # inner")
		assert.Contains(t, out, "inner doc\n")
	})

	t.Run("percent pattern writes one file per document", func(t *testing.T) {
		dir := t.TempDir()
		pattern := filepath.Join(dir, "out-%.yaml")
		require.NoError(t, Write(docs, pattern, nil))

		root, err := os.ReadFile(filepath.Join(dir, "out-root.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "root doc\n", string(root))

		inner, err := os.ReadFile(filepath.Join(dir, "out-inner.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "inner doc\n", string(inner))
	})

	t.Run("plain file target rejects multiple documents", func(t *testing.T) {
		err := Write(docs, filepath.Join(t.TempDir(), "out.yaml"), nil)
		assert.ErrorContains(t, err, "no % pattern")
	})

	t.Run("plain file target accepts a single document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.yaml")
		single := map[string]string{RootKey: "only\n"}
		require.NoError(t, Write(single, path, nil))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "only\n", string(data))
	})
}
