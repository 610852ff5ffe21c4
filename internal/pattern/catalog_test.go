package pattern

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) (*Catalog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patterns.json")
	c, err := NewCatalog(path, WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	return c, path
}

func TestNewCatalog_SeedsBuiltIns(t *testing.T) {
	c, path := newTestCatalog(t)

	all := c.List()
	require.Len(t, all, len(builtInCatalog))
	assert.Len(t, c.Enabled(), 26)
	for _, p := range all {
		assert.True(t, p.IsBuiltIn, p.Name)
		assert.NotEmpty(t, p.ID)
	}
	assert.Equal(t, "AAA-1234", all[0].Name)

	_, err := os.Stat(path)
	require.NoError(t, err, "seeded catalog should be persisted")

	reopened, err := NewCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, all, reopened.List())
}

func TestNewCatalog_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewCatalog(path)
	require.ErrorIs(t, err, common.ErrDatabaseCorrupted)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data), "corrupt document must not be overwritten")
}

func TestCatalog_AddUpdateDelete(t *testing.T) {
	c, path := newTestCatalog(t)

	added, err := c.Add("Ticket", `TCK-\d+`)
	require.NoError(t, err)
	assert.True(t, added.Enabled)
	assert.False(t, added.IsBuiltIn)

	all := c.List()
	assert.Equal(t, added, all[len(all)-1])

	require.NoError(t, c.Update(added.ID, "Ticket v2", `TCK\d+`))
	got, err := c.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ticket v2", got.Name)
	assert.Equal(t, `TCK\d+`, got.Expression)
	assert.Equal(t, added.ID, got.ID)

	reopened, err := NewCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, c.List(), reopened.List())

	require.NoError(t, c.Delete(added.ID))
	_, err = c.Get(added.ID)
	require.ErrorIs(t, err, ErrPatternNotFound)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCatalog_AddKeepsInvalidExpression(t *testing.T) {
	c, _ := newTestCatalog(t)

	added, err := c.Add("Broken", `([A-Z`)
	require.NoError(t, err)

	got, err := c.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, `([A-Z`, got.Expression)
	assert.Empty(t, NewDetector().Find("ABC", []model.Pattern{got}))
}

func TestCatalog_DeleteBuiltInRejected(t *testing.T) {
	c, _ := newTestCatalog(t)
	builtIn := c.List()[0]

	err := c.Delete(builtIn.ID)
	require.ErrorIs(t, err, common.ErrBuiltIn)
	assert.Len(t, c.List(), len(builtInCatalog))
}

func TestCatalog_UnknownIDsAreNoOps(t *testing.T) {
	c, _ := newTestCatalog(t)
	before := c.List()

	require.NoError(t, c.Update("missing", "x", "y"))
	require.NoError(t, c.Delete("missing"))
	require.NoError(t, c.SetEnabled("missing", true))
	assert.Equal(t, before, c.List())

	require.ErrorIs(t, c.Move("missing", 0), ErrPatternNotFound)
}

func TestCatalog_SetEnabled(t *testing.T) {
	c, _ := newTestCatalog(t)
	first := c.List()[0]

	require.NoError(t, c.SetEnabled(first.ID, false))
	assert.Len(t, c.Enabled(), 25)
	for _, p := range c.Enabled() {
		assert.NotEqual(t, first.ID, p.ID)
	}

	require.NoError(t, c.SetEnabled(first.ID, true))
	assert.Equal(t, first.ID, c.Enabled()[0].ID)
}

func TestCatalog_Move(t *testing.T) {
	tests := []struct {
		name  string
		index int
		want  int
	}{
		{name: "to front", index: 0, want: 0},
		{name: "to middle", index: 3, want: 3},
		{name: "past end clamps", index: 1000, want: len(builtInCatalog)},
		{name: "negative clamps", index: -5, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCatalog(t)
			added, err := c.Add("Mine", `MINE-\d+`)
			require.NoError(t, err)

			require.NoError(t, c.Move(added.ID, tt.index))

			all := c.List()
			assert.Len(t, all, len(builtInCatalog)+1)
			assert.Equal(t, added.ID, all[tt.want].ID)
		})
	}
}

func TestCatalog_WriteFailureKeepsMutation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.json")
	c, err := NewCatalog(path)
	require.NoError(t, err)

	// A directory at the target path makes the rename fail.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), nil, 0600))

	added, err := c.Add("Mine", `MINE-\d+`)
	require.ErrorIs(t, err, common.ErrPersistenceWrite)

	got, getErr := c.Get(added.ID)
	require.NoError(t, getErr)
	assert.Equal(t, "Mine", got.Name)
}

func TestCatalog_ExportImport(t *testing.T) {
	src, _ := newTestCatalog(t)
	mine, err := src.Add("Mine", `MINE-\d+`)
	require.NoError(t, err)
	require.NoError(t, src.SetEnabled(mine.ID, false))

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))
	assert.Contains(t, buf.String(), "patterns:")
	assert.Contains(t, buf.String(), "MINE-")

	dst, _ := newTestCatalog(t)
	result, err := dst.Import(&buf, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 0, result.Removed)

	imported := dst.List()
	last := imported[len(imported)-1]
	assert.Equal(t, "Mine", last.Name)
	assert.False(t, last.Enabled)
	assert.False(t, last.IsBuiltIn)
}

func TestCatalog_ImportReplaceKeepsBuiltIns(t *testing.T) {
	c, _ := newTestCatalog(t)
	old, err := c.Add("Old", `OLD-\d+`)
	require.NoError(t, err)
	builtIn := c.List()[0]

	doc := `patterns:
  - id: ` + builtIn.ID + `
    name: Renamed
    pattern: '(?i)[A-Z]{2,5}-\d{3,7}'
    enabled: false
  - name: New
    pattern: 'NEW-\d+'
    enabled: true
`
	result, err := c.Import(strings.NewReader(doc), true)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 1, Updated: 1, Removed: 1}, result)

	_, err = c.Get(old.ID)
	require.ErrorIs(t, err, ErrPatternNotFound)

	renamed, err := c.Get(builtIn.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Name)
	assert.False(t, renamed.Enabled)
	assert.True(t, renamed.IsBuiltIn)

	assert.Len(t, c.List(), len(builtInCatalog)+1)
}

func TestCatalog_ImportRejectsBadYAML(t *testing.T) {
	c, _ := newTestCatalog(t)
	_, err := c.Import(strings.NewReader("patterns: [unterminated"), false)
	require.Error(t, err)
	assert.Len(t, c.List(), len(builtInCatalog))
}
