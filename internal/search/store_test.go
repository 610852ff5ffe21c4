package search

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/shotscan/internal/common"
	"github.com/Veraticus/shotscan/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "search_domains.json")
	store, err := NewStore(path, nil)
	require.NoError(t, err)
	return store, path
}

func names(domains []model.SearchDomain) []string {
	out := make([]string, len(domains))
	for i, d := range domains {
		out[i] = d.Name
	}
	return out
}

func TestNewStore_SeedsBuiltIns(t *testing.T) {
	store, path := newTestStore(t)

	assert.Equal(t, []string{"Google", "Bing", "DuckDuckGo"}, names(store.List()))
	active, ok := store.Active()
	require.True(t, ok)
	assert.Equal(t, "Google", active.Name)

	_, err := os.Stat(path)
	require.NoError(t, err)

	reloaded, err := NewStore(path, nil)
	require.NoError(t, err)
	assert.Equal(t, store.List(), reloaded.List())
}

func TestNewStore_MergesMissingBuiltIns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search_domains.json")
	saved := []model.SearchDomain{
		{ID: "g", Name: "Google", URLTemplate: "https://www.google.com/search?q={q}", IsBuiltIn: true},
		{ID: "mine", Name: "Mine", URLTemplate: "https://example.com/?s={q}", Enabled: true},
	}
	data, err := json.Marshal(saved)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	store, err := NewStore(path, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Google", "Mine", "Bing", "DuckDuckGo"}, names(store.List()))
	active, _ := store.Active()
	assert.Equal(t, "Mine", active.Name)
}

func TestNewStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search_domains.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	_, err := NewStore(path, nil)
	require.ErrorIs(t, err, common.ErrDatabaseCorrupted)
}

func TestStore_AddActivateDelete(t *testing.T) {
	store, _ := newTestStore(t)

	added, err := store.Add("Wiki", "https://en.wikipedia.org/w/index.php?search={q}")
	require.NoError(t, err)
	assert.False(t, added.Enabled)
	assert.False(t, added.IsBuiltIn)

	require.NoError(t, store.Activate("wiki"))
	active, _ := store.Active()
	assert.Equal(t, added.ID, active.ID)

	enabled := 0
	for _, d := range store.List() {
		if d.Enabled {
			enabled++
		}
	}
	assert.Equal(t, 1, enabled)

	require.NoError(t, store.Delete(added.ID))
	_, err = store.Find(added.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	// With nothing enabled the first built-in is active.
	active, ok := store.Active()
	require.True(t, ok)
	assert.Equal(t, "Google", active.Name)
}

func TestStore_DeleteBuiltInRejected(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Delete("Bing")
	require.ErrorIs(t, err, common.ErrBuiltIn)
	assert.Len(t, store.List(), 3)
}

func TestStore_Update(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Update("Bing", "Bing JP", "https://www.bing.com/search?cc=jp&q={q}"))
	d, err := store.Find("bing jp")
	require.NoError(t, err)
	assert.Equal(t, "https://www.bing.com/search?cc=jp&q={q}", d.URLTemplate)

	require.NoError(t, store.Update("missing", "x", "https://x.test/?q={q}"))
}

func TestStore_ActivateUnknown(t *testing.T) {
	store, _ := newTestStore(t)
	require.ErrorIs(t, store.Activate("nope"), common.ErrNotFound)
}

func TestStore_URL(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.URL("ABC-1234 review")
	require.NoError(t, err)
	assert.Equal(t, "https://www.google.com/search?q=ABC-1234+review", got)
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		template string
		query    string
		want     string
	}{
		{"plain", "https://duckduckgo.com/?q={q}", "ABC-1234", "https://duckduckgo.com/?q=ABC-1234"},
		{"reserved characters", "https://x.test/?q={q}", "a&b=c", "https://x.test/?q=a%26b%3Dc"},
		{"non ascii", "https://x.test/?q={q}", "コード", "https://x.test/?q=%E3%82%B3%E3%83%BC%E3%83%89"},
		{"repeated placeholder", "https://x.test/{q}?q={q}", "A1", "https://x.test/A1?q=A1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildURL(tt.template, tt.query))
		})
	}
}

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{"valid", "https://www.google.com/search?q={q}", false},
		{"http", "http://intranet.local/find?q={q}", false},
		{"missing placeholder", "https://www.google.com/search", true},
		{"relative", "/search?q={q}", true},
		{"other scheme", "ftp://x.test/{q}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTemplate(tt.template)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTemplate)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStore_AddRejectsInvalidTemplate(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Add("bad", "not a url")
	require.ErrorIs(t, err, ErrInvalidTemplate)
	assert.Len(t, store.List(), 3)
}
