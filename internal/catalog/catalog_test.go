package catalog

import (
	"fmt"
	"strings"
	"testing"

	"github.com/adamscao/ovpnbot/internal/policy"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dir = "/root/ovpns"

func newTestService(t *testing.T) (*Service, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	return NewService(fs, dir, ".ovpn", 10), fs
}

func TestListUsers_DirMissing(t *testing.T) {
	s := NewService(afero.NewMemMapFs(), dir, ".ovpn", 10)

	_, err := s.ListUsers()
	assert.ErrorIs(t, err, ErrCatalogDirMissing)
}

func TestListUsers_Empty(t *testing.T) {
	s, _ := newTestService(t)

	entries, err := s.ListUsers()
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestListUsers_SortedWithSizes(t *testing.T) {
	s, fs := newTestService(t)

	require.NoError(t, afero.WriteFile(fs, dir+"/carol.ovpn", make([]byte, 1536), 0o600))
	require.NoError(t, afero.WriteFile(fs, dir+"/alice.ovpn", make([]byte, 4096), 0o600))
	require.NoError(t, afero.WriteFile(fs, dir+"/Bob.ovpn", make([]byte, 100), 0o600))
	// ignored: other extensions, temp files, directories
	require.NoError(t, afero.WriteFile(fs, dir+"/notes.txt", []byte("x"), 0o600))
	require.NoError(t, afero.WriteFile(fs, dir+"/.dave.ovpn.123.tmp", []byte("x"), 0o600))
	require.NoError(t, fs.MkdirAll(dir+"/old.ovpn", 0o755))

	entries, err := s.ListUsers()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "Bob", entries[0].Username)
	assert.Equal(t, "alice", entries[1].Username)
	assert.Equal(t, "carol", entries[2].Username)

	assert.InDelta(t, 4.0, entries[1].SizeKB, 1e-9)
	assert.InDelta(t, 1.5, entries[2].SizeKB, 1e-9)
	assert.Equal(t, dir+"/alice.ovpn", entries[1].Path)
}

func TestGetUserConfigPath(t *testing.T) {
	s, fs := newTestService(t)
	require.NoError(t, afero.WriteFile(fs, dir+"/alice.ovpn", []byte("client\n"), 0o600))

	path, err := s.GetUserConfigPath("alice")
	require.NoError(t, err)
	assert.Equal(t, dir+"/alice.ovpn", path)

	_, err = s.GetUserConfigPath("bob")
	assert.ErrorIs(t, err, ErrConfigFileNotFound)

	_, err = s.GetUserConfigPath("../../etc/passwd")
	assert.ErrorIs(t, err, policy.ErrInvalidUsername)

	_, data, err := s.ReadUserConfig("alice")
	require.NoError(t, err)
	assert.Equal(t, "client\n", string(data))
}

func TestPage_TwentyThreeFiles(t *testing.T) {
	s, fs := newTestService(t)
	for i := 0; i < 23; i++ {
		require.NoError(t, afero.WriteFile(fs, fmt.Sprintf("%s/user%02d.ovpn", dir, i), []byte("x"), 0o600))
	}

	wantCounts := []int{10, 10, 3}
	var all []string
	for i, want := range wantCounts {
		p, err := s.Page(i)
		require.NoError(t, err)

		assert.Len(t, p.Items, want)
		assert.Equal(t, 3, p.TotalPages)
		assert.Equal(t, 23, p.TotalCount)
		for _, e := range p.Items {
			all = append(all, e.Username)
		}
	}

	first, _ := s.Page(0)
	last, _ := s.Page(2)
	assert.False(t, first.HasPrev)
	assert.True(t, first.HasNext)
	assert.True(t, last.HasPrev)
	assert.False(t, last.HasNext)

	// concatenating all pages reproduces the full ordered listing
	entries, err := s.ListUsers()
	require.NoError(t, err)
	require.Len(t, all, len(entries))
	for i, e := range entries {
		assert.Equal(t, e.Username, all[i])
	}
}

func TestPaginate(t *testing.T) {
	entries := make([]Entry, 5)
	for i := range entries {
		entries[i] = Entry{Username: string(rune('a' + i))}
	}

	tests := []struct {
		name      string
		entries   []Entry
		index     int
		size      int
		wantItems int
		wantPages int
		wantPrev  bool
		wantNext  bool
	}{
		{name: "empty", entries: nil, index: 0, size: 10, wantItems: 0, wantPages: 0},
		{name: "single page", entries: entries, index: 0, size: 10, wantItems: 5, wantPages: 1},
		{name: "exact multiple", entries: entries, index: 4, size: 1, wantItems: 1, wantPages: 5, wantPrev: true},
		{name: "middle", entries: entries, index: 1, size: 2, wantItems: 2, wantPages: 3, wantPrev: true, wantNext: true},
		{name: "past end", entries: entries, index: 7, size: 2, wantItems: 0, wantPages: 3},
		{name: "negative", entries: entries, index: -1, size: 2, wantItems: 0, wantPages: 3},
		{name: "default size", entries: entries, index: 0, size: 0, wantItems: 5, wantPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(tt.entries, tt.index, tt.size)

			assert.Len(t, p.Items, tt.wantItems)
			assert.Equal(t, tt.wantPages, p.TotalPages)
			assert.Equal(t, len(tt.entries), p.TotalCount)
			assert.Equal(t, tt.index, p.PageIndex)
			assert.Equal(t, tt.wantPrev, p.HasPrev)
			assert.Equal(t, tt.wantNext, p.HasNext)
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "4.0 KB", FormatSize(4))
	assert.Equal(t, "1.5 KB", FormatSize(1.5))
	assert.Equal(t, "0.1 KB", FormatSize(100.0/1024))
	assert.True(t, strings.HasSuffix(FormatSize(0), " KB"))
}
