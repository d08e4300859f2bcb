package roster

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"certgen/internal/db"
	"certgen/internal/storage"
	"certgen/internal/types"
)

func TestParseFlat(t *testing.T) {
	entries, err := ParseFlat(strings.NewReader("\ufeffa@example.com\r\n  b@example.com  \n\n\nc@example.com"))
	require.NoError(t, err)

	emails := make([]string, len(entries))
	for i, e := range entries {
		emails[i] = e.Email
		assert.False(t, e.HasName)
	}
	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, emails)
}

func TestParseTabular(t *testing.T) {
	csvData := "Name, Email\n" +
		"john smith, john@example.com\n" +
		"null,anon@example.com\n" +
		",blank@example.com\n" +
		"\"Doe, Jane\",jane@example.com\n" +
		"nobody,\n"

	entries, err := ParseTabular(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, Entry{Email: "john@example.com", Name: "john smith", HasName: true}, entries[0])
	assert.Equal(t, Entry{Email: "anon@example.com"}, entries[1])
	assert.Equal(t, Entry{Email: "blank@example.com"}, entries[2])
	assert.Equal(t, Entry{Email: "jane@example.com", Name: "Doe, Jane", HasName: true}, entries[3])
}

func TestParseTabular_ColumnOrderAndMissingName(t *testing.T) {
	entries, err := ParseTabular(strings.NewReader("email,score\na@example.com,10\n"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].HasName)

	entries, err = ParseTabular(strings.NewReader("email,name\nb@example.com,Bob\n"))
	require.NoError(t, err)
	assert.Equal(t, "Bob", entries[0].Name)
}

func TestParseTabular_Errors(t *testing.T) {
	_, err := ParseTabular(strings.NewReader(""))
	assert.ErrorContains(t, err, "missing header")

	_, err = ParseTabular(strings.NewReader("name,address\nx,y\n"))
	assert.ErrorContains(t, err, "no email column")

	_, err = ParseTabular(strings.NewReader("name,email\n\"unterminated,a@example.com\n"))
	assert.Error(t, err)
}

func TestLookup_FirstExactMatchWins(t *testing.T) {
	r := &Roster{Format: FormatTabular, Entries: []Entry{
		{Email: "dup@example.com", Name: "First", HasName: true},
		{Email: "dup@example.com", Name: "Second", HasName: true},
		{Email: "Case@Example.com"},
	}}

	e, ok := r.Lookup("dup@example.com")
	require.True(t, ok)
	assert.Equal(t, "First", e.Name)

	_, ok = r.Lookup("case@example.com")
	assert.False(t, ok, "lookup is case-sensitive")

	_, ok = r.Lookup(" dup@example.com")
	assert.False(t, ok, "query is not trimmed")
}

func TestLookup_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		emails := rapid.SliceOf(rapid.StringMatching(`[a-z]{1,6}@[a-z]{1,4}\.com`)).Draw(t, "emails")
		r := &Roster{Format: FormatFlat}
		for _, e := range emails {
			r.Entries = append(r.Entries, Entry{Email: e})
		}
		query := rapid.StringMatching(`[a-z]{1,6}@[a-z]{1,4}\.com`).Draw(t, "query")

		got, ok := r.Lookup(query)
		want := false
		for _, e := range emails {
			if e == query {
				want = true
				break
			}
		}
		if ok != want {
			t.Fatalf("Lookup(%q) found=%v, want %v", query, ok, want)
		}
		if ok && got.Email != query {
			t.Fatalf("Lookup returned %q for %q", got.Email, query)
		}
	})
}

func TestLayoutName(t *testing.T) {
	flat := Layout{Format: FormatFlat, GlobalName: "verify.txt", EventDir: "rosters"}
	assert.Equal(t, "verify.txt", flat.Name(""))
	assert.Equal(t, "rosters/devfest.txt", flat.Name("devfest"))

	tab := Layout{Format: FormatTabular, GlobalName: "roster.csv", EventDir: "rosters"}
	assert.Equal(t, "rosters/devfest-2024.csv", tab.Name("devfest-2024"))
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"flat": FormatFlat, "Tabular": FormatTabular, "csv": FormatTabular} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("json")
	assert.Error(t, err)
}

func TestFileLoader(t *testing.T) {
	fsys := fstest.MapFS{
		"verify.txt":           {Data: []byte("a@example.com\nb@example.com\n")},
		"rosters/devfest.txt":  {Data: []byte("dev@example.com\n")},
		"rosters/broken.csv":   {Data: []byte("")},
		"rosters/devfest2.csv": {Data: []byte("name,email\nnull,x@example.com\n")},
	}

	flat := NewFileLoader(fsys, Layout{Format: FormatFlat, GlobalName: "verify.txt", EventDir: "rosters"})

	r, err := flat.Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, "", r.Event)

	r, err = flat.Load(context.Background(), "devfest")
	require.NoError(t, err)
	_, ok := r.Lookup("dev@example.com")
	assert.True(t, ok)

	_, err = flat.Load(context.Background(), "unknown")
	assert.True(t, types.IsCode(err, types.ErrCodeRosterNotFound), "got %v", err)

	_, err = flat.Load(context.Background(), "../etc")
	assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidEvent), "got %v", err)

	tab := NewFileLoader(fsys, Layout{Format: FormatTabular, GlobalName: "roster.csv", EventDir: "rosters"})
	_, err = tab.Load(context.Background(), "broken")
	assert.True(t, types.IsCode(err, types.ErrCodeRosterUnreadable), "got %v", err)

	r, err = tab.Load(context.Background(), "devfest2")
	require.NoError(t, err)
	e, ok := r.Lookup("x@example.com")
	require.True(t, ok)
	assert.False(t, e.HasName)
}

func TestFileLoader_ReadsFreshEachTime(t *testing.T) {
	fsys := fstest.MapFS{"verify.txt": {Data: []byte("old@example.com\n")}}
	loader := NewFileLoader(fsys, Layout{Format: FormatFlat, GlobalName: "verify.txt"})

	_, err := loader.Load(context.Background(), "")
	require.NoError(t, err)

	fsys["verify.txt"] = &fstest.MapFile{Data: []byte("new@example.com\n")}
	r, err := loader.Load(context.Background(), "")
	require.NoError(t, err)
	_, ok := r.Lookup("new@example.com")
	assert.True(t, ok)
	_, ok = r.Lookup("old@example.com")
	assert.False(t, ok)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/people.csv"
	require.NoError(t, os.WriteFile(path, []byte("name,email\njane doe,jane@example.com\n"), 0o644))

	r, err := ReadFile(path, FormatTabular)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())
	assert.Equal(t, "jane doe", r.Entries[0].Name)

	_, err = ReadFile(dir+"/missing.csv", FormatTabular)
	assert.True(t, types.IsCode(err, types.ErrCodeRosterNotFound))
}

type fakeObjects struct {
	objects map[string]string
	err     error
	gotKey  string
}

func (f *fakeObjects) GetObject(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.gotKey = bucket + "/" + key
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[f.gotKey]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader([]byte(data))), nil
}

func TestS3Loader(t *testing.T) {
	objects := &fakeObjects{objects: map[string]string{
		"certs/prod/rosters/devfest.csv": "name,email\nJohn Smith,john@example.com\n",
	}}
	loader := NewS3Loader(objects, "certs", "prod", Layout{Format: FormatTabular, GlobalName: "roster.csv", EventDir: "rosters"})

	r, err := loader.Load(context.Background(), "devfest")
	require.NoError(t, err)
	assert.Equal(t, "certs/prod/rosters/devfest.csv", objects.gotKey)
	e, ok := r.Lookup("john@example.com")
	require.True(t, ok)
	assert.Equal(t, "John Smith", e.Name)

	_, err = loader.Load(context.Background(), "")
	assert.True(t, types.IsCode(err, types.ErrCodeRosterNotFound))

	objects.err = errors.New("access denied")
	_, err = loader.Load(context.Background(), "devfest")
	assert.True(t, types.IsCode(err, types.ErrCodeRosterUnreadable))
}

type fakeEntrySource struct {
	rows []db.RosterRow
	err  error
}

func (f *fakeEntrySource) ListEntries(context.Context, string) ([]db.RosterRow, error) {
	return f.rows, f.err
}

func TestPostgresLoader(t *testing.T) {
	name := "jane doe"
	empty := ""
	loader := NewPostgresLoader(&fakeEntrySource{rows: []db.RosterRow{
		{Name: &name, Email: "jane@example.com"},
		{Name: nil, Email: "anon@example.com"},
		{Name: &empty, Email: "blank@example.com"},
	}})

	r, err := loader.Load(context.Background(), "devfest")
	require.NoError(t, err)
	assert.Equal(t, FormatTabular, r.Format)
	assert.Equal(t, []Entry{
		{Email: "jane@example.com", Name: "jane doe", HasName: true},
		{Email: "anon@example.com"},
		{Email: "blank@example.com"},
	}, r.Entries)

	_, err = NewPostgresLoader(&fakeEntrySource{}).Load(context.Background(), "none")
	assert.True(t, types.IsCode(err, types.ErrCodeRosterNotFound))

	_, err = NewPostgresLoader(&fakeEntrySource{err: errors.New("down")}).Load(context.Background(), "x")
	assert.True(t, types.IsCode(err, types.ErrCodeRosterUnreadable))
}
