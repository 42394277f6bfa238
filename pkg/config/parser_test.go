package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSectionsAndEntries(t *testing.T) {
	doc, err := ParseString(`
[aliases]
a1 = alice

[groups]
devs = &a1, bob

[/code]
@devs = rw
~carol =
`)
	require.NoError(t, err)

	require.True(t, doc.HasSection("aliases"))
	require.True(t, doc.HasSection("groups"))
	require.True(t, doc.HasSection("/code"))
	require.False(t, doc.HasSection("/missing"))

	v, ok := doc.Get("aliases", "a1")
	require.True(t, ok)
	require.Equal(t, "alice", v)

	var entries []Entry
	doc.EnumerateEntries("/code", func(key, value string) bool {
		entries = append(entries, Entry{Key: key, Value: value})
		return true
	})
	require.Equal(t, []Entry{{Key: "@devs", Value: "rw"}, {Key: "~carol", Value: ""}}, entries)
}

func TestEnumerateSectionsOrderAndShortCircuit(t *testing.T) {
	doc, err := ParseString(`
[one]
a = 1
[two]
b = 2
[three]
c = 3
`)
	require.NoError(t, err)

	var seen []string
	doc.EnumerateSections(func(name string) bool {
		seen = append(seen, name)
		return name != "two"
	})
	require.Equal(t, []string{"one", "two"}, seen)
}

func TestParseIgnoresCommentsAndBlankLines(t *testing.T) {
	doc, err := ParseString(`
; a comment
# another comment

[/trunk]
alice = rw
`)
	require.NoError(t, err)
	v, ok := doc.Get("/trunk", "alice")
	require.True(t, ok)
	require.Equal(t, "rw", v)
}

func TestParseRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"entry before section": "alice = rw\n",
		"unterminated section":  "[/trunk\nalice = rw\n",
		"missing equals":        "[/trunk]\nalice\n",
		"empty section name":    "[]\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseString(input)
			require.Error(t, err)
		})
	}
}

func TestGetMissingSectionOrKey(t *testing.T) {
	doc, err := ParseString("[/trunk]\nalice = rw\n")
	require.NoError(t, err)

	_, ok := doc.Get("/missing", "alice")
	require.False(t, ok)

	_, ok = doc.Get("/trunk", "bob")
	require.False(t, ok)
}

func TestDuplicateSectionHeaderMergesEntries(t *testing.T) {
	doc, err := ParseString("[/trunk]\nalice = r\n[/trunk]\nbob = w\n")
	require.NoError(t, err)

	var keys []string
	doc.EnumerateEntries("/trunk", func(key, value string) bool {
		keys = append(keys, key)
		return true
	})
	require.Equal(t, []string{"alice", "bob"}, keys)
}
