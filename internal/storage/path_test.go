package storage

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func TestNormalizeObjectPath(t *testing.T) {
	cases := map[string]string{
		"/objects/abc":                        "/objects/abc",
		"/objects/abc?x=1":                    "/objects/abc",
		"/objects/abc#frag":                   "/objects/abc",
		"https://example.com/objects/f1":      "/objects/f1",
		"https://host/objects/abc?download=1": "/objects/abc",
		"https://host/other/abc":              "https://host/other/abc",
		"https://host/objects/":               "https://host/objects/",
		"abc":                                 "abc",
		"http://[::1":                         "http://[::1",
		"":                                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeObjectPath(in), "input %q", in)
	}
}

func TestObjectID(t *testing.T) {
	id, err := objectID("/objects/abc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "abc.pdf", id)

	id, err = objectID("/objects/case-1/abc")
	require.NoError(t, err)
	assert.Equal(t, "case-1/abc", id)

	for _, bad := range []string{
		"abc",
		"/files/abc",
		"/objects/",
		"/objects//abc",
		"/objects/../secret",
		"/objects/a/../../b",
		"/objects/..",
		"/objects/a/./b",
	} {
		_, err := objectID(bad)
		assert.True(t, errors.Is(err, ErrObjectNotFound), "expected not found for %q", bad)
	}
}

func TestNewObjectID(t *testing.T) {
	plain := newObjectID("")
	assert.Regexp(t, uuidPattern, plain)
	assert.Len(t, plain, 36)

	withExt := newObjectID("Mediation Agreement.PDF")
	assert.Regexp(t, uuidPattern, withExt)
	assert.Equal(t, ".pdf", withExt[36:])

	assert.Len(t, newObjectID(`C:\docs\notes`), 36)
	assert.Equal(t, ".txt", newObjectID(`C:\docs\notes.txt`)[36:])
	assert.NotEqual(t, newObjectID(""), newObjectID(""))
}
