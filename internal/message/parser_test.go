package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-harvester/internal/archive"
)

func TestExtractTextPlain(t *testing.T) {
	t.Parallel()

	raw := "From: a@example.com\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nhello there\r\n"
	text, err := New(Config{}).ExtractText(raw)
	require.NoError(t, err)
	assert.Equal(t, "hello there\r\n", text)
}

func TestExtractTextDefaultsToPlainWithoutContentType(t *testing.T) {
	t.Parallel()

	text, err := New(Config{}).ExtractText("Subject: hi\n\nno content type\n")
	require.NoError(t, err)
	assert.Equal(t, "no content type\n", text)
}

func TestExtractTextPicksPlainPartOfMultipart(t *testing.T) {
	t.Parallel()

	raw := "Content-Type: multipart/alternative; boundary=XX\r\n\r\n" +
		"--XX\r\nContent-Type: text/html\r\n\r\n<p>hi</p>\r\n" +
		"--XX\r\nContent-Type: text/plain\r\n\r\nhi plain\r\n" +
		"--XX--\r\n"
	text, err := New(Config{}).ExtractText(raw)
	require.NoError(t, err)
	assert.Equal(t, "hi plain", text)
}

func TestExtractTextDecodesTransferEncoding(t *testing.T) {
	t.Parallel()

	raw := "Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n\r\n" +
		"see http://a.example/watch?v=3Dabc\r\n"
	text, err := New(Config{}).ExtractText(raw)
	require.NoError(t, err)
	assert.Equal(t, "see http://a.example/watch?v=abc\r\n", text)
}

func TestExtractTextUnwrapsNestedMessages(t *testing.T) {
	t.Parallel()

	inner := "X-Google-Groups: g\r\nFrom: a@example.com\r\nContent-Type: text/plain\r\n\r\ninnermost text\r\n"
	middle := "X-Google-Groups: g\r\nContent-Type: text/plain\r\n\r\n" + inner
	raw := "From: a@example.com\r\nContent-Type: text/plain\r\n\r\n" + middle

	text, err := New(Config{}).ExtractText(raw)
	require.NoError(t, err)
	assert.Equal(t, "innermost text\r\n", text)
}

func TestExtractTextNoTextPart(t *testing.T) {
	t.Parallel()

	raw := "Content-Type: multipart/mixed; boundary=B\r\n\r\n" +
		"--B\r\nContent-Type: text/html\r\n\r\n<p>only html</p>\r\n" +
		"--B--\r\n"
	_, err := New(Config{}).ExtractText(raw)
	assert.ErrorIs(t, err, archive.ErrNoTextPart)
}

func TestExtractTextBoundsNestingDepth(t *testing.T) {
	t.Parallel()

	text := "final\r\n"
	for range 5 {
		text = "X-Google-Groups: g\r\nContent-Type: text/plain\r\n\r\n" + text
	}
	raw := "Content-Type: text/plain\r\n\r\n" + text

	_, err := New(Config{MaxDepth: 2}).ExtractText(raw)
	assert.ErrorIs(t, err, archive.ErrNoTextPart)

	got, err := New(Config{}).ExtractText(raw)
	require.NoError(t, err)
	assert.Equal(t, "final\r\n", got)
}

func TestExtractTextCustomMarker(t *testing.T) {
	t.Parallel()

	raw := "Content-Type: text/plain\r\n\r\nX-Nested: 1\r\nContent-Type: text/plain\r\n\r\ninner\r\n"
	text, err := New(Config{Marker: "X-Nested:"}).ExtractText(raw)
	require.NoError(t, err)
	assert.Equal(t, "inner\r\n", text)
}

func TestExtractTextKeepsMultipartPartWithUnknownCharset(t *testing.T) {
	t.Parallel()

	raw := "Content-Type: multipart/alternative; boundary=XX\r\n\r\n" +
		"--XX\r\nContent-Type: text/plain; charset=x-unknown-archive\r\n\r\nsee http://youtu.be/abc\r\n" +
		"--XX\r\nContent-Type: text/html\r\n\r\n<p>see</p>\r\n" +
		"--XX--\r\n"
	text, err := New(Config{}).ExtractText(raw)
	require.NoError(t, err)
	assert.Equal(t, "see http://youtu.be/abc", text)
}

func TestExtractTextKeepsMultipartPartWithUnknownEncoding(t *testing.T) {
	t.Parallel()

	raw := "Content-Type: multipart/mixed; boundary=XX\r\n\r\n" +
		"--XX\r\nContent-Type: text/plain\r\nContent-Transfer-Encoding: x-archive\r\n\r\nraw words\r\n" +
		"--XX--\r\n"
	text, err := New(Config{}).ExtractText(raw)
	require.NoError(t, err)
	assert.Equal(t, "raw words", text)
}
