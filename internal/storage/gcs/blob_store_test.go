package gcs

import (
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "bucket"})
	assert.Error(t, err)

	_, err = New(&storage.Client{}, Config{})
	assert.Error(t, err)

	store, err := New(&storage.Client{}, Config{Bucket: "bucket", Prefix: "/bodies/"})
	require.NoError(t, err)
	assert.Equal(t, "bodies", store.prefix)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	name, err := objectName("", "group/topic/1/msg")
	require.NoError(t, err)
	assert.Equal(t, "group/topic/1/msg", name)

	name, err = objectName("bodies", "group/topic/1/msg")
	require.NoError(t, err)
	assert.Equal(t, "bodies/group/topic/1/msg", name)

	_, err = objectName("bodies", "")
	assert.Error(t, err)

	_, err = objectName("bodies", "../secrets")
	assert.Error(t, err)
}
