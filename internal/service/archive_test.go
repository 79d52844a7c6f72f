package service

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderArchive(t *testing.T) {
	setup(t)
	ctx := context.Background()
	user := createTestUser(t, "alice", 1000)
	root, err := CreateFolder(ctx, user.ID, "project", nil)
	require.NoError(t, err)
	sub, err := CreateFolder(ctx, user.ID, "assets", &root.ID)
	require.NoError(t, err)
	mustUpload(t, user.ID, "readme.md", []byte("# hello"), &root.ID)
	mustUpload(t, user.ID, "logo.svg", []byte("<svg/>"), &sub.ID)
	mustUpload(t, user.ID, "outside.txt", []byte("no"), nil)

	name, entries, err := BuildFolderArchive(ctx, user.ID, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "project", name)

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(ctx, &buf, entries))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		contents[f.Name] = string(b)
	}
	assert.Equal(t, "# hello", contents["project/readme.md"])
	assert.Equal(t, "<svg/>", contents["project/assets/logo.svg"])
	assert.Contains(t, contents, "project/assets/")
	assert.NotContains(t, contents, "outside.txt")
}

func TestFolderArchiveForeignFolder(t *testing.T) {
	setup(t)
	ctx := context.Background()
	alice := createTestUser(t, "alice", 1000)
	bob := createTestUser(t, "bob", 1000)
	folder, err := CreateFolder(ctx, alice.ID, "private", nil)
	require.NoError(t, err)

	_, _, err = BuildFolderArchive(ctx, bob.ID, folder.ID)
	assert.ErrorIs(t, err, ErrFolderNotFound)
}

func TestSanitizeArchiveName(t *testing.T) {
	assert.Equal(t, "_etc_passwd", sanitizeArchiveName("/etc/passwd"))
	assert.Equal(t, "unnamed", sanitizeArchiveName("  "))
	assert.NotContains(t, sanitizeArchiveName("../../x"), "..")
}
