package service

import (
	"Cabinet/internal/repo"
	"Cabinet/model"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteFolderRejectsNonEmpty(t *testing.T) {
	setup(t)
	ctx := context.Background()
	user := createTestUser(t, "alice", 1000)

	parent, err := CreateFolder(ctx, user.ID, "docs", nil)
	require.NoError(t, err)
	child, err := CreateFolder(ctx, user.ID, "drafts", &parent.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, DeleteFolder(ctx, user.ID, parent.ID), ErrFolderNotEmpty)

	file := mustUpload(t, user.ID, "note.txt", []byte("hi"), &child.ID)
	assert.ErrorIs(t, DeleteFolder(ctx, user.ID, child.ID), ErrFolderNotEmpty)

	require.NoError(t, DeleteFile(ctx, user.ID, file.ID))
	require.NoError(t, DeleteFolder(ctx, user.ID, child.ID))
	require.NoError(t, DeleteFolder(ctx, user.ID, parent.ID))
	assert.ErrorIs(t, DeleteFolder(ctx, user.ID, parent.ID), ErrFolderNotFound)
}

func TestCreateFolderParentMustBelongToOwner(t *testing.T) {
	setup(t)
	ctx := context.Background()
	alice := createTestUser(t, "alice", 1000)
	bob := createTestUser(t, "bob", 1000)

	folder, err := CreateFolder(ctx, alice.ID, "private", nil)
	require.NoError(t, err)

	_, err = CreateFolder(ctx, bob.ID, "intruder", &folder.ID)
	assert.ErrorIs(t, err, ErrFolderNotFound)
	_, err = CreateFolder(ctx, alice.ID, "  ", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBreadcrumbOrderedFromRoot(t *testing.T) {
	setup(t)
	ctx := context.Background()
	user := createTestUser(t, "alice", 1000)

	a, err := CreateFolder(ctx, user.ID, "a", nil)
	require.NoError(t, err)
	b, err := CreateFolder(ctx, user.ID, "b", &a.ID)
	require.NoError(t, err)
	c, err := CreateFolder(ctx, user.ID, "c", &b.ID)
	require.NoError(t, err)

	chain, err := Breadcrumb(ctx, user.ID, c.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(chain))
	for _, f := range chain {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestBreadcrumbTerminatesOnMalformedCycle(t *testing.T) {
	setup(t)
	ctx := context.Background()
	user := createTestUser(t, "alice", 1000)

	a, err := CreateFolder(ctx, user.ID, "a", nil)
	require.NoError(t, err)
	b, err := CreateFolder(ctx, user.ID, "b", &a.ID)
	require.NoError(t, err)
	// Corrupt the tree behind the service's back.
	require.NoError(t, repo.Db.Model(&model.Folder{}).Where("id = ?", a.ID).Update("parent_id", b.ID).Error)

	_, err = Breadcrumb(ctx, user.ID, b.ID)
	assert.ErrorIs(t, err, ErrFolderTooDeep)
}

func TestMoveFolderRejectsCycles(t *testing.T) {
	setup(t)
	ctx := context.Background()
	user := createTestUser(t, "alice", 1000)

	a, err := CreateFolder(ctx, user.ID, "a", nil)
	require.NoError(t, err)
	b, err := CreateFolder(ctx, user.ID, "b", &a.ID)
	require.NoError(t, err)
	c, err := CreateFolder(ctx, user.ID, "c", &b.ID)
	require.NoError(t, err)

	_, err = MoveFolder(ctx, user.ID, a.ID, &c.ID)
	assert.ErrorIs(t, err, ErrFolderCycle)
	_, err = MoveFolder(ctx, user.ID, a.ID, &a.ID)
	assert.ErrorIs(t, err, ErrFolderCycle)

	moved, err := MoveFolder(ctx, user.ID, c.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)

	roots, err := ListFolders(ctx, user.ID, new(uint64))
	require.NoError(t, err)
	assert.Len(t, roots, 2)
}

func TestFolderDepthIsBounded(t *testing.T) {
	setup(t)
	ctx := context.Background()
	user := createTestUser(t, "alice", 1000)

	var parent *uint64
	for i := 0; i < maxFolderDepth(); i++ {
		f, err := CreateFolder(ctx, user.ID, "level", parent)
		require.NoError(t, err)
		parent = &f.ID
	}
	_, err := CreateFolder(ctx, user.ID, "too-deep", parent)
	assert.ErrorIs(t, err, ErrFolderTooDeep)
}

func TestRenameFolderAndListing(t *testing.T) {
	setup(t)
	ctx := context.Background()
	user := createTestUser(t, "alice", 1000)

	first, err := CreateFolder(ctx, user.ID, "one", nil)
	require.NoError(t, err)
	_, err = CreateFolder(ctx, user.ID, "two", nil)
	require.NoError(t, err)
	_, err = CreateFolder(ctx, user.ID, "nested", &first.ID)
	require.NoError(t, err)

	renamed, err := RenameFolder(ctx, user.ID, first.ID, "uno")
	require.NoError(t, err)
	assert.Equal(t, "uno", renamed.Name)

	all, err := ListFolders(ctx, user.ID, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "uno", all[0].Name)
	assert.Equal(t, "two", all[1].Name)

	inside, err := ListFolders(ctx, user.ID, &first.ID)
	require.NoError(t, err)
	require.Len(t, inside, 1)
	assert.Equal(t, "nested", inside[0].Name)
}
