package service

import (
	"Cabinet/internal/testutil"
	"Cabinet/model"
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Exit(testutil.Run(m))
}

func setup(t *testing.T) {
	t.Helper()
	testutil.CleanTables(t)
	SetDerivativeDispatcher(nil)
}

// createTestUser provisions a user with the given quota.
func createTestUser(t *testing.T, name string, quota int64) *model.User {
	t.Helper()
	user, err := CreateUser(context.Background(), CreateUserInput{Username: name, Password: "secret", QuotaBytes: quota})
	require.NoError(t, err)
	return user
}

func uploadBytes(ctx context.Context, ownerID uint64, name string, content []byte, parentID *uint64) (*model.UserFile, error) {
	return CreateFile(ctx, CreateFileInput{
		OwnerID:  ownerID,
		Name:     name,
		MimeType: "text/plain",
		Size:     int64(len(content)),
		ParentID: parentID,
		Content:  bytes.NewReader(content),
	})
}

func mustUpload(t *testing.T, ownerID uint64, name string, content []byte, parentID *uint64) *model.UserFile {
	t.Helper()
	file, err := uploadBytes(context.Background(), ownerID, name, content, parentID)
	require.NoError(t, err)
	return file
}

func usedBytes(t *testing.T, userID uint64) int64 {
	t.Helper()
	usage, err := GetUsage(context.Background(), userID)
	require.NoError(t, err)
	return usage.UsedBytes
}

// sumOfSizes is the ledger value implied by the file records.
func sumOfSizes(t *testing.T, userID uint64) int64 {
	t.Helper()
	files, err := ListFiles(context.Background(), userID, nil)
	require.NoError(t, err)
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
