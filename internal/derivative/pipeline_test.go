package derivative

import (
	"Cabinet/internal/repo"
	"Cabinet/internal/storage"
	"Cabinet/internal/testutil"
	"Cabinet/model"
	"Cabinet/utils"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Exit(testutil.Run(m))
}

// seedFile stores content for a fresh user and registers it.
func seedFile(t *testing.T, mimeType string, content []byte) *model.UserFile {
	t.Helper()
	user := model.User{UserName: "owner", Password: "x", QuotaBytes: 1 << 20}
	require.NoError(t, repo.Db.Create(&user).Error)
	sb, err := storage.Local.EnsureSandbox(user.ID)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(sb.ContentPath("blob"), content, 0o644))

	file := model.UserFile{
		OwnerID:    user.ID,
		Name:       "f",
		MimeType:   mimeType,
		Size:       int64(len(content)),
		Hash:       "h",
		StorageKey: "blob",
	}
	require.NoError(t, repo.Db.Create(&file).Error)
	return &file
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 50, 30))))
	require.NoError(t, f.Close())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func TestProcessImage(t *testing.T) {
	testutil.CleanTables(t)
	file := seedFile(t, "image/png", pngBytes(t))

	outcome, err := Process(context.Background(), &Generator{Size: 16}, file.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGenerated, outcome)

	var stored model.UserFile
	require.NoError(t, repo.Db.First(&stored, file.ID).Error)
	require.NotNil(t, stored.DerivativeRef)
	assert.Equal(t, storage.DerivativeName(file.ID), *stored.DerivativeRef)
	assert.FileExists(t, storage.Local.SandboxFor(file.OwnerID).DerivativePath(*stored.DerivativeRef))
	assert.Equal(t, file.Size, stored.Size)
	assert.Equal(t, file.Hash, stored.Hash)
}

func TestProcessSkipsNonMedia(t *testing.T) {
	testutil.CleanTables(t)
	file := seedFile(t, "text/plain", []byte("hello"))

	outcome, err := Process(context.Background(), &Generator{Size: 16}, file.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestProcessDiscardsMissingFile(t *testing.T) {
	testutil.CleanTables(t)
	outcome, err := Process(context.Background(), &Generator{Size: 16}, 424242)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, outcome)
}

func TestProcessFailureLeavesRecordUntouched(t *testing.T) {
	testutil.CleanTables(t)
	file := seedFile(t, "video/mp4", []byte("not a video"))
	gen := &Generator{Size: 16, FFmpegPath: "/nonexistent/ffmpeg", FFprobePath: "/nonexistent/ffprobe"}

	outcome, err := Process(context.Background(), gen, file.ID)
	assert.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	var stored model.UserFile
	require.NoError(t, repo.Db.First(&stored, file.ID).Error)
	assert.Nil(t, stored.DerivativeRef)
	assert.NoFileExists(t, storage.Local.SandboxFor(file.OwnerID).DerivativePath(storage.DerivativeName(file.ID)))
}

func TestProcessInvalidatesCachedListings(t *testing.T) {
	testutil.CleanTables(t)
	testutil.NewMemoryCache().Install(t)
	file := seedFile(t, "image/png", pngBytes(t))
	ctx := context.Background()

	_, gen, ok := utils.GetUserFileListFromCache(ctx, file.OwnerID, nil)
	require.False(t, ok)
	require.NoError(t, utils.SetUserFileListToCache(ctx, file.OwnerID, gen, nil, []model.UserFile{*file}, time.Minute))

	outcome, err := Process(ctx, &Generator{Size: 16}, file.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeGenerated, outcome)

	_, _, ok = utils.GetUserFileListFromCache(ctx, file.OwnerID, nil)
	assert.False(t, ok)
}
