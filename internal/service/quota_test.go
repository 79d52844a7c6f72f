package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"Cabinet/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveQuotaBoundary(t *testing.T) {
	setup(t)
	ctx := context.Background()
	user := createTestUser(t, "alice", 100)

	require.NoError(t, ReserveQuota(ctx, user.ID, 60))
	assert.ErrorIs(t, ReserveQuota(ctx, user.ID, 41), ErrQuotaExceeded)
	require.NoError(t, ReserveQuota(ctx, user.ID, 40))
	assert.Equal(t, int64(100), usedBytes(t, user.ID))

	require.NoError(t, ReleaseQuota(ctx, user.ID, 30))
	assert.Equal(t, int64(70), usedBytes(t, user.ID))

	assert.ErrorIs(t, ReserveQuota(ctx, 999999, 1), ErrNotFound)
	assert.ErrorIs(t, ReserveQuota(ctx, user.ID, -1), ErrInvalidArgument)
}

func TestUploadExactHeadroomAndOneByteOver(t *testing.T) {
	setup(t)
	user := createTestUser(t, "bob", 10)

	mustUpload(t, user.ID, "a.txt", []byte("1234"), nil)
	mustUpload(t, user.ID, "b.txt", []byte("123456"), nil)
	assert.Equal(t, int64(10), usedBytes(t, user.ID))

	_, err := uploadBytes(context.Background(), user.ID, "c.txt", []byte("x"), nil)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int64(10), usedBytes(t, user.ID))

	files, err := ListFiles(context.Background(), user.ID, nil)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestConcurrentUploadsOnlyOneFits(t *testing.T) {
	setup(t)
	user := createTestUser(t, "carol", 100)
	content := bytes.Repeat([]byte("z"), 60)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = uploadBytes(context.Background(), user.ID, "big.bin", content, nil)
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrQuotaExceeded):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, int64(60), usedBytes(t, user.ID))
}

func TestUsedBytesMatchesFilesUnderConcurrency(t *testing.T) {
	setup(t)
	user := createTestUser(t, "dave", 150)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = uploadBytes(context.Background(), user.ID, "f.txt", []byte("0123456789"), nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(150), usedBytes(t, user.ID))
	assert.Equal(t, sumOfSizes(t, user.ID), usedBytes(t, user.ID))

	files, err := ListFiles(context.Background(), user.ID, nil)
	require.NoError(t, err)
	for _, f := range files[:5] {
		require.NoError(t, DeleteFile(context.Background(), user.ID, f.ID))
	}
	assert.Equal(t, int64(100), usedBytes(t, user.ID))
	assert.Equal(t, sumOfSizes(t, user.ID), usedBytes(t, user.ID))
}

type failingReader struct {
	sent int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.sent >= 5 {
		return 0, io.ErrUnexpectedEOF
	}
	n := copy(p, "abcde"[r.sent:])
	r.sent += n
	return n, nil
}

func TestFailedStreamReleasesQuotaAndDiscardsBytes(t *testing.T) {
	setup(t)
	user := createTestUser(t, "erin", 100)

	_, err := CreateFile(context.Background(), CreateFileInput{
		OwnerID: user.ID,
		Name:    "broken.bin",
		Size:    50,
		Content: &failingReader{},
	})
	require.Error(t, err)
	assert.Equal(t, int64(0), usedBytes(t, user.ID))

	entries, err := os.ReadDir(storage.Local.SandboxFor(user.ID).DataDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestShortBodyIsRejected(t *testing.T) {
	setup(t)
	user := createTestUser(t, "frank", 100)

	_, err := CreateFile(context.Background(), CreateFileInput{
		OwnerID: user.ID,
		Name:    "short.txt",
		Size:    10,
		Content: strings.NewReader("abc"),
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, int64(0), usedBytes(t, user.ID))
}

func TestCanceledUploadReleasesQuota(t *testing.T) {
	setup(t)
	user := createTestUser(t, "gina", 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := uploadBytes(ctx, user.ID, "late.txt", []byte("hello"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), usedBytes(t, user.ID))

	matches, _ := filepath.Glob(filepath.Join(storage.Local.SandboxFor(user.ID).DataDir, "*"))
	assert.Empty(t, matches)
}

func TestRecomputeUsage(t *testing.T) {
	setup(t)
	user := createTestUser(t, "hank", 100)
	mustUpload(t, user.ID, "a", []byte("12345"), nil)
	require.NoError(t, ReserveQuota(context.Background(), user.ID, 20))

	total, err := RecomputeUsage(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, int64(5), usedBytes(t, user.ID))
}
