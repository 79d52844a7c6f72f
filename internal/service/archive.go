package service

import (
	"Cabinet/internal/repo"
	"Cabinet/internal/storage"
	"Cabinet/model"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"gorm.io/gorm"
)

type ArchiveEntry struct {
	ZipPath string
	File    *model.UserFile
	IsDir   bool
}

func sanitizeArchiveName(name string) string { // 保证安全
	clean := strings.TrimSpace(name)
	clean = strings.ReplaceAll(clean, "\\", "/")
	clean = strings.ReplaceAll(clean, "/", "_")
	clean = strings.ReplaceAll(clean, "..", "_")
	if clean == "" || clean == "." {
		return "unnamed"
	}
	return clean
}

// BuildFolderArchive lists every folder and file below folderID, paths relative to it.
func BuildFolderArchive(ctx context.Context, ownerID, folderID uint64) (string, []ArchiveEntry, error) {
	db := repo.Db.WithContext(ctx)
	root, err := ownedFolder(db, ownerID, folderID)
	if err != nil {
		return "", nil, err
	}
	rootPath := sanitizeArchiveName(root.Name)
	entries := []ArchiveEntry{{ZipPath: rootPath + "/", IsDir: true}}
	if err := collectArchiveChildren(db, ownerID, root.ID, rootPath, 1, &entries); err != nil {
		return "", nil, err
	}
	return rootPath, entries, nil
}

func collectArchiveChildren(db *gorm.DB, ownerID, parentID uint64, prefix string, depth int, entries *[]ArchiveEntry) error {
	if depth > maxFolderDepth() {
		return ErrFolderTooDeep
	}
	var files []model.UserFile
	if err := db.Where("parent_id = ? AND owner_id = ?", parentID, ownerID).Order("id ASC").Find(&files).Error; err != nil {
		return err
	}
	for i := range files {
		*entries = append(*entries, ArchiveEntry{
			ZipPath: path.Join(prefix, sanitizeArchiveName(files[i].Name)),
			File:    &files[i],
		})
	}

	var folders []model.Folder
	if err := db.Where("parent_id = ? AND owner_id = ?", parentID, ownerID).Order("id ASC").Find(&folders).Error; err != nil {
		return err
	}
	for _, child := range folders {
		childPath := path.Join(prefix, sanitizeArchiveName(child.Name))
		*entries = append(*entries, ArchiveEntry{ZipPath: childPath + "/", IsDir: true})
		if err := collectArchiveChildren(db, ownerID, child.ID, childPath, depth+1, entries); err != nil {
			return err
		}
	}
	return nil
}

// WriteArchive streams entries as a zip to w. A file whose bytes vanished
// mid-way is skipped rather than aborting the whole archive.
func WriteArchive(ctx context.Context, w io.Writer, entries []ArchiveEntry) error {
	zw := zip.NewWriter(w)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return err
		}
		if entry.IsDir {
			if _, err := zw.Create(entry.ZipPath); err != nil {
				_ = zw.Close()
				return err
			}
			continue
		}
		src, err := openStored(entry.File)
		if err != nil {
			continue
		}
		dst, err := zw.CreateHeader(&zip.FileHeader{
			Name:     entry.ZipPath,
			Method:   zip.Deflate,
			Modified: entry.File.UpdatedAt,
		})
		if err == nil {
			_, err = io.Copy(dst, src)
		}
		_ = src.Close()
		if err != nil {
			_ = zw.Close()
			return fmt.Errorf("%w: archive %s: %v", storage.ErrIO, entry.ZipPath, err)
		}
	}
	return zw.Close()
}
