package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"bitbucket.org/mmdatafocus/shiftcheck_backend/config"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/models"
	"bitbucket.org/mmdatafocus/shiftcheck_backend/utils"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// uploadPhotoHandler ingests a step photo: the original goes to the bucket,
// a thumbnail is derived next to it, and an attachment row ties both to the
// run and step.
func uploadPhotoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runId := c.PostForm("run_id")
		stepCode := c.PostForm("step_code")
		kind := c.PostForm("kind")
		if runId == "" || stepCode == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "run_id and step_code are required"})
			return
		}

		fileHeader, err := c.FormFile("photo")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read photo"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadSizeBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read photo"})
			return
		}
		if int64(len(data)) > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		mimeType := http.DetectContentType(data)
		if !imageMimeTypes[mimeType] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
			return
		}

		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if ext == "" {
			ext = ".jpg"
		}
		objectKey := path.Join("runs", runId, stepCode, uuid.NewString()+ext)

		ctx := c.Request.Context()
		if err := utils.UploadBytesToGCS(ctx, objectKey, data, mimeType); err != nil {
			config.LogError(config.GetLogger(), "uploads.go", "uploadPhotoHandler", "UploadBytesToGCS", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo"})
			return
		}

		thumbnailKey, err := makeThumbnail(ctx, objectKey, data)
		if err != nil {
			// A missing thumbnail is cosmetic; keep the upload.
			config.LogError(config.GetLogger(), "uploads.go", "uploadPhotoHandler", "makeThumbnail", objectKey, err)
			thumbnailKey = ""
		}

		record := models.NewAttachmentRecord(runId, stepCode, objectKey, thumbnailKey, kind)
		if err := app.attachments.Add(ctx, record); err != nil {
			config.LogError(config.GetLogger(), "uploads.go", "uploadPhotoHandler", "attachments.Add", objectKey, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record attachment"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"object_key":    objectKey,
			"thumbnail_key": thumbnailKey,
		})
	}
}

// makeThumbnail derives a 200px-wide JPEG next to the original.
func makeThumbnail(ctx context.Context, objectKey string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return "", err
	}

	thumbnailKey := thumbnailObjectKey(objectKey)
	if err := utils.UploadBytesToGCS(ctx, thumbnailKey, buf.Bytes(), "image/jpeg"); err != nil {
		return "", err
	}
	return thumbnailKey, nil
}

func thumbnailObjectKey(objectKey string) string {
	dir := path.Dir(objectKey)
	filename := path.Base(objectKey)
	return path.Join(dir, "thumbnails", filename)
}
