package handlers

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"friendline/blob"
	"friendline/utils"
)

func (h *Handler) UploadFile(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequest(c, "no file uploaded")
		return
	}
	defer file.Close()

	url, err := h.blobs.Put(c.Request.Context(), file, safeExt(header.Filename))
	if err != nil {
		utils.Fail(c, blob.AsClientError(err))
		return
	}

	utils.Created(c, gin.H{
		"url":      url,
		"name":     header.Filename,
		"size":     header.Size,
		"mimeType": header.Header.Get("Content-Type"),
	})
}

func (h *Handler) ServeFile(c *gin.Context) {
	path, err := h.blobs.Path(c.Param("filename"))
	if err != nil {
		utils.Fail(c, blob.AsClientError(err))
		return
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		utils.NotFoundResponse(c, "file not found")
		return
	}
	if err != nil {
		utils.Fail(c, utils.Internal("failed to stat file", err))
		return
	}

	c.File(path)
}

// safeExt keeps a short alphanumeric extension and drops anything else.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
