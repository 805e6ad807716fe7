package api

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/integritystudio/alephauto/internal/apperr"
	"github.com/integritystudio/alephauto/internal/clock"
)

// ReportsHandler serves the bounded reports directory. Path-traversal-safe
// static file serving is built directly on net/http and path/filepath
// (see DESIGN.md for why no dependency covers this narrow concern).
type ReportsHandler struct {
	dir string
	ids *clock.IDGenerator
}

// NewReportsHandler builds a ReportsHandler rooted at dir.
func NewReportsHandler(dir string, ids *clock.IDGenerator) *ReportsHandler {
	return &ReportsHandler{dir: dir, ids: ids}
}

type reportInfo struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	ModTime string `json:"modTime"`
}

// List handles GET /api/reports.
func (h *ReportsHandler) List(c *gin.Context) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"reports": []reportInfo{}})
			return
		}
		writeError(c, h.ids, apperr.Wrap(apperr.KindStorage, "read reports directory", err))
		return
	}

	reports := make([]reportInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		reports = append(reports, reportInfo{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// Get handles GET /api/reports/:filename.
func (h *ReportsHandler) Get(c *gin.Context) {
	path, err := h.resolve(c.Param("filename"))
	if err != nil {
		writeError(c, h.ids, err)
		return
	}
	c.File(path)
}

// Delete handles DELETE /api/reports/:filename.
func (h *ReportsHandler) Delete(c *gin.Context) {
	path, err := h.resolve(c.Param("filename"))
	if err != nil {
		writeError(c, h.ids, err)
		return
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			writeError(c, h.ids, apperr.New(apperr.KindNotFound, "report not found"))
			return
		}
		writeError(c, h.ids, apperr.Wrap(apperr.KindStorage, "delete report", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// resolve joins filename onto h.dir and rejects anything that would
// escape it, whether via "..", an absolute path, or a symlink.
func (h *ReportsHandler) resolve(filename string) (string, error) {
	if filename == "" || strings.ContainsRune(filename, 0) {
		return "", apperr.New(apperr.KindValidation, "filename is required")
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return "", apperr.New(apperr.KindValidation, "invalid filename")
	}

	root, err := filepath.Abs(h.dir)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "resolve reports dir", err)
	}
	candidate := filepath.Join(root, filepath.Clean("/"+filename))

	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.New(apperr.KindValidation, "invalid filename")
	}

	if _, err := os.Stat(candidate); err != nil {
		if os.IsNotExist(err) {
			return "", apperr.New(apperr.KindNotFound, "report not found")
		}
		return "", apperr.Wrap(apperr.KindStorage, "stat report", err)
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "resolve reports dir", err)
	}
	realPath, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "resolve report", err)
	}
	if rel, err := filepath.Rel(realRoot, realPath); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.New(apperr.KindValidation, "invalid filename")
	}
	return candidate, nil
}
