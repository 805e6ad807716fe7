package api

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/integritystudio/alephauto/internal/clock"
)

func newReportsHandler(t *testing.T, dir string) *ReportsHandler {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewReportsHandler(dir, clock.NewIDGenerator(fake))
}

func TestReportsHandler_ListEmptyDirectory(t *testing.T) {
	h := newReportsHandler(t, filepath.Join(t.TempDir(), "does-not-exist"))
	w := doRequest(h.List, http.MethodGet, "/api/reports", nil, gin.Params{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for a missing directory, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReportsHandler_ListReturnsFilesSorted(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newReportsHandler(t, dir)

	w := doRequest(h.List, http.MethodGet, "/api/reports", nil, gin.Params{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if idxA, idxB := indexOf(w.Body.String(), "a.txt"), indexOf(w.Body.String(), "b.txt"); idxA == -1 || idxB == -1 || idxA > idxB {
		t.Errorf("expected a.txt to sort before b.txt in %s", w.Body.String())
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestReportsHandler_GetRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	h := newReportsHandler(t, dir)

	w := doRequest(h.Get, http.MethodGet, "/api/reports/..%2F..%2Fetc%2Fpasswd", nil, gin.Params{{Key: "filename", Value: "../../etc/passwd"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a path-traversal attempt, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReportsHandler_GetMissingFile(t *testing.T) {
	dir := t.TempDir()
	h := newReportsHandler(t, dir)

	w := doRequest(h.Get, http.MethodGet, "/api/reports/missing.txt", nil, gin.Params{{Key: "filename", Value: "missing.txt"}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReportsHandler_GetServesExistingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "report.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newReportsHandler(t, dir)

	w := doRequest(h.Get, http.MethodGet, "/api/reports/report.txt", nil, gin.Params{{Key: "filename", Value: "report.txt"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "hello" {
		t.Errorf("expected file contents served, got %q", w.Body.String())
	}
}

func TestReportsHandler_DeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := newReportsHandler(t, dir)

	w := doRequest(h.Delete, http.MethodDelete, "/api/reports/report.txt", nil, gin.Params{{Key: "filename", Value: "report.txt"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected the file to be removed")
	}
}

func TestReportsHandler_DeleteMissingFile(t *testing.T) {
	h := newReportsHandler(t, t.TempDir())

	w := doRequest(h.Delete, http.MethodDelete, "/api/reports/missing.txt", nil, gin.Params{{Key: "filename", Value: "missing.txt"}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}
