package notes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/note-forge/internal/storage"
)

type stubNoteService struct {
	note    *Note
	notes   []Note
	hasNext bool
	nextNum int
	err     error
}

func (s *stubNoteService) CreateNote(ctx context.Context, title, description string) (*Note, error) {
	return s.note, s.err
}

func (s *stubNoteService) ListNotes(ctx context.Context, page, perPage int) ([]Note, bool, int, error) {
	return s.notes, s.hasNext, s.nextNum, s.err
}

func (s *stubNoteService) NoteByID(ctx context.Context, id int64) (*Note, error) {
	return s.note, s.err
}

type stubEntryService struct {
	entry   *Entry
	entries []Entry
	hasNext bool
	nextNum int
	err     error
}

func (s *stubEntryService) CreateEntry(ctx context.Context, noteID int64, content string) (*Entry, error) {
	return s.entry, s.err
}

func (s *stubEntryService) UpdateEntry(ctx context.Context, noteID, entryID int64, content string) (*Entry, error) {
	return s.entry, s.err
}

func (s *stubEntryService) DeleteEntry(ctx context.Context, noteID, entryID int64) (*Entry, error) {
	return s.entry, s.err
}

func (s *stubEntryService) ListEntries(ctx context.Context, noteID int64, page, perPage int) ([]Entry, bool, int, error) {
	return s.entries, s.hasNext, s.nextNum, s.err
}

type stubScheduler struct {
	jobID  string
	noteID int64
	err    error
}

func (s *stubScheduler) EnqueueExport(ctx context.Context, noteID int64) (string, error) {
	s.noteID = noteID
	return s.jobID, s.err
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v body=%s", err, rec.Body.String())
	}
	return payload
}

func TestCreateNoteHandlerInvalidJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/notes", CreateNoteHandler(&stubNoteService{}))

	req := httptest.NewRequest(http.MethodPost, "/api/notes", bytes.NewBufferString("not-json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["code"] != CodeInvalidInput {
		t.Fatalf("unexpected code: %v", payload["code"])
	}
}

func TestCreateNoteHandlerServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &stubNoteService{err: newError(CodeInvalidInput, "ノートにはタイトルが必要です。", nil)}
	router := gin.New()
	router.POST("/api/notes", CreateNoteHandler(svc))

	req := httptest.NewRequest(http.MethodPost, "/api/notes", bytes.NewBufferString(`{"title":"","description":""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestListNotesHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &stubNoteService{
		notes:   []Note{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}},
		hasNext: true,
		nextNum: 2,
	}
	router := gin.New()
	router.GET("/api/notes", ListNotesHandler(svc, HandlerOptions{NotesPerPage: 2}))

	req := httptest.NewRequest(http.MethodGet, "/api/notes?npage=1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["has_next"] != true {
		t.Fatalf("unexpected has_next: %v", payload["has_next"])
	}
	if payload["next_num"] != float64(2) {
		t.Fatalf("unexpected next_num: %v", payload["next_num"])
	}
	if notes, ok := payload["notes"].([]any); !ok || len(notes) != 2 {
		t.Fatalf("unexpected notes: %v", payload["notes"])
	}
}

func TestListNotesHandlerEmptyPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/notes", ListNotesHandler(&stubNoteService{}, HandlerOptions{NotesPerPage: 2}))

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if notes, ok := payload["notes"].([]any); !ok || len(notes) != 0 {
		t.Fatalf("expected empty array, got: %v", payload["notes"])
	}
}

func TestExportHandlerAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	noteSvc := &stubNoteService{note: &Note{ID: 5, Title: "t"}}
	scheduler := &stubScheduler{jobID: "job-abc"}
	router := gin.New()
	router.POST("/api/notes/:noteID/export/pdf", ExportHandler(noteSvc, scheduler))

	req := httptest.NewRequest(http.MethodPost, "/api/notes/5/export/pdf", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["report_status"] != "started" {
		t.Fatalf("unexpected report_status: %v", payload["report_status"])
	}
	if payload["task_id"] != "job-abc" {
		t.Fatalf("unexpected task_id: %v", payload["task_id"])
	}
	if scheduler.noteID != 5 {
		t.Fatalf("unexpected note id passed to scheduler: %d", scheduler.noteID)
	}
}

func TestExportHandlerNoteMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/notes/:noteID/export/pdf", ExportHandler(&stubNoteService{}, &stubScheduler{}))

	req := httptest.NewRequest(http.MethodPost, "/api/notes/42/export/pdf", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["code"] != CodeNotFound {
		t.Fatalf("unexpected code: %v", payload["code"])
	}
}

func TestExportHandlerInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/notes/:noteID/export/pdf", ExportHandler(&stubNoteService{}, &stubScheduler{}))

	req := httptest.NewRequest(http.MethodPost, "/api/notes/abc/export/pdf", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestArtifactHandlerServesAttachment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	media, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	pdfData := []byte("%PDF-1.4\n% artifact\n")
	if err := media.Save(context.Background(), "notes/pdf/doc.pdf", pdfData); err != nil {
		t.Fatalf("failed to save artifact: %v", err)
	}

	router := gin.New()
	router.GET("/media/notes/pdf/:filename", ArtifactHandler(media))

	req := httptest.NewRequest(http.MethodGet, "/media/notes/pdf/doc.pdf", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content-type: %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd == "" {
		t.Fatal("expected Content-Disposition header")
	}
	if !bytes.Equal(rec.Body.Bytes(), pdfData) {
		t.Fatalf("unexpected response body: %q", rec.Body.Bytes())
	}
}

func TestArtifactHandlerNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	media, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	router := gin.New()
	router.GET("/media/notes/pdf/:filename", ArtifactHandler(media))

	req := httptest.NewRequest(http.MethodGet, "/media/notes/pdf/missing.pdf", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
