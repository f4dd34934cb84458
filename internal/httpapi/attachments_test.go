package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"servicedesk/internal/attachments"
	"servicedesk/internal/models"
	"servicedesk/internal/preview"
	"servicedesk/internal/store"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func uploadRequest(t *testing.T, kind, filename string, content []byte) *http.Request {
	t.Helper()
	return uploadRequestAs(t, kind, filename, "", content)
}

// uploadRequestAs declares contentType for the file part; empty uses
// application/octet-stream.
func uploadRequestAs(t *testing.T, kind, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if kind != "" {
		if err := writer.WriteField("type", kind); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	var part io.Writer
	var err error
	if contentType == "" {
		part, err = writer.CreateFormFile("file", filename)
	} else {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
		header.Set("Content-Type", contentType)
		part, err = writer.CreatePart(header)
	}
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := authed(http.MethodPost, "/api/branch/atm-claims/"+testClaimID+"/upload", body.Bytes())
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadStoresFileAndRecordsAttachment(t *testing.T) {
	storage := attachments.NewStorage(t.TempDir())
	var got store.AttachmentInput
	st := withSession(accessStore(fakeStore{
		addAttachmentFn: func(ctx context.Context, input store.AttachmentInput) (models.Attachment, error) {
			got = input
			return models.Attachment{
				AttachmentID: testAttachmentID,
				ClaimID:      input.ClaimID,
				Kind:         input.Kind,
				Filename:     input.Filename,
				OriginalName: input.OriginalName,
				MimeType:     input.MimeType,
				Size:         input.Size,
				Path:         input.Path,
			}, nil
		},
	}), adminSession())

	resp := serve(st, Options{Files: storage}, uploadRequest(t, "journal", "journal.png", pngHeader))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if got.Kind != attachments.KindJournal || got.MimeType != "image/png" || got.OriginalName != "journal.png" {
		t.Fatalf("unexpected attachment input: %+v", got)
	}
	if got.Size != int64(len(pngHeader)) || !strings.HasPrefix(got.Path, "claims/"+testClaimID+"/") {
		t.Fatalf("unexpected stored file: %+v", got)
	}

	file, err := storage.Open(got.Path)
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	file.Close()

	var body uploadResponse
	decodeBody(t, resp, &body)
	if body.Attachment.AttachmentID != testAttachmentID {
		t.Fatalf("unexpected response: %+v", body)
	}
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	storage := attachments.NewStorage(t.TempDir())
	st := withSession(accessStore(fakeStore{
		addAttachmentFn: func(ctx context.Context, input store.AttachmentInput) (models.Attachment, error) {
			t.Fatal("store should not be called")
			return models.Attachment{}, nil
		},
	}), adminSession())

	resp := serve(st, Options{Files: storage}, uploadRequest(t, "journal", "notes.txt", []byte("plain text journal")))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	resp = serve(st, Options{Files: storage}, uploadRequest(t, "", "journal.png", pngHeader))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 without type, got %d", resp.Code)
	}
}

func TestUploadRemovesFileWhenRecordFails(t *testing.T) {
	storage := attachments.NewStorage(t.TempDir())
	var storedPath string
	st := withSession(accessStore(fakeStore{
		addAttachmentFn: func(ctx context.Context, input store.AttachmentInput) (models.Attachment, error) {
			storedPath = input.Path
			return models.Attachment{}, store.ErrClaimNotFound
		},
	}), adminSession())

	resp := serve(st, Options{Files: storage}, uploadRequest(t, "evidence", "cctv.png", pngHeader))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	if storedPath == "" {
		t.Fatal("expected file to be saved before recording")
	}
	if _, err := storage.Open(storedPath); err == nil {
		t.Fatal("expected orphaned upload to be removed")
	}
}

func TestUploadRequiresVerifier(t *testing.T) {
	storage := attachments.NewStorage(t.TempDir())
	st := withSession(accessStore(fakeStore{}), store.Session{UserID: "user-1", Role: store.RoleUser, BranchID: "branch-1"})
	resp := serve(st, Options{Files: storage}, uploadRequest(t, "journal", "journal.png", pngHeader))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestUploadWithoutStorage(t *testing.T) {
	st := withSession(accessStore(fakeStore{}), adminSession())
	resp := serve(st, Options{}, uploadRequest(t, "journal", "journal.png", pngHeader))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
}

func storedAttachment(t *testing.T, storage *attachments.Storage, name, mimeType string, content []byte) fakeStore {
	t.Helper()
	stored, err := storage.Save(testClaimID, name, bytes.NewReader(content), 10<<20)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return accessStore(fakeStore{
		getAttachmentFn: func(ctx context.Context, claimID, attachmentID string) (models.Attachment, store.TicketAccess, error) {
			if attachmentID != testAttachmentID {
				return models.Attachment{}, store.TicketAccess{}, store.ErrAttachmentNotFound
			}
			return models.Attachment{
				AttachmentID: attachmentID,
				ClaimID:      claimID,
				OriginalName: name,
				MimeType:     mimeType,
				Size:         stored.Size,
				Path:         stored.Path,
				CreatedAt:    time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC),
			}, branchAccess(), nil
		},
	})
}

func attachmentURL(action string) string {
	return "/api/tickets/" + testClaimID + "/attachments/" + testAttachmentID + "/" + action
}

func TestDownloadServesFile(t *testing.T) {
	storage := attachments.NewStorage(t.TempDir())
	st := withSession(storedAttachment(t, storage, "struk atm.png", "image/png", pngHeader), adminSession())

	resp := serve(st, Options{Files: storage}, authed(http.MethodGet, attachmentURL("download"), nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !bytes.Equal(resp.Body.Bytes(), pngHeader) {
		t.Fatalf("unexpected body %q", resp.Body.Bytes())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, "struk atm.png") {
		t.Fatalf("unexpected disposition %q", cd)
	}
}

func TestDownloadUnknownAttachment(t *testing.T) {
	storage := attachments.NewStorage(t.TempDir())
	st := withSession(storedAttachment(t, storage, "a.png", "image/png", pngHeader), adminSession())

	resp := serve(st, Options{Files: storage}, authed(http.MethodGet, "/api/tickets/"+testClaimID+"/attachments/cccccccc-cccc-cccc-cccc-cccccccccccc/download", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	resp = serve(st, Options{Files: storage}, authed(http.MethodGet, "/api/tickets/"+testClaimID+"/attachments/nope/download", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for malformed id, got %d", resp.Code)
	}
}

func TestDownloadDeniedOutsideBranch(t *testing.T) {
	storage := attachments.NewStorage(t.TempDir())
	st := withSession(storedAttachment(t, storage, "a.png", "image/png", pngHeader), store.Session{UserID: "user-9", Role: store.RoleUser, BranchID: "branch-9"})

	resp := serve(st, Options{Files: storage}, authed(http.MethodGet, attachmentURL("download"), nil))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestPreviewImageInline(t *testing.T) {
	storage := attachments.NewStorage(t.TempDir())
	st := withSession(storedAttachment(t, storage, "a.png", "image/png", pngHeader), adminSession())

	resp := serve(st, Options{Files: storage}, authed(http.MethodGet, attachmentURL("preview"), nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != preview.MimePNG {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := resp.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "inline;") {
		t.Fatalf("unexpected disposition %q", cd)
	}
}

func TestPreviewUnsupportedType(t *testing.T) {
	storage := attachments.NewStorage(t.TempDir())
	st := withSession(storedAttachment(t, storage, "clip.mp4", "video/mp4", []byte("not really a video")), adminSession())

	resp := serve(st, Options{Files: storage}, authed(http.MethodGet, attachmentURL("preview"), nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestPreviewConversionFailure(t *testing.T) {
	storage := attachments.NewStorage(t.TempDir())
	st := withSession(storedAttachment(t, storage, "laporan.docx", preview.MimeDOCX, []byte("not a zip archive")), adminSession())

	resp := serve(st, Options{Files: storage}, authed(http.MethodGet, attachmentURL("preview"), nil))
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", resp.Code)
	}
}

func TestUploadChecksSniffedAndDeclaredTypes(t *testing.T) {
	storage := attachments.NewStorage(t.TempDir())
	var got store.AttachmentInput
	st := withSession(accessStore(fakeStore{
		addAttachmentFn: func(ctx context.Context, input store.AttachmentInput) (models.Attachment, error) {
			got = input
			return models.Attachment{AttachmentID: testAttachmentID}, nil
		},
	}), adminSession())

	cases := []struct {
		name        string
		contentType string
		content     []byte
		want        int
	}{
		{"declared png holding text", "image/png", []byte("plain text pretending to be an image"), http.StatusBadRequest},
		{"declared text holding png", "text/plain", pngHeader, http.StatusBadRequest},
		{"declared jpg alias holding png", "image/jpg", pngHeader, http.StatusCreated},
	}
	for _, tc := range cases {
		got = store.AttachmentInput{}
		resp := serve(st, Options{Files: storage}, uploadRequestAs(t, "journal", "scan.png", tc.contentType, tc.content))
		if resp.Code != tc.want {
			t.Fatalf("%s: expected status %d, got %d: %s", tc.name, tc.want, resp.Code, resp.Body.String())
		}
	}
	if got.MimeType != "image/png" {
		t.Fatalf("expected sniffed type stored, got %q", got.MimeType)
	}
}

func TestSniffUploadTypeRewinds(t *testing.T) {
	reader := bytes.NewReader(pngHeader)
	mimeType, err := sniffUploadType(reader)
	if err != nil {
		t.Fatalf("sniff: %v", err)
	}
	if mimeType != "image/png" {
		t.Fatalf("expected image/png, got %q", mimeType)
	}
	if pos, _ := reader.Seek(0, io.SeekCurrent); pos != 0 {
		t.Fatalf("expected reader rewound, at %d", pos)
	}
}
