package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"servicedesk/internal/attachments"
	"servicedesk/internal/models"
	"servicedesk/internal/preview"
	"servicedesk/internal/store"

	"github.com/gorilla/mux"
)

const (
	maxUploadBytes  = 50<<20 + 1<<20
	multipartMemory = 8 << 20
	maxPreviewBytes = 50 << 20
	sniffLength     = 512
)

type uploadResponse struct {
	Attachment models.Attachment `json:"attachment"`
}

type attachmentFile struct {
	name     string
	mimeType string
	file     *os.File
	modTime  time.Time
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	access, ok := h.loadClaimAccess(w, r, session)
	if !ok {
		return
	}
	if !store.CanVerify(session, access) {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access denied")
		return
	}
	if h.files == nil {
		writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "file storage not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	kind := strings.ToLower(strings.TrimSpace(r.FormValue("type")))
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	mimeType, err := sniffUploadType(file)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := attachments.Validate(kind, mimeType, header.Size); err != nil {
		h.respondError(w, r, err)
		return
	}
	// Generic declared types carry no claim about the content.
	if declared := attachments.NormalizeMimeType(header.Header.Get("Content-Type")); declared != "" && declared != "application/octet-stream" {
		if err := attachments.Validate(kind, declared, header.Size); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	policy, _ := attachments.PolicyFor(kind)

	stored, err := h.files.Save(access.ClaimID, header.Filename, file, policy.MaxSize)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	attachment, err := h.store.AddAttachment(r.Context(), store.AttachmentInput{
		ClaimID:      access.ClaimID,
		Kind:         kind,
		Filename:     stored.Filename,
		OriginalName: header.Filename,
		MimeType:     attachments.NormalizeMimeType(mimeType),
		Size:         stored.Size,
		Path:         stored.Path,
		UploadedByID: session.UserID,
		CreatedAt:    h.now().UTC(),
	})
	if err != nil {
		if removeErr := h.files.Remove(stored.Path); removeErr != nil {
			log.Printf("remove orphaned upload path=%s: %v", stored.Path, removeErr)
		}
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{Attachment: attachment})
}

// sniffUploadType detects the content type from the first bytes and rewinds.
func sniffUploadType(file io.ReadSeeker) (string, error) {
	head := make([]byte, sniffLength)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	return attachments.NormalizeMimeType(http.DetectContentType(head[:n])), nil
}

func (h *Handler) loadAttachment(w http.ResponseWriter, r *http.Request) (attachmentFile, bool) {
	session, ok := requireSession(w, r)
	if !ok {
		return attachmentFile{}, false
	}
	access, ok := h.loadClaimAccess(w, r, session)
	if !ok {
		return attachmentFile{}, false
	}
	attachmentID := strings.TrimSpace(mux.Vars(r)["attachmentId"])
	if !isValidUUID(attachmentID) {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "attachment not found")
		return attachmentFile{}, false
	}
	attachment, _, err := h.store.GetAttachment(r.Context(), access.ClaimID, attachmentID)
	if err != nil {
		h.respondError(w, r, err)
		return attachmentFile{}, false
	}
	if h.files == nil {
		writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "file storage not configured")
		return attachmentFile{}, false
	}
	file, err := h.files.Open(attachment.Path)
	if err != nil {
		log.Printf("open attachment id=%s path=%s: %v", attachment.AttachmentID, attachment.Path, err)
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "attachment file missing")
		return attachmentFile{}, false
	}
	return attachmentFile{name: attachment.OriginalName, mimeType: attachment.MimeType, file: file, modTime: attachment.CreatedAt}, true
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	att, ok := h.loadAttachment(w, r)
	if !ok {
		return
	}
	defer att.file.Close()
	if att.mimeType != "" {
		w.Header().Set("Content-Type", att.mimeType)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.name}))
	http.ServeContent(w, r, att.name, att.modTime, att.file)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	att, ok := h.loadAttachment(w, r)
	if !ok {
		return
	}
	defer att.file.Close()

	kind := preview.DetectType(att.mimeType, att.name)
	if !preview.Supported(kind) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "file type not previewable")
		return
	}
	data, err := io.ReadAll(io.LimitReader(att.file, maxPreviewBytes))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := preview.Render(kind, att.name, data)
	if err != nil {
		if errors.Is(err, preview.ErrUnsupported) {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "file type not previewable")
			return
		}
		log.Printf("preview conversion failed name=%s: %v", att.name, err)
		writeError(w, requestIDFromRequest(r), http.StatusUnprocessableEntity, "unable to convert file for preview")
		return
	}
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": att.name}))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}
