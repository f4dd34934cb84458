package postgres

import (
	"context"
	"errors"
	"time"

	"servicedesk/internal/models"
	"servicedesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) AddAttachment(ctx context.Context, input store.AttachmentInput) (attachment models.Attachment, err error) {
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Attachment{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = getClaimAccess(ctx, tx, input.ClaimID, false); err != nil {
		return models.Attachment{}, err
	}

	attachment = models.Attachment{
		AttachmentID: uuid.NewString(),
		ClaimID:      input.ClaimID,
		Kind:         input.Kind,
		Filename:     input.Filename,
		OriginalName: input.OriginalName,
		MimeType:     input.MimeType,
		Size:         input.Size,
		Path:         input.Path,
		UploadedByID: input.UploadedByID,
		CreatedAt:    createdAt,
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO ticket_attachments (
			attachment_id, ticket_id, kind, filename, original_name, mime_type, size, path, uploaded_by_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, attachment.AttachmentID, attachment.ClaimID, attachment.Kind, attachment.Filename, attachment.OriginalName,
		attachment.MimeType, attachment.Size, attachment.Path, attachment.UploadedByID, attachment.CreatedAt); err != nil {
		return models.Attachment{}, err
	}

	payload, err := jsonBytes(map[string]interface{}{
		"attachment_id": attachment.AttachmentID,
		"kind":          attachment.Kind,
		"filename":      attachment.OriginalName,
		"size":          attachment.Size,
	})
	if err != nil {
		return models.Attachment{}, err
	}
	if err = insertClaimEvent(ctx, tx, attachment.ClaimID, store.EventClaimAttachmentAdded, input.UploadedByID, payload); err != nil {
		return models.Attachment{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Attachment{}, err
	}
	return attachment, nil
}

func (s *Store) GetAttachment(ctx context.Context, claimID, attachmentID string) (models.Attachment, store.TicketAccess, error) {
	access, err := getClaimAccess(ctx, s.pool, claimID, false)
	if err != nil {
		return models.Attachment{}, store.TicketAccess{}, err
	}
	if _, err := uuid.Parse(attachmentID); err != nil {
		return models.Attachment{}, store.TicketAccess{}, store.ErrAttachmentNotFound
	}
	var attachment models.Attachment
	row := s.pool.QueryRow(ctx, `
		SELECT attachment_id, ticket_id, kind, filename, original_name, mime_type, size, path, uploaded_by_id, created_at
		FROM ticket_attachments
		WHERE ticket_id = $1 AND attachment_id = $2
	`, claimID, attachmentID)
	if err := row.Scan(&attachment.AttachmentID, &attachment.ClaimID, &attachment.Kind, &attachment.Filename,
		&attachment.OriginalName, &attachment.MimeType, &attachment.Size, &attachment.Path,
		&attachment.UploadedByID, &attachment.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Attachment{}, store.TicketAccess{}, store.ErrAttachmentNotFound
		}
		return models.Attachment{}, store.TicketAccess{}, err
	}
	return attachment, access, nil
}
