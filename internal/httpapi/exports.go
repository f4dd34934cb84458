package httpapi

import (
	"bytes"
	"mime"
	"net/http"
	"strings"
	"time"

	"servicedesk/internal/export"
	"servicedesk/internal/models"
	"servicedesk/internal/store"
)

const (
	reportDateLayout  = "2006-01-02"
	defaultReportDays = 30
)

type transactionClaimsReport struct {
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Total     int            `json:"total"`
	Claims    []models.Claim `json:"claims"`
}

func (h *Handler) handlePCExport(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !store.CanExportPCAssets(session) {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access denied")
		return
	}
	query := r.URL.Query()
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	if format == "" {
		format = export.FormatXLSX
	}
	if format != export.FormatCSV && format != export.FormatXLSX {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "format must be csv or xlsx")
		return
	}

	assets, err := h.store.ListPCAssets(r.Context(), store.PCAssetFilter{
		BranchID:   strings.TrimSpace(query.Get("branchId")),
		BranchCode: strings.TrimSpace(query.Get("branchCode")),
		Status:     strings.ToUpper(strings.TrimSpace(query.Get("status"))),
		FormFactor: strings.ToUpper(strings.TrimSpace(query.Get("formFactor"))),
		Search:     strings.TrimSpace(query.Get("search")),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	now := h.now()
	var buf bytes.Buffer
	if format == export.FormatCSV {
		err = export.WriteCSV(&buf, export.PCInventory(assets))
	} else {
		err = export.WriteXLSX(&buf, export.PCInventory(assets), export.PCSummary(assets, now))
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeFile(w, export.Filename(export.PCInventoryPrefix, now, format), export.ContentType(format), buf.Bytes())
}

// reportRange resolves whole-day bounds; the end date is inclusive.
func reportRange(startParam, endParam string, now time.Time) (time.Time, time.Time, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := today.AddDate(0, 0, -defaultReportDays)
	end := today
	if value := strings.TrimSpace(startParam); value != "" {
		parsed, err := time.ParseInLocation(reportDateLayout, value, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		start = parsed
	}
	if value := strings.TrimSpace(endParam); value != "" {
		parsed, err := time.ParseInLocation(reportDateLayout, value, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		end = parsed
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (h *Handler) handleTransactionClaimsReport(w http.ResponseWriter, r *http.Request) {
	session, ok := requireSession(w, r)
	if !ok {
		return
	}
	if !store.CanViewClaimReports(session, h.rules) {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access denied")
		return
	}
	query := r.URL.Query()
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	if format == "" {
		format = export.FormatJSON
	}
	if format != export.FormatJSON && format != export.FormatCSV && format != export.FormatXLSX {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "format must be json, csv or xlsx")
		return
	}
	now := h.now()
	start, end, ok := reportRange(query.Get("startDate"), query.Get("endDate"), now)
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "startDate and endDate must be YYYY-MM-DD with startDate <= endDate")
		return
	}

	claims, err := h.store.ListTransactionClaims(r.Context(), store.TransactionClaimFilter{
		From: start,
		To:   end.AddDate(0, 0, 1),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if format == export.FormatJSON {
		writeJSON(w, http.StatusOK, transactionClaimsReport{
			StartDate: start.Format(reportDateLayout),
			EndDate:   end.Format(reportDateLayout),
			Total:     len(claims),
			Claims:    claims,
		})
		return
	}

	var buf bytes.Buffer
	if format == export.FormatCSV {
		err = export.WriteCSV(&buf, export.TransactionClaims(claims))
	} else {
		err = export.WriteXLSX(&buf, export.TransactionClaims(claims))
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeFile(w, export.Filename(export.TransactionClaimsPrefix, now, format), export.ContentType(format), buf.Bytes())
}

func writeFile(w http.ResponseWriter, filename, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
