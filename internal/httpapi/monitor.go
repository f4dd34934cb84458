package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"servicedesk/internal/ingest"
	"servicedesk/internal/store"

	"github.com/gorilla/mux"
)

type ingestResponse struct {
	BatchID      string `json:"batch_id"`
	AlarmCount   int    `json:"alarm_count"`
	Opened       int    `json:"opened"`
	Cleared      int    `json:"cleared"`
	ActiveAlarms int    `json:"active_alarms"`
}

func monitorFilterFromRequest(r *http.Request) store.MonitorFilter {
	query := r.URL.Query()
	filter := store.MonitorFilter{
		Search:    strings.TrimSpace(query.Get("search")),
		Status:    store.NormalizeDeviceStatus(query.Get("status")),
		AlarmType: strings.TrimSpace(query.Get("alarmType")),
	}
	filter.Page, filter.Limit = store.NormalizePage(queryInt(r, "page"), queryInt(r, "limit"), store.DefaultMonitorLimit, store.MaxMonitorLimit)
	return filter
}

// monitorCacheQuery is the canonical form of a monitor list request.
func monitorCacheQuery(filter store.MonitorFilter) string {
	values := url.Values{}
	values.Set("search", strings.ToLower(filter.Search))
	values.Set("status", filter.Status)
	values.Set("alarmType", strings.ToUpper(filter.AlarmType))
	values.Set("page", strconv.Itoa(filter.Page))
	values.Set("limit", strconv.Itoa(filter.Limit))
	return values.Encode()
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireSession(w, r); !ok {
		return
	}
	filter := monitorFilterFromRequest(r)

	var cacheKey string
	if h.cache != nil {
		key, body, ok := h.cache.Get(r.Context(), monitorCacheQuery(filter))
		if ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
		cacheKey = key
	}

	page, err := h.store.ListDevices(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	body, err := json.Marshal(successResponse{Success: true, Data: page})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	body = append(body, '\n')
	if h.cache != nil {
		h.cache.Put(r.Context(), cacheKey, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireSession(w, r); !ok {
		return
	}
	deviceID := strings.TrimSpace(mux.Vars(r)["deviceId"])
	if deviceID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "device id is required")
		return
	}
	history, err := h.store.GetDeviceHistory(r.Context(), deviceID, store.DeviceHistoryLimit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, history)
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorizeAPIKey(w, r, permissionMonitoringIngest); !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "unable to read body")
		return
	}
	snapshot, err := ingest.ParseSnapshot(raw, ingest.SourceAPI)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var result store.IngestResult
	if h.ingestor != nil {
		result, err = h.ingestor.Apply(r.Context(), snapshot)
	} else {
		result, err = h.store.IngestSnapshot(r.Context(), snapshot)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, ingestResponse{
		BatchID:      result.Batch.ID,
		AlarmCount:   result.Batch.AlarmCount,
		Opened:       result.Opened,
		Cleared:      result.Cleared,
		ActiveAlarms: result.ActiveAlarms,
	})
}
