package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/doselog/internal/service"
)

func TestExportBackupDownload(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	if _, err := api.settings.GetOrCreate(); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	if _, err := api.records.Upsert(service.RecordInput{
		Date:   time.Date(2025, 1, 3, 0, 0, 0, 0, time.Local),
		DoseMg: 33,
	}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	r := newSessionEngine(api)

	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "attachment") {
		t.Fatal("expected attachment disposition header")
	}

	var doc service.Document
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode export: %v", err)
	}
	if doc.Settings == nil || len(doc.Records) != 1 {
		t.Fatalf("unexpected export document: settings=%v records=%d", doc.Settings, len(doc.Records))
	}
	if doc.Records[0].Date != "2025-01-03" {
		t.Fatalf("expected ISO date at rest, got %q", doc.Records[0].Date)
	}
}

func TestImportBackupLegacyShape(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	r := newSessionEngine(api)

	raw := `{
		"settings": {"protocol": "E2D", "startDate": "2024-01-01", "concentration": 200},
		"records": [{"id": "r-1", "date": "2024-02-01", "doseMg": 50}]
	}`

	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	settings, err := api.settings.Get()
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if len(settings.Protocols) != 1 || settings.Protocols[0].Protocol != "e2d" {
		t.Fatalf("expected migrated protocol history, got %+v", settings.Protocols)
	}

	record, err := api.records.Get("r-1")
	if err != nil {
		t.Fatalf("expected imported record, got error: %v", err)
	}
	if record.DoseMg != 50 {
		t.Fatalf("unexpected imported dose: %v", record.DoseMg)
	}
}

func TestImportBackupRejectsMalformed(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	r := newSessionEngine(api)

	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(`{"settings": {"protocols": []}}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCalendarEndpointClassification(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	if _, err := api.settings.GetOrCreate(); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.Local)
	if _, err := api.settings.UpdateCurrent(service.ProtocolInput{
		Protocol:             "e3d",
		WeeklyDoseMg:         210,
		ConcentrationMgPerMl: 200,
		SyringeVolumeMl:      1,
		SyringeTotalUnits:    100,
		StartDate:            start,
	}); err != nil {
		t.Fatalf("UpdateCurrent returned error: %v", err)
	}
	if _, err := api.records.Upsert(service.RecordInput{Date: start, DoseMg: 90}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	r := newSessionEngine(api)

	req := httptest.NewRequest(http.MethodGet, "/api/calendar?year=2025&month=4", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Days []struct {
			Date   string `json:"date"`
			Status string `json:"status"`
		} `json:"days"`
		Summary struct {
			Completed int `json:"completed"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(resp.Days) == 0 {
		t.Fatal("expected scheduled days in month view")
	}
	if resp.Days[0].Date != "2025-04-01" || resp.Days[0].Status != "completed" {
		t.Fatalf("unexpected first day: %+v", resp.Days[0])
	}
	if resp.Summary.Completed != 1 {
		t.Fatalf("expected one completed day, got %d", resp.Summary.Completed)
	}
}
