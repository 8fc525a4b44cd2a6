package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/doselog/internal/db"
	"github.com/doselog/internal/service"
	"github.com/gin-gonic/gin"
)

func TestGetDoseSummaryFormatsValues(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	if _, err := api.settings.GetOrCreate(); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	// 700mg 周剂量 / e2d = 单针 200mg、1mL、100 units
	if _, err := api.settings.UpdateCurrent(service.ProtocolInput{
		Protocol:             "e2d",
		WeeklyDoseMg:         700,
		ConcentrationMgPerMl: 200,
		SyringeVolumeMl:      1,
		SyringeTotalUnits:    100,
		StartDate:            time.Now(),
	}); err != nil {
		t.Fatalf("UpdateCurrent returned error: %v", err)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/summary", nil)

	api.GetDoseSummary(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Display struct {
			Dose   string `json:"dose"`
			Volume string `json:"volume"`
			Units  string `json:"units"`
		} `json:"display"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Display.Dose != "200.0 mg" || resp.Display.Volume != "1.000 mL" || resp.Display.Units != "100 units" {
		t.Fatalf("unexpected display values: %+v", resp.Display)
	}
}

func TestGetDoseSummaryInvalidConfiguration(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	if _, err := api.settings.GetOrCreate(); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}
	// 模拟坏配置直接落库
	if err := db.DB.Model(&db.ProtocolSettings{}).
		Where("1 = 1").
		Update("concentration_mg_per_ml", 0).Error; err != nil {
		t.Fatalf("failed to corrupt configuration: %v", err)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/summary", nil)

	api.GetDoseSummary(c)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", w.Code)
	}
}

func TestChangeProtocolHandlerAppendsHistory(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	if _, err := api.settings.GetOrCreate(); err != nil {
		t.Fatalf("GetOrCreate returned error: %v", err)
	}

	payload := map[string]interface{}{
		"protocol":                "weekly",
		"weekly_dose_mg":          120,
		"concentration_mg_per_ml": 250,
		"syringe":                 map[string]interface{}{"volume_ml": 1, "total_units": 100},
		"start_date":              time.Now().AddDate(0, 0, 14).Format("2006-01-02"),
	}
	body, _ := json.Marshal(payload)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/settings/protocol", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	api.ChangeProtocol(c)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Protocols []json.RawMessage `json:"protocols"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Protocols) != 2 {
		t.Fatalf("expected protocol history of 2, got %d", len(resp.Protocols))
	}
}

func TestUpdatePreferencesHandlerValidation(t *testing.T) {
	api, cleanup := setupTestDB(t)
	defer cleanup()

	body, _ := json.Marshal(map[string]interface{}{
		"reminder_time":           "26:00",
		"enable_notifications":    true,
		"notification_permission": "granted",
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPut, "/api/settings/preferences", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	api.UpdatePreferences(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad reminder time, got %d", w.Code)
	}
}
