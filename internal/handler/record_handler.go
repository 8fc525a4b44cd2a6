package handler

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/doselog/internal/db"
	"github.com/doselog/internal/schedule"
	"github.com/doselog/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
	sanitizer = bluemonday.UGCPolicy()
)

type recordPayload struct {
	RecordID string  `json:"record_id"`
	Date     string  `json:"date"`
	DoseMg   float64 `json:"dose_mg"`
	Missed   bool    `json:"missed"`
	Notes    string  `json:"notes"`
}

type resolvePayload struct {
	Option string `json:"option"`
}

// ListRecords 返回日期区间内的注射记录
func (a *API) ListRecords(c *gin.Context) {
	now := time.Now()
	start, err := parseDateQuery(c, "start", now.AddDate(0, -1, 0))
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的起始日期")
		return
	}
	end, err := parseDateQuery(c, "end", now)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的结束日期")
		return
	}

	records, err := a.records.ListBetween(start, end)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取注射记录失败")
		return
	}

	items := make([]gin.H, 0, len(records))
	for _, r := range records {
		items = append(items, recordToPayload(r))
	}
	c.JSON(http.StatusOK, gin.H{"records": items})
}

// CreateRecord 记录一次注射（新建或按 id 更新）
func (a *API) CreateRecord(c *gin.Context) {
	var payload recordPayload
	if !bindJSON(c, &payload, "无效的注射记录") {
		return
	}

	date, err := time.ParseInLocation(dateFormat, strings.TrimSpace(payload.Date), time.Local)
	if err != nil {
		respondError(c, http.StatusBadRequest, "日期格式应为 YYYY-MM-DD")
		return
	}

	record, err := a.records.Upsert(service.RecordInput{
		RecordID: payload.RecordID,
		Date:     date,
		DoseMg:   payload.DoseMg,
		Missed:   payload.Missed,
		Notes:    payload.Notes,
	})
	if err != nil {
		handleRecordError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"record": recordToPayload(*record)})
}

// GetRecord 返回单条注射记录
func (a *API) GetRecord(c *gin.Context) {
	record, err := a.records.Get(c.Param("id"))
	if err != nil {
		handleRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": recordToPayload(*record)})
}

// DeleteRecord 删除注射记录
func (a *API) DeleteRecord(c *gin.Context) {
	if err := a.records.Delete(c.Param("id")); err != nil {
		handleRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ResolveMissedDose 应用漏针处理选项（skip/shift_schedule/maintain_schedule）
func (a *API) ResolveMissedDose(c *gin.Context) {
	var payload resolvePayload
	if !bindJSON(c, &payload, "无效的处理选项") {
		return
	}

	option, ok := schedule.ParseResolution(payload.Option)
	if !ok {
		respondError(c, http.StatusBadRequest, "未知的漏针处理选项")
		return
	}

	record, err := a.records.ResolveMissed(c.Param("id"), option)
	if err != nil {
		handleRecordError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record":           recordToPayload(*record),
		"schedule_shifted": option == schedule.ResolutionShiftSchedule,
	})
}

// GetRecordNotes 把记录备注渲染为净化后的 HTML
func (a *API) GetRecordNotes(c *gin.Context) {
	record, err := a.records.Get(c.Param("id"))
	if err != nil {
		handleRecordError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(record.Notes), &buf); err != nil {
		respondError(c, http.StatusInternalServerError, "渲染备注失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record_id": record.RecordID,
		"html":      sanitizer.Sanitize(buf.String()),
	})
}

func handleRecordError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRecordNotFound):
		respondError(c, http.StatusNotFound, "注射记录不存在")
	case errors.Is(err, service.ErrDayAlreadyLogged):
		respondError(c, http.StatusConflict, "该日期已有记录，请编辑原记录")
	default:
		respondError(c, http.StatusInternalServerError, "处理注射记录失败")
	}
}

func recordToPayload(r db.InjectionRecord) gin.H {
	return gin.H{
		"record_id":   r.RecordID,
		"date":        r.Date.Format(dateFormat),
		"dose_mg":     r.DoseMg,
		"missed":      r.Missed,
		"rescheduled": r.Rescheduled,
		"notes":       r.Notes,
	}
}
