package handler

import (
	"net/http"
	"time"

	"github.com/doselog/internal/schedule"
	"github.com/doselog/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const lastMonthSessionKey = "last_calendar_month"

type calendarDay struct {
	Date     string  `json:"date"`
	Status   string  `json:"status"`
	DoseMg   float64 `json:"dose_mg"`
	Color    string  `json:"color,omitempty"`
	Protocol string  `json:"protocol,omitempty"`
	RecordID string  `json:"record_id,omitempty"`
}

type calendarSummary struct {
	Completed int `json:"completed"`
	Missed    int `json:"missed"`
	Pending   int `json:"pending"`
	Upcoming  int `json:"upcoming"`
}

// GetCalendarMonth 返回指定月份的排期对账视图
func (a *API) GetCalendarMonth(c *gin.Context) {
	year, month, err := parseMonthQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的年份或月份")
		return
	}

	views, err := a.schedule.MonthView(year, month, time.Now())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "生成日历失败")
		return
	}

	days := make([]calendarDay, 0, len(views))
	var summary calendarSummary
	for _, v := range views {
		days = append(days, calendarDay{
			Date:     v.Date.Format(dateFormat),
			Status:   string(v.Status),
			DoseMg:   v.DoseMg,
			Color:    v.Color,
			Protocol: v.Protocol,
			RecordID: v.RecordID,
		})

		switch v.Status {
		case schedule.StatusCompleted:
			summary.Completed++
		case schedule.StatusMissed:
			summary.Missed++
		case schedule.StatusPendingLog:
			summary.Pending++
		case schedule.StatusUpcoming:
			summary.Upcoming++
		}
	}

	// 记住最近浏览的月份，日历页刷新时回到原位
	session := sessions.Default(c)
	session.Set(lastMonthSessionKey, time.Date(year, month, 1, 0, 0, 0, 0, time.Local).Format(dateFormat))
	_ = session.Save()

	c.JSON(http.StatusOK, gin.H{
		"year":    year,
		"month":   int(month),
		"days":    days,
		"summary": summary,
	})
}

// GetNextInjections 返回从指定日期起的未来排期（默认今天起 10 针）
func (a *API) GetNextInjections(c *gin.Context) {
	start, err := parseDateQuery(c, "start", time.Now())
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的起始日期")
		return
	}

	settings, err := a.settings.GetOrCreate()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "加载设置失败")
		return
	}

	periods := service.Periods(settings)
	idx := schedule.ActiveProtocolIndex(start, periods)
	if idx < 0 {
		respondError(c, http.StatusUnprocessableEntity, "尚无可用方案")
		return
	}

	dates := schedule.NextInjectionDates(start, periods[idx].Protocol, 10)
	payload := make([]string, 0, len(dates))
	for _, d := range dates {
		payload = append(payload, d.Format(dateFormat))
	}

	c.JSON(http.StatusOK, gin.H{
		"protocol": string(periods[idx].Protocol),
		"dates":    payload,
	})
}
