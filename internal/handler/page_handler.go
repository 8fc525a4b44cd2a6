package handler

import (
	"net/http"
	"time"

	"github.com/doselog/internal/dose"
	"github.com/doselog/internal/schedule"
	"github.com/doselog/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// ShowDashboard 渲染首页：剂量汇总与当天状态
func (a *API) ShowDashboard(c *gin.Context) {
	data := gin.H{"title": "DoseLog"}

	calc, current, err := a.schedule.DoseSummary()
	if err == nil {
		data["summary"] = gin.H{
			"protocol": current.Protocol,
			"dose":     dose.Format(calc.MgPerInjection, "mg"),
			"volume":   dose.Format(calc.VolumePerInjectionMl, "mL"),
			"units":    dose.Format(calc.UnitsPerInjection, "units"),
			"perWeek":  calc.InjectionsPerWeek,
		}
	} else {
		data["configError"] = "当前方案配置不完整，请先完善设置"
	}

	now := time.Now()
	views, viewErr := a.schedule.MonthView(now.Year(), now.Month(), now)
	if viewErr == nil {
		for _, v := range views {
			if schedule.SameDay(v.Date, now) {
				data["today"] = gin.H{
					"status": string(v.Status),
					"dose":   dose.Format(v.DoseMg, "mg"),
				}
				break
			}
		}
	}

	c.HTML(http.StatusOK, "dashboard.html", data)
}

// ShowCalendar 渲染日历页，回到最近浏览的月份
func (a *API) ShowCalendar(c *gin.Context) {
	now := time.Now()
	year := now.Year()
	month := now.Month()

	session := sessions.Default(c)
	if raw, ok := session.Get(lastMonthSessionKey).(string); ok {
		if parsed, err := time.ParseInLocation(dateFormat, raw, time.Local); err == nil {
			year = parsed.Year()
			month = parsed.Month()
		}
	}

	c.HTML(http.StatusOK, "calendar.html", gin.H{
		"title": "注射日历",
		"year":  year,
		"month": int(month),
	})
}

// ShowSettings 渲染设置页，携带导入结果闪存
func (a *API) ShowSettings(c *gin.Context) {
	data := gin.H{"title": "治疗设置"}

	settings, err := a.settings.GetOrCreate()
	if err == nil {
		data["settings"] = settings
		data["current"] = service.CurrentProtocol(settings)
	} else {
		data["error"] = "加载设置失败"
	}

	session := sessions.Default(c)
	if flashes := session.Flashes(importFlashKey); len(flashes) > 0 {
		data["flash"] = flashes[0]
		_ = session.Save()
	}

	c.HTML(http.StatusOK, "settings.html", data)
}

// ShowHistory 渲染剂量历史页
func (a *API) ShowHistory(c *gin.Context) {
	c.HTML(http.StatusOK, "history.html", gin.H{"title": "剂量历史"})
}
