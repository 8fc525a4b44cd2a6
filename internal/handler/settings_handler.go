package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/doselog/internal/db"
	"github.com/doselog/internal/dose"
	"github.com/doselog/internal/service"
	"github.com/gin-gonic/gin"
)

type syringePayload struct {
	VolumeMl    float64 `json:"volume_ml"`
	TotalUnits  float64 `json:"total_units"`
	DeadSpaceMl float64 `json:"dead_space_ml"`
}

type protocolPayload struct {
	Protocol             string         `json:"protocol"`
	WeeklyDoseMg         float64        `json:"weekly_dose_mg"`
	ConcentrationMgPerMl float64        `json:"concentration_mg_per_ml"`
	Syringe              syringePayload `json:"syringe"`
	SyringeFillAmountMl  float64        `json:"syringe_fill_amount_ml"`
	StartDate            string         `json:"start_date"`
	DisplayColor         string         `json:"display_color"`
}

type preferencesPayload struct {
	ReminderTime           string `json:"reminder_time"`
	EnableNotifications    bool   `json:"enable_notifications"`
	NotificationPermission string `json:"notification_permission"`
}

// GetSettings 返回设置与完整方案历史
func (a *API) GetSettings(c *gin.Context) {
	settings, err := a.settings.GetOrCreate()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "加载设置失败")
		return
	}

	c.JSON(http.StatusOK, settingsToPayload(settings))
}

// ChangeProtocol 追加新方案（方案切换，保留历史）
func (a *API) ChangeProtocol(c *gin.Context) {
	input, ok := a.parseProtocolPayload(c)
	if !ok {
		return
	}

	settings, err := a.settings.ChangeProtocol(input)
	if err != nil {
		handleSettingsError(c, err)
		return
	}

	c.JSON(http.StatusOK, settingsToPayload(settings))
}

// UpdateCurrentProtocol 原位编辑当前方案（不产生新历史）
func (a *API) UpdateCurrentProtocol(c *gin.Context) {
	input, ok := a.parseProtocolPayload(c)
	if !ok {
		return
	}

	settings, err := a.settings.UpdateCurrent(input)
	if err != nil {
		handleSettingsError(c, err)
		return
	}

	c.JSON(http.StatusOK, settingsToPayload(settings))
}

// UpdatePreferences 更新提醒时间与通知设置
func (a *API) UpdatePreferences(c *gin.Context) {
	var payload preferencesPayload
	if !bindJSON(c, &payload, "无效的偏好设置") {
		return
	}

	settings, err := a.settings.UpdatePreferences(payload.ReminderTime, payload.EnableNotifications, payload.NotificationPermission)
	if err != nil {
		handleSettingsError(c, err)
		return
	}

	c.JSON(http.StatusOK, settingsToPayload(settings))
}

// GetDoseSummary 返回头部展示的剂量汇总
// 配置非法（浓度/容积为 0）时返回 422，绝不输出 Inf/NaN
func (a *API) GetDoseSummary(c *gin.Context) {
	calc, current, err := a.schedule.DoseSummary()
	if err != nil {
		if errors.Is(err, service.ErrInvalidConfiguration) {
			respondError(c, http.StatusUnprocessableEntity, "当前方案配置不完整，无法计算剂量")
			return
		}
		respondError(c, http.StatusInternalServerError, "计算剂量失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"protocol":                current.Protocol,
		"mg_per_injection":        calc.MgPerInjection,
		"volume_per_injection_ml": calc.VolumePerInjectionMl,
		"units_per_injection":     calc.UnitsPerInjection,
		"injections_per_week":     calc.InjectionsPerWeek,
		"display": gin.H{
			"dose":   dose.Format(calc.MgPerInjection, "mg"),
			"volume": dose.Format(calc.VolumePerInjectionMl, "mL"),
			"units":  dose.Format(calc.UnitsPerInjection, "units"),
		},
	})
}

func (a *API) parseProtocolPayload(c *gin.Context) (service.ProtocolInput, bool) {
	var payload protocolPayload
	if !bindJSON(c, &payload, "无效的方案配置") {
		return service.ProtocolInput{}, false
	}

	var start time.Time
	if raw := strings.TrimSpace(payload.StartDate); raw != "" {
		parsed, err := time.ParseInLocation(dateFormat, raw, time.Local)
		if err != nil {
			respondError(c, http.StatusBadRequest, "起始日期格式应为 YYYY-MM-DD")
			return service.ProtocolInput{}, false
		}
		start = parsed
	}

	return service.ProtocolInput{
		Protocol:             payload.Protocol,
		WeeklyDoseMg:         payload.WeeklyDoseMg,
		ConcentrationMgPerMl: payload.ConcentrationMgPerMl,
		SyringeVolumeMl:      payload.Syringe.VolumeMl,
		SyringeTotalUnits:    payload.Syringe.TotalUnits,
		SyringeDeadSpaceMl:   payload.Syringe.DeadSpaceMl,
		SyringeFillAmountMl:  payload.SyringeFillAmountMl,
		StartDate:            start,
		DisplayColor:         payload.DisplayColor,
	}, true
}

func handleSettingsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidProtocolInput):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidPreferences):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSettingsNotFound):
		respondError(c, http.StatusNotFound, "设置不存在")
	default:
		respondError(c, http.StatusInternalServerError, "保存设置失败")
	}
}

func settingsToPayload(settings *db.UserSettings) gin.H {
	protocols := make([]gin.H, 0, len(settings.Protocols))
	for _, p := range settings.Protocols {
		protocols = append(protocols, protocolToPayload(p))
	}

	payload := gin.H{
		"treatment_start_date":    settings.TreatmentStartDate.Format(dateFormat),
		"reminder_time":           settings.ReminderTime,
		"enable_notifications":    settings.EnableNotifications,
		"notification_permission": settings.NotificationPermission,
		"protocols":               protocols,
	}
	if current := service.CurrentProtocol(settings); current != nil {
		payload["current_protocol"] = protocolToPayload(*current)
	}
	return payload
}

func protocolToPayload(p db.ProtocolSettings) gin.H {
	return gin.H{
		"protocol":                p.Protocol,
		"weekly_dose_mg":          p.WeeklyDoseMg,
		"concentration_mg_per_ml": p.ConcentrationMgPerMl,
		"syringe": gin.H{
			"volume_ml":     p.SyringeVolumeMl,
			"total_units":   p.SyringeTotalUnits,
			"dead_space_ml": p.SyringeDeadSpaceMl,
		},
		"syringe_fill_amount_ml": p.SyringeFillAmountMl,
		"start_date":             p.StartDate.Format(dateFormat),
		"display_color":          p.DisplayColor,
	}
}
