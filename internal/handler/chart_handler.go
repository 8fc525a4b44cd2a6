package handler

import (
	"net/http"

	"github.com/doselog/internal/view"
	"github.com/gin-gonic/gin"
)

// GetDoseHistory 返回剂量历史曲线数据（完成记录 + 方案切换标注）
func (a *API) GetDoseHistory(c *gin.Context) {
	series, err := a.schedule.HistorySeries()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取剂量历史失败")
		return
	}

	points := make([]gin.H, 0, len(series.Points))
	for _, p := range series.Points {
		points = append(points, gin.H{
			"date":    p.Date.Format(dateFormat),
			"dose_mg": p.DoseMg,
		})
	}

	markers := make([]gin.H, 0, len(series.Markers))
	for _, m := range series.Markers {
		markers = append(markers, gin.H{
			"date":     m.Date.Format(dateFormat),
			"protocol": m.Protocol,
			"color":    m.Color,
		})
	}

	c.JSON(http.StatusOK, gin.H{"points": points, "markers": markers})
}

// GetDoseHistoryPNG 把剂量历史渲染为 PNG 图片
func (a *API) GetDoseHistoryPNG(c *gin.Context) {
	series, err := a.schedule.HistorySeries()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取剂量历史失败")
		return
	}

	points := make([]view.ChartPoint, 0, len(series.Points))
	for _, p := range series.Points {
		points = append(points, view.ChartPoint{Date: p.Date, DoseMg: p.DoseMg})
	}
	markers := make([]view.ChartMarker, 0, len(series.Markers))
	for _, m := range series.Markers {
		markers = append(markers, view.ChartMarker{Date: m.Date, Label: m.Protocol})
	}

	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if err := view.RenderDoseChart(c.Writer, points, markers, 640, 320); err != nil {
		c.Error(err)
	}
}
