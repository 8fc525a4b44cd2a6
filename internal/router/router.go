package router

import (
	"html/template"
	"path/filepath"

	"github.com/doselog/internal/config"
	"github.com/doselog/internal/db"
	"github.com/doselog/internal/handler"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(cfg config.AppConfig) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("doselog_session", store))

	// 加载模板并添加自定义函数
	r.SetFuncMap(template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
	})
	// 测试环境下可能没有模板目录，匹配到文件才加载
	if pages, err := filepath.Glob("web/template/*.html"); err == nil && len(pages) > 0 {
		r.LoadHTMLGlob("web/template/*.html")
	}

	// 静态文件服务
	r.Static("/static", "./web/static")

	api := handler.NewAPI(db.DB)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// 页面路由
	r.GET("/", api.ShowDashboard)
	r.GET("/calendar", api.ShowCalendar)
	r.GET("/settings", api.ShowSettings)
	r.GET("/history", api.ShowHistory)
	r.GET("/chart/doses.png", api.GetDoseHistoryPNG)

	// API 路由
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/summary", api.GetDoseSummary)

		apiGroup.GET("/settings", api.GetSettings)
		apiGroup.POST("/settings/protocol", api.ChangeProtocol)
		apiGroup.PUT("/settings/protocol", api.UpdateCurrentProtocol)
		apiGroup.PUT("/settings/preferences", api.UpdatePreferences)

		apiGroup.GET("/calendar", api.GetCalendarMonth)
		apiGroup.GET("/injections/next", api.GetNextInjections)

		apiGroup.GET("/records", api.ListRecords)
		apiGroup.POST("/records", api.CreateRecord)
		apiGroup.GET("/records/:id", api.GetRecord)
		apiGroup.DELETE("/records/:id", api.DeleteRecord)
		apiGroup.POST("/records/:id/resolve", api.ResolveMissedDose)
		apiGroup.GET("/records/:id/notes", api.GetRecordNotes)

		apiGroup.GET("/chart/doses", api.GetDoseHistory)

		apiGroup.GET("/export", api.ExportBackup)
		apiGroup.POST("/import", api.ImportBackup)
	}

	return r
}
