package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/doselog/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const importFlashKey = "import_result"

// 导入文件大小上限，备份文档远小于此
const maxImportSize = 8 << 20

// ExportBackup 以附件形式下载完整备份文档
func (a *API) ExportBackup(c *gin.Context) {
	doc, err := a.backup.Export()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "导出备份失败")
		return
	}

	filename := fmt.Sprintf("doselog-backup-%s.json", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.JSON(http.StatusOK, doc)
}

// ImportBackup 接收上传的备份文件并整体替换现有数据
// JSON 调用返回导入结果；表单上传写入会话闪存后重定向回设置页
func (a *API) ImportBackup(c *gin.Context) {
	raw, ok := a.readImportPayload(c)
	if !ok {
		return
	}

	result, err := a.backup.Import(raw)
	if err != nil {
		if errors.Is(err, service.ErrMalformedDocument) {
			a.respondImport(c, http.StatusBadRequest, gin.H{"error": "备份文件格式不正确"})
			return
		}
		a.respondImport(c, http.StatusInternalServerError, gin.H{"error": "导入备份失败"})
		return
	}

	a.respondImport(c, http.StatusOK, gin.H{
		"imported":        result.RecordsImported,
		"dropped":         result.RecordsDropped,
		"settings_loaded": result.SettingsLoaded,
	})
}

func (a *API) readImportPayload(c *gin.Context) ([]byte, bool) {
	if file, err := c.FormFile("backup"); err == nil {
		f, err := file.Open()
		if err != nil {
			a.respondImport(c, http.StatusBadRequest, gin.H{"error": "读取备份文件失败"})
			return nil, false
		}
		defer f.Close()

		raw, err := io.ReadAll(io.LimitReader(f, maxImportSize))
		if err != nil {
			a.respondImport(c, http.StatusBadRequest, gin.H{"error": "读取备份文件失败"})
			return nil, false
		}
		return raw, true
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportSize))
	if err != nil || len(raw) == 0 {
		a.respondImport(c, http.StatusBadRequest, gin.H{"error": "缺少备份内容"})
		return nil, false
	}
	return raw, true
}

// respondImport 表单提交走闪存+重定向，其余返回 JSON
func (a *API) respondImport(c *gin.Context, status int, payload gin.H) {
	if c.PostForm("redirect") == "" {
		c.JSON(status, payload)
		return
	}

	session := sessions.Default(c)
	if msg, ok := payload["error"].(string); ok {
		session.AddFlash(msg, importFlashKey)
	} else {
		session.AddFlash(fmt.Sprintf("导入完成：%v 条记录", payload["imported"]), importFlashKey)
	}
	_ = session.Save()
	c.Redirect(http.StatusSeeOther, c.PostForm("redirect"))
}
