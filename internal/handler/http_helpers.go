package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const dateFormat = "2006-01-02"

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// parseDateQuery 解析 YYYY-MM-DD 查询参数，缺省时返回 fallback
func parseDateQuery(c *gin.Context, key string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseInLocation(dateFormat, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s", key)
	}
	return parsed, nil
}

// parseMonthQuery 解析 year/month 查询参数，缺省时取当前月份
func parseMonthQuery(c *gin.Context) (int, time.Month, error) {
	now := time.Now()
	year := now.Year()
	month := now.Month()

	if raw := strings.TrimSpace(c.Query("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return 0, 0, fmt.Errorf("invalid year")
		}
		year = parsed
	}
	if raw := strings.TrimSpace(c.Query("month")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 12 {
			return 0, 0, fmt.Errorf("invalid month")
		}
		month = time.Month(parsed)
	}
	return year, month, nil
}
