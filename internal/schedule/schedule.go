package schedule

import (
	"time"

	"github.com/doselog/internal/dose"
)

// NormalizeDate 将时间戳归一到当日零点，日程逻辑只关心日历日
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay 判断两个时间是否落在同一个日历日
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// NextInjectionDates 从 start 起按方案间隔生成 count 个注射日期
// 首个日期即 start 本身；count<=0 返回空序列
// 结果确定且可重入：相同输入必然得到相同输出
func NextInjectionDates(start time.Time, p dose.Protocol, count int) []time.Time {
	if count <= 0 {
		return nil
	}

	interval := dose.DaysBetween(p)
	base := NormalizeDate(start)

	dates := make([]time.Time, 0, count)
	for k := 0; k < count; k++ {
		dates = append(dates, base.AddDate(0, 0, k*interval))
	}
	return dates
}

// RescheduleFromDate 在漏针后顺延日程：从漏针次日重新起算
// 漏针当日不出现在新序列中
func RescheduleFromDate(missed time.Time, p dose.Protocol, count int) []time.Time {
	return NextInjectionDates(NormalizeDate(missed).AddDate(0, 0, 1), p, count)
}
