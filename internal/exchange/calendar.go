package exchange

import (
	"sort"
	"time"
)

// Calendar 为交易日历游标，按时间升序单向推进，耗尽后不可重置。
type Calendar struct {
	days []time.Time
	idx  int
}

// NewCalendar 从交易日序列构建日历，去重、排序并裁剪到 [start, end]。
func NewCalendar(days []time.Time, start, end time.Time) *Calendar {
	seen := make(map[time.Time]struct{}, len(days))
	bounded := make([]time.Time, 0, len(days))
	for _, d := range days {
		day := DateOnly(d)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		if !start.IsZero() && day.Before(DateOnly(start)) {
			continue
		}
		if !end.IsZero() && day.After(DateOnly(end)) {
			continue
		}
		bounded = append(bounded, day)
	}
	sort.Slice(bounded, func(i, j int) bool { return bounded[i].Before(bounded[j]) })
	return &Calendar{days: bounded}
}

// Next 返回下一个交易日；日历耗尽时第二个返回值为 false。
func (c *Calendar) Next() (time.Time, bool) {
	if c.idx >= len(c.days) {
		return time.Time{}, false
	}
	day := c.days[c.idx]
	c.idx++
	return day, true
}

// Len 返回日历内交易日总数。
func (c *Calendar) Len() int {
	return len(c.days)
}

// Remaining 返回尚未推进到的交易日数。
func (c *Calendar) Remaining() int {
	return len(c.days) - c.idx
}

// DateOnly 将时间戳归一化为当日零点（UTC），行情与日历统一以日为粒度。
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
