package slot

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var absoluteLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// maxAheadDays 相对时间最远可达的天数
const maxAheadDays = 10000

// leapLookahead 不带年份的日期最多向后找几年（2 月 29 日最多隔 8 年出现一次）
const leapLookahead = 8

var (
	spaceRE      = regexp.MustCompile(`\s+`)
	timeOfDayRE  = regexp.MustCompile(`^(.*?)\s*(\bat\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	inDurationRE = regexp.MustCompile(`^in\s+(\d+|a|an)\s+(minute|hour|day|week)s?$`)
	dayMonthRE   = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+([a-z]+)(?:\s+(\d{4}))?$`)
	monthDayRE   = regexp.MustCompile(`^([a-z]+)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?$`)
)

// ParseTime 把自然语言或绝对时间解析为确定的时间点。
// 星期类表达总是向后取（与今天同名的星期解析为 7 天后），只有 today/tonight 落在当天；
// 不带年份的日期取今天及以后第一个真实存在的该日期（2 月 29 日顺延到闰年）；
// "in N" 类相对时间限定在 maxAheadDays 以内。无法确定的文本返回 false。
func ParseTime(text string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimSuffix(s, ".")
	s = spaceRE.ReplaceAllString(s, " ")
	if s == "" {
		return time.Time{}, false
	}
	loc := now.Location()

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
		if t, err := time.ParseInLocation(layout, strings.ToUpper(s), loc); err == nil {
			return t, true
		}
	}

	if m := inDurationRE.FindStringSubmatch(s); m != nil {
		return parseIn(m[1], m[2], now)
	}

	datePart, hour, minute, hasTime := splitTimeOfDay(s)
	day, ok := parseDay(datePart, now, hasTime)
	if !ok {
		return time.Time{}, false
	}
	if datePart == "tonight" && !hasTime {
		hour, hasTime = 20, true
	}
	if hasTime {
		day = time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	}
	return day, true
}

// parseIn 解析 "in N <unit>"；N 必须为正且不超过 maxAheadDays 对应的量
func parseIn(count, unit string, now time.Time) (time.Time, bool) {
	n := 1
	if count != "a" && count != "an" {
		var err error
		if n, err = strconv.Atoi(count); err != nil || n < 1 {
			return time.Time{}, false
		}
	}
	var limit int
	switch unit {
	case "minute":
		limit = maxAheadDays * 24 * 60
	case "hour":
		limit = maxAheadDays * 24
	case "day":
		limit = maxAheadDays
	case "week":
		limit = maxAheadDays / 7
	}
	if n > limit {
		return time.Time{}, false
	}
	switch unit {
	case "minute":
		return now.Add(time.Duration(n) * time.Minute).Truncate(time.Minute), true
	case "hour":
		return now.Add(time.Duration(n) * time.Hour).Truncate(time.Minute), true
	case "day":
		return startOfDay(now).AddDate(0, 0, n), true
	default:
		return startOfDay(now).AddDate(0, 0, 7*n), true
	}
}

// splitTimeOfDay 拆出末尾的时刻（at 3pm / 15:30 / 9am）；没有 at、分钟或 am/pm 标记的数字不算时刻
func splitTimeOfDay(s string) (date string, hour, minute int, ok bool) {
	m := timeOfDayRE.FindStringSubmatch(s)
	if m == nil {
		return s, 0, 0, false
	}
	hasAt, hasMinute, ampm := m[2] != "", m[4] != "", m[5]
	if !hasAt && !hasMinute && ampm == "" {
		return s, 0, 0, false
	}
	hour, _ = strconv.Atoi(m[3])
	if m[4] != "" {
		minute, _ = strconv.Atoi(m[4])
	}
	switch ampm {
	case "am":
		if hour < 1 || hour > 12 {
			return s, 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return s, 0, 0, false
		}
		if hour != 12 {
			hour += 12
		}
	}
	if hour > 23 || minute > 59 {
		return s, 0, 0, false
	}
	return strings.TrimSpace(m[1]), hour, minute, true
}

func parseDay(s string, now time.Time, hasTime bool) (time.Time, bool) {
	today := startOfDay(now)
	switch s {
	case "":
		// 只有时刻（"at 3pm"）时落在今天
		return today, hasTime
	case "today", "tonight":
		return today, true
	case "tomorrow", "tmrw", "tmr":
		return today.AddDate(0, 0, 1), true
	case "day after tomorrow", "the day after tomorrow":
		return today.AddDate(0, 0, 2), true
	case "next week", "a week", "in a week":
		return today.AddDate(0, 0, 7), true
	}

	name := strings.TrimPrefix(strings.TrimPrefix(s, "next "), "this ")
	name = strings.TrimPrefix(name, "on ")
	if wd, ok := weekdays[name]; ok {
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), true
	}

	if m := dayMonthRE.FindStringSubmatch(s); m != nil {
		return resolveMonthDay(m[2], m[1], m[3], today)
	}
	if m := monthDayRE.FindStringSubmatch(s); m != nil {
		return resolveMonthDay(m[1], m[2], m[3], today)
	}
	return time.Time{}, false
}

func resolveMonthDay(monthName, dayStr, yearStr string, today time.Time) (time.Time, bool) {
	month, ok := months[monthName]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	if yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			return time.Time{}, false
		}
		return calendarDate(year, month, day, today.Location())
	}
	// 不带年份：取今天及以后第一个真实存在的该日期
	for year := today.Year(); year <= today.Year()+leapLookahead; year++ {
		t, ok := calendarDate(year, month, day, today.Location())
		if ok && !t.Before(today) {
			return t, true
		}
	}
	return time.Time{}, false
}

// calendarDate 构造日期；31 feb 之类会被 time.Date 规范化到下个月，视为无效
func calendarDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	t := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
