package celestial

import "time"

// HeavenlyStems and EarthlyBranches are the two cycles of the sexagenary
// calendar, index 0 first.
var (
	HeavenlyStems   = [10]string{"甲", "乙", "丙", "丁", "戊", "己", "庚", "辛", "壬", "癸"}
	EarthlyBranches = [12]string{"子", "丑", "寅", "卯", "辰", "巳", "午", "未", "申", "酉", "戌", "亥"}
)

// fiveElements partitions the stems, two per element, in stem order.
var fiveElements = [5]struct {
	element string
	stems   [2]string
}{
	{"木", [2]string{"甲", "乙"}},
	{"火", [2]string{"丙", "丁"}},
	{"土", [2]string{"戊", "己"}},
	{"金", [2]string{"庚", "辛"}},
	{"水", [2]string{"壬", "癸"}},
}

// ZodiacLabel is the sexagenary name of a calendar year.
type ZodiacLabel struct {
	Year    string `json:"year"` // e.g. 甲子年
	Stem    string `json:"stem"`
	Branch  string `json:"branch"`
	Element string `json:"element"`
}

// FiveElement returns the element a stem belongs to, or "" for a string that
// is not a stem.
func FiveElement(stem string) string {
	for _, fe := range fiveElements {
		if fe.stems[0] == stem || fe.stems[1] == stem {
			return fe.element
		}
	}
	return ""
}

// ChineseZodiac labels the calendar year containing ms.
func (c *Calculator) ChineseZodiac(ms float64) ZodiacLabel {
	return c.ZodiacForYear(Time(ms).In(c.opts.Location).Year())
}

// ChineseZodiacAt is ChineseZodiac for a time.Time.
func (c *Calculator) ChineseZodiacAt(t time.Time) ZodiacLabel {
	return c.ZodiacForYear(t.In(c.opts.Location).Year())
}

// ZodiacForYear labels a calendar year. Years before the reference year wrap
// backwards through the cycle.
func (c *Calculator) ZodiacForYear(year int) ZodiacLabel {
	cycle := floorMod(year-c.opts.ZodiacReferenceYear, 60)
	stem := HeavenlyStems[cycle%10]
	branch := EarthlyBranches[cycle%12]
	return ZodiacLabel{
		Year:    stem + branch + "年",
		Stem:    stem,
		Branch:  branch,
		Element: FiveElement(stem),
	}
}
