package xhsutil

import (
	"strconv"
	"strings"
)

// 数量单位后缀，按匹配优先级排列
var countUnits = []struct {
	suffix string
	scale  float64
}{
	{"亿", 1e8},
	{"万", 1e4},
	{"w", 1e4},
	{"k", 1e3},
}

// ParseCount 将页面上的本地化计数（如 "1.2万"、"3.4k"、"+500"）转换为整数。
// 无法识别的内容返回 0。
func ParseCount(text string) int {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimSuffix(s, "+")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	scale := 1.0
	for _, u := range countUnits {
		if strings.HasSuffix(s, u.suffix) {
			scale = u.scale
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}

	// 加 0.5 避免 1.2*10000 这类浮点误差
	return int(v*scale + 0.5)
}
