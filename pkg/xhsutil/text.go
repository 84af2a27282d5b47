package xhsutil

import "github.com/mattn/go-runewidth"

// Truncate 按显示宽度截断字符串，用于日志中预览 URL、标题等长文本
func Truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}
