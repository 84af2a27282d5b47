package configs

import "strings"

// HeadlessMode 浏览器 headless 模式
type HeadlessMode string

const (
	HeadlessOff HeadlessMode = "false" // 有窗口（首次登录扫码用）
	HeadlessOld HeadlessMode = "true"  // 旧 headless（易被反爬检测）
	HeadlessNew HeadlessMode = "new"   // 新 headless（Chrome 112+，推荐）
)

// ParseHeadlessMode 解析 "new"/"true"/"false"，无法识别时使用有窗口模式，
// 方便用户在浏览器里扫码登录。
func ParseHeadlessMode(m string) HeadlessMode {
	switch HeadlessMode(strings.ToLower(strings.TrimSpace(m))) {
	case HeadlessNew:
		return HeadlessNew
	case HeadlessOld:
		return HeadlessOld
	default:
		return HeadlessOff
	}
}
