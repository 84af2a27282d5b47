package main

// HTTP API 响应类型

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// MCP 相关类型（用于内部转换）

// MCPToolResult MCP 工具结果（内部使用）
type MCPToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent MCP 内容（内部使用）
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// LoginWaitRequest 等待扫码登录
type LoginWaitRequest struct {
	// 为 0 时使用配置的等待时长
	TimeoutSeconds int `json:"timeout_seconds,omitempty" binding:"gte=0"`
}

// ScrapeNoteRequest 采集单条笔记
type ScrapeNoteRequest struct {
	URL string `json:"url" binding:"required"`
}

// CrawlProfileRequest 采集达人主页
type CrawlProfileRequest struct {
	URL      string `json:"url" binding:"required"`
	MaxItems int    `json:"max_items,omitempty" binding:"gte=0"`
	// 提供 webhook 时异步执行，结果通过 webhook 通知
	Webhook string `json:"webhook,omitempty"`
}

// BatchRequest 批量采集
type BatchRequest struct {
	URLs     []string `json:"urls" binding:"required,min=1"`
	MaxItems int      `json:"max_items,omitempty" binding:"gte=0"`
}

// CrawlProfileResponse 达人主页采集结果
type CrawlProfileResponse struct {
	ProfileURL string   `json:"profile_url"`
	MetaPaths  []string `json:"meta_paths"`
	FailedURLs []string `json:"failed_urls"`
	Visited    int      `json:"visited"`
}
