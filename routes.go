package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// setupRoutes 设置路由配置
func setupRoutes(appServer *AppServer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.Use(errorHandlingMiddleware())
	router.Use(corsMiddleware())

	router.GET("/health", healthHandler)

	// 所有 MCP 客户端共用一个 Server，浏览会话本身是串行的
	mcpHandler := mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server {
			return appServer.mcpServer
		},
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
		},
	)
	router.Any("/mcp", gin.WrapH(mcpHandler))
	router.Any("/mcp/*path", gin.WrapH(mcpHandler))

	api := router.Group("/api/v1")
	{
		api.GET("/login/status", appServer.checkLoginStatusHandler)
		api.POST("/login/wait", appServer.waitLoginHandler)
		api.POST("/login/confirm", appServer.confirmLoginHandler)
		api.DELETE("/login/cookies", appServer.deleteCookiesHandler)
		api.POST("/notes/scrape", appServer.scrapeNoteHandler)
		api.POST("/profiles/crawl", appServer.crawlProfileHandler)
		api.POST("/batch", appServer.batchHandler)
	}

	return router
}
