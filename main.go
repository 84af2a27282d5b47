package main

import (
	"flag"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/xiaohongshu-harvester/configs"
	"github.com/xpzouying/xiaohongshu-harvester/harvest"
	"github.com/xpzouying/xiaohongshu-harvester/pkg/logging"
)

func main() {
	var (
		configPath   string
		headlessMode string
		binPath      string // 浏览器二进制文件路径
		port         string
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径（yaml/json）")
	flag.StringVar(&headlessMode, "headless-mode", "", "headless模式: new(推荐)/true/false，留空使用配置")
	flag.StringVar(&binPath, "bin", "", "浏览器二进制文件路径")
	flag.StringVar(&port, "port", ":18060", "端口")
	flag.Parse()

	cfg, err := configs.Load(configPath)
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}
	if headlessMode != "" {
		cfg.Browser.HeadlessMode = headlessMode
	}
	if binPath != "" {
		cfg.Browser.Bin = binPath
	}
	// 服务端没有终端，不显示下载进度条
	cfg.Download.Progress = false

	closer, err := logging.Setup(logging.Options(cfg.Log))
	if err != nil {
		logrus.Fatalf("初始化日志失败: %v", err)
	}
	defer closer.Close()

	service := harvest.NewService(cfg)

	appServer := NewAppServer(service)
	if err := appServer.Start(port); err != nil {
		logrus.Fatalf("failed to run server: %v", err)
	}
}
