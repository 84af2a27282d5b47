package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xpzouying/xiaohongshu-harvester/configs"
	"github.com/xpzouying/xiaohongshu-harvester/harvest"
	"github.com/xpzouying/xiaohongshu-harvester/pkg/logging"
)

// 命令行参数
var (
	configFile   string
	logLevel     string
	headlessMode string
	binPath      string
	workDir      string
	noProgress   bool
)

var (
	cfg       *configs.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "小红书笔记与达人主页采集工具",
	Long: `harvest - 使用持久化浏览器会话采集小红书笔记

  harvest login                      扫码登录并保存 cookie
  harvest status                     查看当前登录状态
  harvest note <url>                 采集单条笔记（视频 + 元数据）
  harvest profile <url> --max 20     按真实用户方式采集达人主页
  harvest batch urls.txt             批量采集，失败链接写入 failed_urls.txt

登录等待期间在终端按回车可人工确认登录完成。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := configs.Load(configFile)
		if err != nil {
			return errors.Wrap(err, "加载配置失败")
		}

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			c.Log.Level = logLevel
		}
		if headlessMode != "" {
			c.Browser.HeadlessMode = headlessMode
		}
		if binPath != "" {
			c.Browser.Bin = binPath
		}
		if workDir != "" {
			c.WorkDir = workDir
		}
		// 终端下默认显示下载进度
		c.Download.Progress = !noProgress

		closer, err := logging.Setup(logging.Options(c.Log))
		if err != nil {
			return errors.Wrap(err, "初始化日志系统失败")
		}

		cfg, logCloser = c, closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径（yaml/json）")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别: debug/info/warn/error")
	rootCmd.PersistentFlags().StringVar(&headlessMode, "headless-mode", "", "headless模式: new/true/false")
	rootCmd.PersistentFlags().StringVar(&binPath, "bin", "", "浏览器二进制文件路径")
	rootCmd.PersistentFlags().StringVarP(&workDir, "work-dir", "o", "", "输出目录")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "不显示下载进度条")

	rootCmd.AddCommand(newNoteCmd(), newProfileCmd(), newBatchCmd(), newLoginCmd(), newStatusCmd())
}

// newService 创建采集服务；listenStdin 为 true 时终端回车作为人工确认
func newService(listenStdin bool) *harvest.Service {
	svc := harvest.NewService(cfg)
	if listenStdin {
		go svc.Confirmer().ListenLines(os.Stdin)
	}
	return svc
}

// printJSON 结果输出到标准输出，日志在标准错误
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Error(err)
		stop()
		os.Exit(1)
	}
}
