package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config 一次采集调用所需的全部配置，在启动时加载后显式传给各组件
type Config struct {
	WorkDir     string `mapstructure:"work_dir"`
	CookiesPath string `mapstructure:"cookies_path"`

	Browser   BrowserConfig   `mapstructure:"browser"`
	Login     LoginConfig     `mapstructure:"login"`
	Download  DownloadConfig  `mapstructure:"download"`
	FetchTool FetchToolConfig `mapstructure:"fetch_tool"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Log       LogConfig       `mapstructure:"log"`
}

// BrowserConfig 浏览器会话配置
type BrowserConfig struct {
	ProfileDir        string        `mapstructure:"profile_dir"`
	HeadlessMode      string        `mapstructure:"headless_mode"`
	Bin               string        `mapstructure:"bin"`
	Proxy             string        `mapstructure:"proxy"`
	UserAgent         string        `mapstructure:"user_agent"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	BackTimeout       time.Duration `mapstructure:"back_timeout"`
}

// LoginConfig 登录检测配置
type LoginConfig struct {
	// 视为已登录的 cookie 名称
	CookieNames []string `mapstructure:"cookie_names"`
	// 严格模式：没有登录 cookie 时即使页面看起来正常也要等待登录
	StrictRequired bool `mapstructure:"strict_required"`
	WaitSeconds    int  `mapstructure:"wait_seconds"`
	PollSeconds    int  `mapstructure:"poll_seconds"`
}

// DownloadConfig 视频直链下载配置
type DownloadConfig struct {
	MinBytes   int64         `mapstructure:"min_bytes"`
	Retries    int           `mapstructure:"retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
	Referer    string        `mapstructure:"referer"`
	Progress   bool          `mapstructure:"progress"`
	SniffHints []string      `mapstructure:"sniff_hints"`
}

// FetchToolConfig 外部下载工具（yt-dlp）兜底配置
type FetchToolConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Bin       string        `mapstructure:"bin"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxHeight int           `mapstructure:"max_height"`
}

// CrawlConfig 采集节奏配置
type CrawlConfig struct {
	MaxItems      int           `mapstructure:"max_items"`
	IdleRounds    int           `mapstructure:"idle_rounds"`
	ScrollDelta   int           `mapstructure:"scroll_delta"`
	NudgeScroll   int           `mapstructure:"nudge_scroll"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	NudgeDelay    time.Duration `mapstructure:"nudge_delay"`
	ClickSettle   time.Duration `mapstructure:"click_settle"`
	IdleDelay     time.Duration `mapstructure:"idle_delay"`
	ProfileSettle time.Duration `mapstructure:"profile_settle"`
	BackDelayMin  time.Duration `mapstructure:"back_delay_min"`
	BackDelayMax  time.Duration `mapstructure:"back_delay_max"`
	BatchRestMin  time.Duration `mapstructure:"batch_rest_min"`
	BatchRestMax  time.Duration `mapstructure:"batch_rest_max"`
	TopComments   int           `mapstructure:"top_comments"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// 兼容旧脚本使用的环境变量
var legacyEnv = map[string][]string{
	"login.wait_seconds":    {"LOGIN_WAIT_SECONDS"},
	"login.strict_required": {"STRICT_LOGIN_REQUIRED"},
	"crawl.max_items":       {"PROFILE_MAX_ITEMS"},
	"cookies_path":          {"COOKIES_PATH"},
	"browser.proxy":         {"XHS_PROXY"},
	"browser.bin":           {"ROD_BROWSER_BIN"},
	"login.cookie_names":    {"LOGIN_COOKIE_NAMES"},
	"browser.headless_mode": {"HEADLESS_MODE"},
	"fetch_tool.bin":        {"YTDLP_BIN"},
	"browser.profile_dir":   {"USER_DATA_DIR"},
	"work_dir":              {"WORK_DIR"},
}

// Load 依次叠加默认值、配置文件（可选）和环境变量。
// path 为空时在当前目录与 ./configs 下查找 harvester.{yaml,json,toml}。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("harvester")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".xiaohongshu-harvester"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "读取配置文件失败")
		}
	}

	v.SetEnvPrefix("XHS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envs := append([]string{"XHS_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, errors.Wrapf(err, "绑定环境变量失败: %s", key)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "解析配置失败")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回只包含默认值的配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("work_dir", "workspace_data")
	v.SetDefault("cookies_path", "cookies.json")

	v.SetDefault("browser.profile_dir", "./browser_memory")
	v.SetDefault("browser.headless_mode", string(HeadlessOff))
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.proxy", "")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 800)
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.back_timeout", "15s")

	v.SetDefault("login.cookie_names", []string{"web_session"})
	v.SetDefault("login.strict_required", true)
	v.SetDefault("login.wait_seconds", 300)
	v.SetDefault("login.poll_seconds", 2)

	v.SetDefault("download.min_bytes", 1024)
	v.SetDefault("download.retries", 3)
	v.SetDefault("download.backoff", "1s")
	v.SetDefault("download.timeout", "120s")
	v.SetDefault("download.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("download.referer", "https://www.xiaohongshu.com/")
	v.SetDefault("download.progress", false)
	v.SetDefault("download.sniff_hints", []string{"sns-video", "spectrum"})

	v.SetDefault("fetch_tool.enabled", true)
	v.SetDefault("fetch_tool.bin", "yt-dlp")
	v.SetDefault("fetch_tool.timeout", "300s")
	v.SetDefault("fetch_tool.max_height", 1080)

	v.SetDefault("crawl.max_items", 10)
	v.SetDefault("crawl.idle_rounds", 8)
	v.SetDefault("crawl.scroll_delta", 1800)
	v.SetDefault("crawl.nudge_scroll", 500)
	v.SetDefault("crawl.settle_delay", "3s")
	v.SetDefault("crawl.nudge_delay", "1s")
	v.SetDefault("crawl.click_settle", "2s")
	v.SetDefault("crawl.idle_delay", "2s")
	v.SetDefault("crawl.profile_settle", "2s")
	v.SetDefault("crawl.back_delay_min", "1s")
	v.SetDefault("crawl.back_delay_max", "2200ms")
	v.SetDefault("crawl.batch_rest_min", "5s")
	v.SetDefault("crawl.batch_rest_max", "12s")
	v.SetDefault("crawl.top_comments", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}

// Validate 检查配置取值范围
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return errors.New("work_dir 不能为空")
	}
	if c.Browser.ProfileDir == "" {
		return errors.New("browser.profile_dir 不能为空")
	}
	if len(c.Login.CookieNames) == 0 {
		return errors.New("login.cookie_names 至少需要一个 cookie 名称")
	}
	if c.Login.WaitSeconds <= 0 || c.Login.PollSeconds <= 0 {
		return fmt.Errorf("登录等待配置无效: wait=%d poll=%d", c.Login.WaitSeconds, c.Login.PollSeconds)
	}
	if c.Download.Retries < 0 {
		return fmt.Errorf("download.retries 不能为负数: %d", c.Download.Retries)
	}
	if c.Crawl.MaxItems <= 0 || c.Crawl.IdleRounds <= 0 {
		return fmt.Errorf("采集配置无效: max_items=%d idle_rounds=%d", c.Crawl.MaxItems, c.Crawl.IdleRounds)
	}
	if c.Crawl.BackDelayMax < c.Crawl.BackDelayMin {
		return fmt.Errorf("crawl.back_delay_max(%s) 小于 back_delay_min(%s)", c.Crawl.BackDelayMax, c.Crawl.BackDelayMin)
	}
	if c.Crawl.BatchRestMax < c.Crawl.BatchRestMin {
		return fmt.Errorf("crawl.batch_rest_max(%s) 小于 batch_rest_min(%s)", c.Crawl.BatchRestMax, c.Crawl.BatchRestMin)
	}
	return nil
}

// LoginWait 默认登录等待时长
func (c *Config) LoginWait() time.Duration {
	return time.Duration(c.Login.WaitSeconds) * time.Second
}

// LoginPoll 登录轮询间隔
func (c *Config) LoginPoll() time.Duration {
	return time.Duration(c.Login.PollSeconds) * time.Second
}

// Headless 当前 headless 模式
func (c *Config) Headless() HeadlessMode {
	return ParseHeadlessMode(c.Browser.HeadlessMode)
}
