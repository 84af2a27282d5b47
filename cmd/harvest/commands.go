package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xpzouying/xiaohongshu-harvester/harvest"
	"github.com/xpzouying/xiaohongshu-harvester/pkg/xhsutil"
)

func newNoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "note <url>",
		Short: "采集单条笔记",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if xhsutil.IsProfileURL(args[0]) {
				return errors.Errorf("%s 是达人主页链接，请使用 profile 命令", args[0])
			}

			res, err := newService(true).ScrapeNote(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func newProfileCmd() *cobra.Command {
	var maxItems int
	cmd := &cobra.Command{
		Use:   "profile <url>",
		Short: "采集达人主页上的笔记",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !xhsutil.IsProfileURL(args[0]) {
				return errors.Errorf("%s 不是达人主页链接", args[0])
			}
			if maxItems < 0 {
				return errors.New("--max 不能为负数")
			}

			res, err := newService(true).CrawlProfile(cmd.Context(), args[0], maxItems)
			if res != nil {
				out := crawlOutput{
					ProfileURL: res.ProfileURL,
					MetaPaths:  res.MetaPaths,
					FailedURLs: res.FailedURLs(),
					Visited:    res.Visited,
				}
				if perr := printJSON(out); perr != nil {
					logrus.Warnf("输出结果失败: %v", perr)
				}
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&maxItems, "max", "n", 0, "最多采集条数，0 使用配置值")
	return cmd
}

type crawlOutput struct {
	ProfileURL string   `json:"profile_url"`
	MetaPaths  []string `json:"meta_paths"`
	FailedURLs []string `json:"failed_urls"`
	Visited    int      `json:"visited"`
}

func newBatchCmd() *cobra.Command {
	var maxItems int
	cmd := &cobra.Command{
		Use:   "batch [urls.txt]",
		Short: "批量采集，不指定文件时从标准输入读取链接",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := os.Stdin
			fromFile := len(args) == 1 && args[0] != "-"
			if fromFile {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrap(err, "打开链接文件失败")
				}
				defer f.Close()
				in = f
			}

			urls, err := harvest.ReadURLs(in)
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return errors.New("没有需要处理的链接")
			}

			// 链接来自标准输入时不能再用回车确认登录
			res, err := newService(fromFile).Batch(cmd.Context(), urls, maxItems)
			if res != nil {
				if perr := printJSON(res); perr != nil {
					logrus.Warnf("输出结果失败: %v", perr)
				}
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&maxItems, "max", "n", 0, "每个达人主页最多采集条数，0 使用配置值")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var waitSeconds int
	cmd := &cobra.Command{
		Use:   "login",
		Short: "打开浏览器扫码登录，完成后按回车或等待自动检测",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout := cfg.LoginWait()
			if waitSeconds > 0 {
				timeout = time.Duration(waitSeconds) * time.Second
			}

			res, err := newService(true).Login(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().IntVar(&waitSeconds, "wait", 0, "最长等待秒数，0 使用配置值")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "查看当前登录状态",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := newService(false).CheckLoginStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}
}
