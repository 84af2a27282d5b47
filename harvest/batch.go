package harvest

import (
	"bufio"
	"context"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FailedURLsFile 批量模式的失败清单，每行一个 URL，可直接作为下次批量的输入
const FailedURLsFile = "failed_urls.txt"

// BatchResult 批量采集汇总
type BatchResult struct {
	BatchID    string       `json:"batch_id"`
	Total      int          `json:"total"`
	Succeeded  int          `json:"succeeded"`
	Failed     int          `json:"failed"`
	MetaPaths  []string     `json:"meta_paths"`
	FailedURLs []string     `json:"failed_urls"`
	ReportPath string       `json:"report_path,omitempty"`
	Runs       []*RunResult `json:"runs"`
	// Interrupted 被中断时为 true，剩余链接未处理
	Interrupted bool `json:"interrupted"`
}

// ReadURLs 读取链接列表，忽略空行和 # 注释
func ReadURLs(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "读取链接列表失败")
	}
	return urls, nil
}

// Batch 依次处理每个链接，单个失败不影响后续；两次之间随机休息。
// 中断时返回已完成的部分和 ctx 错误。
func (s *Service) Batch(ctx context.Context, urls []string, maxItems int) (*BatchResult, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	res := &BatchResult{
		BatchID:    uuid.NewString(),
		Total:      len(urls),
		MetaPaths:  []string{},
		FailedURLs: []string{},
	}
	log := logrus.WithField("batch_id", res.BatchID)
	log.Infof("批量任务开始，共 %d 个链接", len(urls))

	var runErr error
	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		log.Infof("[%d/%d] 处理: %s", i+1, len(urls), url)
		run, err := s.run(ctx, url, maxItems)
		if run != nil {
			res.Runs = append(res.Runs, run)
			res.MetaPaths = append(res.MetaPaths, run.MetaPaths...)
			res.FailedURLs = append(res.FailedURLs, run.FailedURLs...)
		}
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			if run == nil || len(run.FailedURLs) == 0 {
				res.FailedURLs = append(res.FailedURLs, url)
			}
			res.Failed++
			log.Errorf("[%d/%d] 失败: %v", i+1, len(urls), err)
		} else {
			res.Succeeded++
		}

		if i < len(urls)-1 {
			rest := s.batchRest()
			log.Infof("休息 %.1f 秒...", rest.Seconds())
			if err := s.sleep(ctx, rest); err != nil {
				runErr = err
				break
			}
		}
	}

	if runErr != nil {
		res.Interrupted = true
		log.Warn("批量任务被中断")
	}

	if len(res.FailedURLs) > 0 {
		path, err := writeFailedURLs(s.cfg.WorkDir, res.FailedURLs)
		if err != nil {
			log.Errorf("写入失败清单失败: %v", err)
		} else {
			res.ReportPath = path
			log.Infof("失败链接已写入: %s", path)
		}
	}

	log.Infof("批量任务结束：成功 %d，失败 %d，共 %d", res.Succeeded, res.Failed, res.Total)
	return res, runErr
}

func (s *Service) batchRest() time.Duration {
	lo, hi := s.cfg.Crawl.BatchRestMin, s.cfg.Crawl.BatchRestMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func writeFailedURLs(dir string, urls []string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "创建工作目录失败")
	}
	path := filepath.Join(dir, FailedURLsFile)
	if err := os.WriteFile(path, []byte(strings.Join(urls, "\n")+"\n"), 0644); err != nil {
		return "", errors.Wrap(err, "写入失败清单失败")
	}
	return path, nil
}
