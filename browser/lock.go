package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrProfileLocked profile 目录正被另一个进程使用
var ErrProfileLocked = errors.New("profile directory is in use")

const lockFileName = ".harvester.lock"

// profileLock profile 目录内的独占锁文件，内容为持有者 PID
type profileLock struct {
	path string
}

func acquireProfileLock(dir string) (*profileLock, error) {
	path := filepath.Join(dir, lockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d\n", os.Getpid())
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, errors.Errorf("写入锁文件失败: %v %v", werr, cerr)
			}
			return &profileLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(err, "创建锁文件失败")
		}

		if !lockIsStale(path) {
			return nil, errors.Wrapf(ErrProfileLocked, "%s", dir)
		}
		logrus.Warnf("清理残留的锁文件: %s", path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "清理锁文件失败")
		}
	}

	return nil, errors.Wrapf(ErrProfileLocked, "%s", dir)
}

func (l *profileLock) release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "释放锁文件失败")
	}
	return nil
}

// lockIsStale 持有者进程已不存在或锁文件内容无法解析
func lockIsStale(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return os.IsNotExist(err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return true
	}
	return !processAlive(pid)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
