package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"etfsync/internal/logger"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// LoadSymbols 读取目标 symbol 列表文件。支持 YAML 数组，也兼容
// 每行一个代码的纯文本。结果去重并升序排列。
func LoadSymbols(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var symbols []string
	if err := yaml.Unmarshal(data, &symbols); err != nil {
		symbols = nil
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			symbols = append(symbols, line)
		}
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("symbols 文件为空: %s", path)
	}
	sort.Strings(out)
	return out, nil
}

// SymbolsWatcher 监听 symbols 文件变更并热加载。
type SymbolsWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchSymbols 启动文件监听；文件每次被改写后 onChange 收到新列表。
// 解析失败只告警，保留旧列表。
func WatchSymbols(path string, onChange func([]string)) (*SymbolsWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// 监听目录而不是文件本身，编辑器的 rename 保存也能捕获。
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}
	w := &SymbolsWatcher{watcher: watcher, done: make(chan struct{})}
	go w.loop(abs, onChange)
	return w, nil
}

func (w *SymbolsWatcher) loop(path string, onChange func([]string)) {
	var timer *time.Timer
	reload := func() {
		symbols, err := LoadSymbols(path)
		if err != nil {
			logger.Warnf("[symbols] 重新加载失败: %v", err)
			return
		}
		logger.Infof("[symbols] 列表已热加载，共 %d 个 symbol", len(symbols))
		onChange(symbols)
	}
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// 短暂去抖，避免编辑器多次写入触发连环加载。
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("[symbols] 监听错误: %v", err)
		}
	}
}

func (w *SymbolsWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
