package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"etfsync/internal/logger"
	"etfsync/internal/market"
	"etfsync/internal/provider"
)

// ErrMissingName 表示既查不到目录名称、本地也没有可借用的文件名。
var ErrMissingName = errors.New("无法解析 symbol 名称")

// Catalog 缓存 symbol → 名称 映射；目录不可用时退化为从本地
// 文件名推导名称。
type Catalog struct {
	client provider.Client
	root   string

	mu     sync.Mutex
	names  map[string]string
	loaded bool
}

func New(client provider.Client, downloadDir string) *Catalog {
	return &Catalog{client: client, root: downloadDir, names: make(map[string]string)}
}

// Load 拉取并缓存远端目录。失败不致命：记一条警告，后续解析
// 走文件名回退。重复调用只拉取一次。
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	names, err := c.client.FetchCatalog(ctx)
	if err != nil {
		logger.Warnf("[catalog] 获取目录失败，使用本地文件名回退: %v", err)
		return err
	}
	c.names = names
	c.loaded = true
	logger.Infof("[catalog] 成功获取 %d 个 symbol 的基础信息", len(names))
	return nil
}

// Symbols 返回目录中的全部 symbol（升序）。目录未加载时返回 nil。
func (c *Catalog) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return nil
	}
	out := make([]string, 0, len(c.names))
	for s := range c.names {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Resolve 解析 symbol 的显示名称。优先目录缓存，其次本地文件名；
// freshFull 表示这是一次没有本地文件的全量下载，此时两边都解析
// 不到就快速失败。
func (c *Catalog) Resolve(symbol, period string, freshFull bool) (string, error) {
	c.mu.Lock()
	name, ok := c.names[symbol]
	c.mu.Unlock()
	if ok && name != "" {
		return name, nil
	}
	if path, found := market.FindFile(c.root, symbol, period); found {
		if local, ok := market.NameFromFilename(filepath.Base(path), period); ok {
			return local, nil
		}
	}
	if freshFull {
		return "", fmt.Errorf("%w: %s", ErrMissingName, symbol)
	}
	// 增量更新已有文件时即便名称缺失也不阻塞，退回 symbol 本身。
	return symbol, nil
}
