package config

import "fmt"

var validModes = map[string]bool{"full": true, "update": true, "auto": true}

var validPeriods = map[string]bool{"1": true, "5": true, "15": true, "30": true, "60": true}

func validate(c *Config) error {
	if !validModes[c.Sync.Mode] {
		return fmt.Errorf("不支持的模式: %s（支持 full / update / auto）", c.Sync.Mode)
	}
	if c.Sync.MaxRetries > 10 {
		return fmt.Errorf("max_retries 过大: %d", c.Sync.MaxRetries)
	}
	for _, p := range c.Minute.Periods {
		if !validPeriods[p] {
			return fmt.Errorf("不支持的分钟周期: %s", p)
		}
	}
	switch c.Provider.Adjust {
	case "", "qfq", "hfq":
	default:
		return fmt.Errorf("不支持的复权方式: %s", c.Provider.Adjust)
	}
	if c.Server.AutoUpdateMinutes < 0 {
		return fmt.Errorf("auto_update_minutes 不能为负")
	}
	return nil
}
