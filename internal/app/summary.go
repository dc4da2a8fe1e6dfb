package app

import (
	"fmt"
	"strings"

	"etfsync/internal/syncer"
)

// PrintSummary 在一次性运行结束时输出人类可读的汇总。
func PrintSummary(stats syncer.RunStats) {
	line := strings.Repeat("=", 60)
	fmt.Println()
	fmt.Println(line)
	fmt.Printf("任务完成! 成功: %d, 失败: %d\n", stats.SuccessCount, stats.FailCount)
	if stats.TotalNewRecords > 0 {
		fmt.Printf("新增数据记录: %d\n", stats.TotalNewRecords)
	}
	fmt.Printf("耗时: %.1f 秒\n", stats.Elapsed.Seconds())
	if stats.Interrupted {
		fmt.Println("⚠️  运行被中断，进度已保存，下次运行将从断点继续")
	}
	fmt.Println(line)
	if len(stats.FailedSymbols) > 0 {
		fmt.Println("\n失败的代码:")
		for _, symbol := range stats.FailedSymbols {
			fmt.Printf("  - %s\n", symbol)
		}
	}
}
