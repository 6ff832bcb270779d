// disk_usage.go — опрос ёмкости точки монтирования тома через statfs.
// Unix-специфичный код; сигнатура соответствует service.DiskUsageFunc.
package main

import (
	"fmt"
	"syscall"
)

// getDiskUsage возвращает total, used, available (в байтах) для точки
// монтирования. available считается по Bavail — блокам, доступным
// непривилегированному процессу, как и место под принимаемые файлы.
func getDiskUsage(mountPoint string) (total, used, available int64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(mountPoint, &st); err != nil {
		return 0, 0, 0, fmt.Errorf("statfs точки монтирования %s: %w", mountPoint, err)
	}

	blockSize := int64(st.Bsize)
	total = int64(st.Blocks) * blockSize
	available = int64(st.Bavail) * blockSize
	used = total - available
	return total, used, available, nil
}
