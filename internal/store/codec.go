package store

import (
	"fmt"
	"strconv"
)

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("store: 解析数值 %q 失败: %w", s, err)
	}
	return v, nil
}
