package util

import (
	"strconv"
)

// ParsePagination 解析分页参数，提供默认值并限制上限
func ParsePagination(pageStr, limitStr string) (int, int) {
	page, _ := strconv.Atoi(pageStr)
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(limitStr)
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// Float64Ptr returns a pointer to v. Handy for nullable score columns.
func Float64Ptr(v float64) *float64 {
	return &v
}
