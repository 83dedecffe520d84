package counter

import (
	"errors"
	"math"
	"strings"
)

// ErrNotCount 表示存储内容没有可读的计数，调用方按 0 处理。
var ErrNotCount = errors.New("content is not a counter value")

// ParseCount 读取存储的计数文本。忽略首尾空白，取开头连续的十进制数字，
// 所以 "42\n" 和 "42 visits" 都读作 42。
// 没有前导数字或带负号返回 ErrNotCount；超出 int64 返回 ErrOverflow，
// 这种情况不能当作 0，否则会抹掉远端的值。
func ParseCount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")

	var n int64
	digits := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		d := int64(r - '0')
		if n > (math.MaxInt64-d)/10 {
			return 0, ErrOverflow
		}
		n = n*10 + d
		digits++
	}
	if digits == 0 {
		return 0, ErrNotCount
	}
	return n, nil
}
