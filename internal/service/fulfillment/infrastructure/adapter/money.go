// internal/service/fulfillment/infrastructure/adapter/money.go
package adapter

import (
	"strings"

	"github.com/pkg/errors"
)

// parseDecimalMinor 把渠道返回的十进制金额字符串（如 "120.50"）转成最小货币单位。
// 两家渠道都以字符串传金额，绝不走 float，避免精度丢失。
func parseDecimalMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if len(fracPart) > 2 {
		// 超过两位小数的尾数必须全为零，否则无法无损表示
		for _, c := range fracPart[2:] {
			if c != '0' {
				return 0, errors.Errorf("amount %q has sub-minor precision", s)
			}
		}
		fracPart = fracPart[:2]
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}

	var minor int64
	for _, c := range intPart + fracPart {
		if c < '0' || c > '9' {
			return 0, errors.Errorf("malformed amount %q", s)
		}
		minor = minor*10 + int64(c-'0')
	}
	if negative {
		minor = -minor
	}
	return minor, nil
}
