// Package model 定义排班核心的数据模型
package model

import "strings"

// RestCode 轮班模式中表示休息的代码
const RestCode = "OFF"

// ShiftPattern 轮班模式
type ShiftPattern struct {
	Name           string   `json:"name" validate:"required"`
	ShiftCodes     []string `json:"shift_codes" validate:"required,min=1"`
	RotationPeriod int      `json:"rotation_period,omitempty" validate:"gte=0"` // 每个位置持续天数，默认1
	StartDate      string   `json:"start_date,omitempty"`                       // 模式起点，默认取范围开始
}

// IsRestCode 检查代码是否表示休息日
func IsRestCode(code string) bool {
	c := strings.TrimSpace(code)
	return c == "" || c == "-" || strings.EqualFold(c, RestCode)
}

// Period 返回轮换周期（至少为1）
func (p *ShiftPattern) Period() int {
	if p.RotationPeriod <= 0 {
		return 1
	}
	return p.RotationPeriod
}

// CodeAt 返回距模式起点 days 天时的班次代码
func (p *ShiftPattern) CodeAt(days int) string {
	n := len(p.ShiftCodes)
	if n == 0 {
		return ""
	}
	step := days / p.Period()
	if days < 0 && days%p.Period() != 0 {
		step-- // 向下取整
	}
	idx := step % n
	if idx < 0 {
		idx += n
	}
	return p.ShiftCodes[idx]
}

// WorkCodes 返回需要解析的班次代码（去重，排除休息日）
func (p *ShiftPattern) WorkCodes() []string {
	seen := make(map[string]bool)
	var codes []string
	for _, c := range p.ShiftCodes {
		if IsRestCode(c) || seen[c] {
			continue
		}
		seen[c] = true
		codes = append(codes, c)
	}
	return codes
}
