package scheduler

import "github.com/paiban/shiftplan/pkg/model"

// TargetInput 计算需求人数的输入
type TargetInput struct {
	Shift     *model.Shift
	Override  *model.CalendarShiftOverride // 可为 nil
	Exception *model.ShiftException        // 可为 nil
	Capacity  int                          // 日历产能百分比
}

// CalculateTarget 计算班次某天的需求人数。
// 顺序：日历调整的 min 替换基准 → 例外减产百分比 → 日历产能百分比，
// 百分比均向上取整，最后限定在 [min, max]，max 取日历调整值（若有）。
func CalculateTarget(in TargetInput) int {
	target := in.Shift.TargetWorkers
	maxWorkers := in.Shift.MaxWorkers

	if in.Override != nil {
		if in.Override.MinWorkers != nil {
			target = *in.Override.MinWorkers
		}
		if in.Override.MaxWorkers != nil {
			maxWorkers = *in.Override.MaxWorkers
		}
	}

	if in.Exception != nil && in.Exception.ReducedCapacity != nil {
		target = scaleUp(target, *in.Exception.ReducedCapacity)
	}

	if in.Capacity != 100 {
		target = scaleUp(target, in.Capacity)
	}

	if target < in.Shift.MinWorkers {
		target = in.Shift.MinWorkers
	}
	// 上限优先
	if target > maxWorkers {
		target = maxWorkers
	}
	if target < 0 {
		target = 0
	}
	return target
}

// scaleUp 按百分比缩放并向上取整
func scaleUp(v, percent int) int {
	if v <= 0 || percent <= 0 {
		return 0
	}
	return (v*percent + 99) / 100
}
