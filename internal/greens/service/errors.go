package service

import (
	"errors"
	"fmt"
	"strings"
)

// 错误定义
var (
	ErrProfileNotFound = errors.New("variety profile not found")
)

// FieldError 单项校验错误: one violation, attributed to a field or to a
// physical entity (tray number) for operator clarity.
type FieldError struct {
	Field  string `json:"field,omitempty"`
	Entity string `json:"entity,omitempty"`
	Reason string `json:"reason"`
}

// ValidationErrors 校验错误集合: all violations collected before the
// operation is rejected; nothing is mutated when returned.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		switch {
		case fe.Field != "":
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Reason))
		case fe.Entity != "":
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Entity, fe.Reason))
		default:
			parts = append(parts, fe.Reason)
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// BusinessError 业务规则错误: a user-facing reason the caller may correct
// and retry.
type BusinessError struct {
	Reason string
}

func (e *BusinessError) Error() string {
	return e.Reason
}

// NewBusinessError 创建业务规则错误
func NewBusinessError(format string, args ...interface{}) *BusinessError {
	return &BusinessError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError 无效阶段流转: the unit is left unchanged.
type InvalidTransitionError struct {
	UnitID     string
	TrayNumber string
	From       string
	To         string
	Reason     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid stage transition for tray %s (%s -> %s): %s",
		e.TrayNumber, e.From, e.To, e.Reason)
}
