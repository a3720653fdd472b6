// Package validation 提供 bean 的验证约定
//
// 管理器的 Validate 不返回验证失败，而是把错误累积到实现 Validated 的 bean 上，
// 调用方在 Validate 返回后检查。bean 一般嵌入 Validation 来获得该能力：
//
//	type Person struct {
//	    validation.Validation
//	    ID   int64
//	    Name string `gqm:"unique" validate:"required,max=64"`
//	}
//
// 字段级规则使用 validate 标签，由 go-playground/validator 检查。
package validation

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"gqm/errors"
)

// Kind 验证错误种类
type Kind string

const (
	KindUniqueness Kind = "UNIQUENESS"
	KindInvalid    Kind = "INVALID"
	KindMandatory  Kind = "MANDATORY"
	KindWrongType  Kind = "WRONGTYPE"
)

// ValidationError 单条验证错误，Subject 为属性名（组合唯一约束为以逗号连接的属性名）
type ValidationError struct {
	Kind    Kind
	Subject string
	Detail  string
}

func (e ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Subject, e.Detail)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.Subject)
}

// Uniqueness 属性值（或组合）已被其他 bean 使用
func Uniqueness(subject string) ValidationError {
	return ValidationError{Kind: KindUniqueness, Subject: subject}
}

// Invalid 属性值不合法，例如引用的 bean 不存在
func Invalid(subject, detail string) ValidationError {
	return ValidationError{Kind: KindInvalid, Subject: subject, Detail: detail}
}

// Mandatory 缺少必填值
func Mandatory(subject string) ValidationError {
	return ValidationError{Kind: KindMandatory, Subject: subject}
}

// WrongType 属性值类型不符合声明
func WrongType(subject, detail string) ValidationError {
	return ValidationError{Kind: KindWrongType, Subject: subject, Detail: detail}
}

// Validated 可累积验证错误的 bean
type Validated interface {
	AddValidationError(err ValidationError)
	ValidationErrors() []ValidationError
	ResetValidation()
	IsSubjectValid(subject string) bool
}

// Validation 可嵌入的 Validated 实现；同一属性只记录第一条错误
type Validation struct {
	errs []ValidationError
}

var _ Validated = (*Validation)(nil)

func (v *Validation) AddValidationError(err ValidationError) {
	if !v.IsSubjectValid(err.Subject) {
		return
	}
	v.errs = append(v.errs, err)
}

func (v *Validation) ValidationErrors() []ValidationError {
	return append([]ValidationError(nil), v.errs...)
}

func (v *Validation) ResetValidation() {
	v.errs = nil
}

func (v *Validation) IsSubjectValid(subject string) bool {
	for _, e := range v.errs {
		if e.Subject == subject {
			return false
		}
	}
	return true
}

// Valid 是否没有任何验证错误
func (v *Validation) Valid() bool {
	return len(v.errs) == 0
}

// Err 将累积的错误转换为 VALIDATION_ERROR，没有错误时返回 nil
func (v *Validation) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(v.errs))
	for _, e := range v.errs {
		parts = append(parts, e.Error())
	}
	return errors.NewError(errors.ErrCodeValidation, strings.Join(parts, "; ")).
		WithContext("errors", v.ValidationErrors())
}

// IValidator 字段级检查
type IValidator interface {
	Check(bean any) ([]ValidationError, error)
}

// NoopValidator 不做任何检查
type NoopValidator struct{}

func (NoopValidator) Check(any) ([]ValidationError, error) { return nil, nil }

// TagValidator 基于 validate 标签的检查
type TagValidator struct {
	v *validator.Validate
}

var (
	defaultOnce sync.Once
	defaultTV   *TagValidator
)

// NewTagValidator 创建检查器
func NewTagValidator() *TagValidator {
	return &TagValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Default 返回共享的检查器（validator 内部缓存结构体信息，共享即可）
func Default() *TagValidator {
	defaultOnce.Do(func() { defaultTV = NewTagValidator() })
	return defaultTV
}

// Engine 返回底层 validator，可用于注册自定义规则
func (t *TagValidator) Engine() *validator.Validate {
	return t.v
}

// Check 检查 bean 的 validate 标签
//
// required 规则映射为 MANDATORY，其余规则映射为 INVALID；Subject 为去掉根类型名的字段路径。
// bean 不是结构体（指针）时返回错误。
func (t *TagValidator) Check(bean any) ([]ValidationError, error) {
	err := t.v.Struct(bean)
	if err == nil {
		return nil, nil
	}

	var invalid *validator.InvalidValidationError
	if stdErrors.As(err, &invalid) {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "validation: bean must be a struct")
	}
	var fieldErrs validator.ValidationErrors
	if !stdErrors.As(err, &fieldErrs) {
		return nil, errors.WrapError(err, errors.ErrCodeInternal, "validation: unexpected validator error")
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		subject := fe.StructNamespace()
		if _, rest, ok := strings.Cut(subject, "."); ok {
			subject = rest
		}
		if fe.Tag() == "required" {
			out = append(out, Mandatory(subject))
			continue
		}
		detail := fe.Tag()
		if fe.Param() != "" {
			detail += "=" + fe.Param()
		}
		out = append(out, Invalid(subject, detail))
	}
	return out, nil
}
