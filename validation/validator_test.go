package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharederrors "gqm/errors"
)

type address struct {
	City string `validate:"required"`
}

type person struct {
	Validation
	ID      int64
	Name    string `validate:"required,max=5"`
	Email   string `validate:"omitempty,email"`
	Age     int    `validate:"gte=0,lte=150"`
	Address address
}

// TestValidation_FirstErrorPerSubject 测试同一属性只记录第一条错误
func TestValidation_FirstErrorPerSubject(t *testing.T) {
	var v Validation
	assert.True(t, v.Valid())
	assert.NoError(t, v.Err())

	v.AddValidationError(Uniqueness("Name"))
	v.AddValidationError(Mandatory("Name"))
	v.AddValidationError(Invalid("Boss", "not found"))

	errs := v.ValidationErrors()
	require.Len(t, errs, 2)
	assert.Equal(t, KindUniqueness, errs[0].Kind)
	assert.Equal(t, KindInvalid, errs[1].Kind)
	assert.False(t, v.IsSubjectValid("Name"))
	assert.True(t, v.IsSubjectValid("Age"))

	err := v.Err()
	require.Error(t, err)
	assert.True(t, sharederrors.IsErrorCode(err, sharederrors.ErrCodeValidation))
	assert.Contains(t, err.Error(), "UNIQUENESS(Name)")

	v.ResetValidation()
	assert.True(t, v.Valid())
}

// TestTagValidator_Check 测试 validate 标签检查
func TestTagValidator_Check(t *testing.T) {
	tests := []struct {
		name string
		bean person
		want []ValidationError
	}{
		{
			name: "有效",
			bean: person{Name: "ann", Email: "ann@example.com", Age: 30, Address: address{City: "x"}},
		},
		{
			name: "缺少必填",
			bean: person{Age: 1, Address: address{City: "x"}},
			want: []ValidationError{Mandatory("Name")},
		},
		{
			name: "超出范围",
			bean: person{Name: "toolongname", Email: "bad", Age: 200, Address: address{City: "x"}},
			want: []ValidationError{
				Invalid("Name", "max=5"),
				Invalid("Email", "email"),
				Invalid("Age", "lte=150"),
			},
		},
		{
			name: "嵌套结构",
			bean: person{Name: "ann"},
			want: []ValidationError{Mandatory("Address.City")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Default().Check(&tt.bean)
			require.NoError(t, err)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTagValidator_NotAStruct(t *testing.T) {
	_, err := NewTagValidator().Check(42)
	require.Error(t, err)
	assert.True(t, sharederrors.IsErrorCode(err, sharederrors.ErrCodeInvalidInput))

	errs, err := NoopValidator{}.Check(42)
	assert.NoError(t, err)
	assert.Nil(t, errs)
}

func TestValidationError_Error(t *testing.T) {
	assert.Equal(t, "UNIQUENESS(Name)", Uniqueness("Name").Error())
	assert.Equal(t, "WRONGTYPE(Items): not a collection", WrongType("Items", "not a collection").Error())
}
