package schema

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// Scanner 返回写入 dest 的 sql.Scanner
//
// 与直接 Scan 到字段不同，NULL 会写入零值（指针字段写入 nil），
// 驱动返回的 int64/float64/[]byte/string/time.Time 按目标类型转换。
func Scanner(dest reflect.Value) sql.Scanner {
	return &fieldScanner{dest: dest}
}

type fieldScanner struct {
	dest reflect.Value
}

func (s *fieldScanner) Scan(src any) error {
	return Assign(s.dest, src)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Assign 将驱动值写入字段
func Assign(dest reflect.Value, src any) error {
	if src == nil {
		dest.SetZero()
		return nil
	}
	if dest.Kind() == reflect.Pointer {
		elem := reflect.New(dest.Type().Elem())
		if err := Assign(elem.Elem(), src); err != nil {
			return err
		}
		dest.Set(elem)
		return nil
	}

	if dest.Type() == timeType {
		switch v := src.(type) {
		case time.Time:
			dest.Set(reflect.ValueOf(v))
			return nil
		case string:
			return assignTime(dest, v)
		case []byte:
			return assignTime(dest, string(v))
		case int64:
			dest.Set(reflect.ValueOf(time.Unix(v, 0).UTC()))
			return nil
		}
		return fmt.Errorf("schema: cannot assign %T to %s", src, dest.Type())
	}

	switch dest.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := asInt64(src)
		if err != nil {
			return err
		}
		dest.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := asInt64(src)
		if err != nil {
			return err
		}
		dest.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		switch v := src.(type) {
		case float64:
			dest.SetFloat(v)
		case float32:
			dest.SetFloat(float64(v))
		case int64:
			dest.SetFloat(float64(v))
		case []byte:
			f, err := strconv.ParseFloat(string(v), 64)
			if err != nil {
				return err
			}
			dest.SetFloat(f)
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			dest.SetFloat(f)
		default:
			return fmt.Errorf("schema: cannot assign %T to %s", src, dest.Type())
		}
	case reflect.Bool:
		switch v := src.(type) {
		case bool:
			dest.SetBool(v)
		case int64:
			dest.SetBool(v != 0)
		case []byte:
			b, err := strconv.ParseBool(string(v))
			if err != nil {
				return err
			}
			dest.SetBool(b)
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			dest.SetBool(b)
		default:
			return fmt.Errorf("schema: cannot assign %T to %s", src, dest.Type())
		}
	case reflect.String:
		switch v := src.(type) {
		case string:
			dest.SetString(v)
		case []byte:
			dest.SetString(string(v))
		case time.Time:
			dest.SetString(v.Format(time.RFC3339Nano))
		default:
			dest.SetString(fmt.Sprint(v))
		}
	case reflect.Slice:
		switch v := src.(type) {
		case []byte:
			dest.SetBytes(append([]byte(nil), v...))
		case string:
			dest.SetBytes([]byte(v))
		default:
			return fmt.Errorf("schema: cannot assign %T to %s", src, dest.Type())
		}
	default:
		return fmt.Errorf("schema: cannot assign %T to %s", src, dest.Type())
	}
	return nil
}

func asInt64(src any) (int64, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("schema: cannot convert %T to integer", src)
	}
}

func assignTime(dest reflect.Value, s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			dest.Set(reflect.ValueOf(t))
			return nil
		}
	}
	return fmt.Errorf("schema: cannot parse time %q", s)
}

// Value 返回字段写入数据库时使用的值；nil 指针写入 NULL
func Value(field reflect.Value) any {
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return nil
		}
		return field.Elem().Interface()
	}
	return field.Interface()
}
