package config

import (
	"fmt"
	"reflect"

	"github.com/golobby/cast"
)

const tagDefault = "default"

// ProcessDefaults sets every zero-valued field carrying a `default` tag.
func ProcessDefaults(cfg any) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ErrConfigNotPointer
	}
	return processStructDefaults(v.Elem())
}

func processStructDefaults(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := processStructDefaults(field); err != nil {
				return err
			}
			continue
		}

		defaultVal, hasDefault := fieldType.Tag.Lookup(tagDefault)
		if !hasDefault || !field.IsZero() {
			continue
		}
		switch field.Kind() {
		case reflect.String, reflect.Bool,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
		default:
			return fmt.Errorf("%w: %s (%s)", ErrUnsupportedTypeForDefault, fieldType.Name, field.Kind())
		}
		value, err := cast.FromType(defaultVal, field.Type())
		if err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", fieldType.Name, err)
		}
		field.Set(reflect.ValueOf(value).Convert(field.Type()))
	}
	return nil
}
