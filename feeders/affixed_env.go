// Package feeders fills configuration structs from files and environment
// variables. File feeders pick their decoder by extension; the env feeder
// overrides individual fields tagged with `env`.
package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/golobby/cast"
)

// AffixedEnvFeeder reads environment variables named PREFIX_<TAG>_SUFFIX
// into fields tagged with `env:"TAG"`.
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string
}

// NewAffixedEnvFeeder creates an AffixedEnvFeeder with the specified prefix and suffix
func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed populates structure, which must be a pointer to a struct.
func (f AffixedEnvFeeder) Feed(structure any) error {
	inputType := reflect.TypeOf(structure)
	if inputType == nil || inputType.Kind() != reflect.Pointer || inputType.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	if f.Prefix == "" && f.Suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}
	return processStructFields(reflect.ValueOf(structure).Elem(), strings.ToUpper(f.Prefix), strings.ToUpper(f.Suffix))
}

func processStructFields(rv reflect.Value, prefix, suffix string) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !fieldType.IsExported() {
			continue
		}
		if err := processField(field, &fieldType, prefix, suffix); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func processField(field reflect.Value, fieldType *reflect.StructField, prefix, suffix string) error {
	switch field.Kind() {
	case reflect.Struct:
		return processStructFields(field, prefix, suffix)
	case reflect.Pointer:
		if !field.IsZero() && field.Elem().Kind() == reflect.Struct {
			return processStructFields(field.Elem(), prefix, suffix)
		}
	}
	if envTag, exists := fieldType.Tag.Lookup("env"); exists {
		return setFieldFromEnv(field, envTag, prefix, suffix)
	}
	return nil
}

func setFieldFromEnv(field reflect.Value, envTag, prefix, suffix string) error {
	envName := strings.ToUpper(envTag)
	if prefix != "" {
		envName = prefix + "_" + envName
	}
	if suffix != "" {
		envName = envName + "_" + suffix
	}
	if envValue := os.Getenv(envName); envValue != "" {
		return setFieldValue(field, envValue)
	}
	return nil
}

func setFieldValue(field reflect.Value, strValue string) error {
	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("%w: %v: %w", ErrEnvConversion, field.Type(), err)
	}
	if !field.CanSet() {
		return ErrFieldCannotBeSet
	}
	field.Set(reflect.ValueOf(convertedValue).Convert(field.Type()))
	return nil
}
