package modhost

import (
	"fmt"
	"reflect"
)

var (
	pluginType = reflect.TypeFor[Plugin]()
	errType    = reflect.TypeFor[error]()
)

// instantiate builds a plugin from a resolved entry symbol. Accepted symbols
// are zero argument constructors returning a Plugin implementation (and
// optionally an error), and reflect.Type values of struct types whose
// pointer implements Plugin.
func instantiate(symbol any) (p Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: constructor panicked: %v", ErrNotInstantiable, r)
		}
	}()

	switch s := symbol.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil symbol", ErrNotInstantiable)
	case func() Plugin:
		return nonNil(s(), nil)
	case func() (Plugin, error):
		return nonNil(s())
	case reflect.Type:
		return fromType(s)
	}

	v := reflect.ValueOf(symbol)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %s is neither a constructor nor a type", ErrNotInstantiable, t)
	}
	if t.NumIn() != 0 || t.IsVariadic() {
		return nil, fmt.Errorf("%w: constructor %s takes arguments", ErrNotInstantiable, t)
	}
	switch {
	case t.NumOut() == 1 && t.Out(0).Implements(pluginType):
	case t.NumOut() == 2 && t.Out(0).Implements(pluginType) && t.Out(1) == errType:
	default:
		return nil, fmt.Errorf("%w: constructor %s does not return a Plugin", ErrNotInstantiable, t)
	}
	if v.IsNil() {
		return nil, fmt.Errorf("%w: nil constructor", ErrNotInstantiable)
	}

	out := v.Call(nil)
	var callErr error
	if len(out) == 2 && !out[1].IsNil() {
		callErr = out[1].Interface().(error)
	}
	if out[0].Kind() == reflect.Interface && out[0].IsNil() {
		return nonNil(nil, callErr)
	}
	p, _ = out[0].Interface().(Plugin)
	return nonNil(p, callErr)
}

func fromType(t reflect.Type) (Plugin, error) {
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v is not a struct type", ErrNotInstantiable, t)
	}
	if !reflect.PointerTo(t).Implements(pluginType) {
		return nil, fmt.Errorf("%w: *%s does not implement Plugin", ErrNotInstantiable, t)
	}
	return reflect.New(t).Interface().(Plugin), nil
}

func nonNil(p Plugin, err error) (Plugin, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotInstantiable, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: constructor returned nil", ErrNotInstantiable)
	}
	return p, nil
}
