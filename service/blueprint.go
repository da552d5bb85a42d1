package service

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
)

// Factory is one way of constructing a blueprint's type.
type Factory struct {
	fn        reflect.Value
	params    []reflect.Type
	returnErr bool
}

// Name returns the function name of the factory.
func (f *Factory) Name() string {
	if fn := runtime.FuncForPC(f.fn.Pointer()); fn != nil {
		return fn.Name()
	}
	return f.fn.Type().String()
}

// Arity returns the number of parameters.
func (f *Factory) Arity() int { return len(f.params) }

// injectable reports whether every parameter is a service reference.
// Zero-parameter factories are not injectable.
func (f *Factory) injectable() bool {
	if len(f.params) == 0 {
		return false
	}
	for _, p := range f.params {
		if !isRefType(p) {
			return false
		}
	}
	return true
}

// Blueprint collects the factories that can build a T and selects one for
// dependency injected construction.
//
// Selection order: the preferred factory if one is set, then the injectable
// factory with the most parameters, then a factory without parameters.
// Factories taking anything other than Ref parameters are never selected
// automatically.
type Blueprint[T any] struct {
	preferred *Factory
	factories []*Factory
	err       error
}

// NewBlueprint returns an empty blueprint.
func NewBlueprint[T any]() *Blueprint[T] {
	return &Blueprint[T]{}
}

// Factory adds a constructor. fn must be a function returning T or
// (T, error).
func (b *Blueprint[T]) Factory(fn any) *Blueprint[T] {
	f, err := newFactory[T](fn)
	if err != nil {
		b.fail(err)
		return b
	}
	b.factories = append(b.factories, f)
	return b
}

// Preferred marks fn as the factory to use. Its parameters must all be
// Ref values, or it must take none.
func (b *Blueprint[T]) Preferred(fn any) *Blueprint[T] {
	f, err := newFactory[T](fn)
	if err != nil {
		b.fail(err)
		return b
	}
	b.preferred = f
	b.factories = append(b.factories, f)
	return b
}

func (b *Blueprint[T]) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Select returns the factory Instantiate would use, or nil when none is
// usable.
func (b *Blueprint[T]) Select() (*Factory, error) {
	if b.err != nil {
		return nil, b.err
	}
	if p := b.preferred; p != nil {
		if len(p.params) > 0 && !p.injectable() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPreferredFactory, p.Name())
		}
		return p, nil
	}

	var best *Factory
	for _, f := range b.factories {
		if f.injectable() && (best == nil || f.Arity() > best.Arity()) {
			best = f
		}
	}
	if best != nil {
		return best, nil
	}
	for _, f := range b.factories {
		if f.Arity() == 0 {
			return f, nil
		}
	}
	return nil, nil
}

// Instantiate builds a T from b, resolving every Ref parameter through r.
// ok is false when the blueprint has no usable factory.
func Instantiate[T any](ctx context.Context, r *Registry, b *Blueprint[T]) (v T, ok bool, err error) {
	f, err := b.Select()
	if err != nil || f == nil {
		return v, false, err
	}

	args := make([]reflect.Value, len(f.params))
	for i, p := range f.params {
		ref := reflect.New(p)
		binder := ref.Interface().(slotRef)
		slot, err := r.Service(ctx, binder.serviceType())
		if err != nil {
			return v, false, err
		}
		binder.attach(slot)
		args[i] = ref.Elem()
	}

	var out []reflect.Value
	err = call(func() error {
		out = f.fn.Call(args)
		return nil
	})
	if err != nil {
		return v, false, fmt.Errorf("factory %s: %w", f.Name(), err)
	}
	if f.returnErr && !out[1].IsNil() {
		return v, false, fmt.Errorf("factory %s: %w", f.Name(), out[1].Interface().(error))
	}
	if res, isT := out[0].Interface().(T); isT {
		v = res
	}
	return v, true, nil
}

var errorType = reflect.TypeFor[error]()

func newFactory[T any](fn any) (*Factory, error) {
	want := reflect.TypeFor[T]()
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		return nil, fmt.Errorf("%w: %T is not a function", ErrInvalidFactory, fn)
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("%w: %s is variadic", ErrInvalidFactory, ft)
	}
	switch {
	case ft.NumOut() == 1 && ft.Out(0).AssignableTo(want):
	case ft.NumOut() == 2 && ft.Out(0).AssignableTo(want) && ft.Out(1) == errorType:
	default:
		return nil, fmt.Errorf("%w: %s does not return %s", ErrInvalidFactory, ft, typeName(want))
	}

	f := &Factory{fn: fv, returnErr: ft.NumOut() == 2}
	for i := range ft.NumIn() {
		f.params = append(f.params, ft.In(i))
	}
	return f, nil
}
