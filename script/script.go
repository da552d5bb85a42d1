// Package script lets plugin archives carry their entry points as Lua
// source.
//
// Importing the package registers a compiler for ".lua" symbol files, so
// an archive entry "example/hello/Plugin.lua" resolves the symbol
// "example.hello.Plugin". The chunk must return a table; its optional
// initialize and start functions become the plugin hooks and receive a
// host table:
//
//	local plugin = {}
//	function plugin.initialize(host)
//	  host.write("greeting.txt", "hello from " .. host.id())
//	end
//	return plugin
//
// A hook fails when it raises an error or returns a second value that is
// not nil.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/GoCodeAlone/modhost"
	"github.com/GoCodeAlone/modhost/loader"
)

// Extension is the file extension of Lua symbol files.
const Extension = ".lua"

var (
	// ErrSyntax is returned for Lua source that does not compile.
	ErrSyntax = errors.New("lua syntax error")
	// ErrNoPluginTable is returned when a chunk does not return a table.
	ErrNoPluginTable = errors.New("lua chunk must return a plugin table")
	// ErrHookFailed wraps failures raised by a Lua hook.
	ErrHookFailed = errors.New("lua hook failed")
)

func init() {
	loader.RegisterCompiler(Extension, Compile)
}

// Compile parses src once and returns a plugin constructor. Each call of
// the constructor runs the chunk in a fresh sandboxed state.
func Compile(symbol string, src []byte) (any, error) {
	chunk, err := parse.Parse(bytes.NewReader(src), symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSyntax, symbol, err)
	}
	proto, err := lua.Compile(chunk, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSyntax, symbol, err)
	}
	return func() (modhost.Plugin, error) {
		p, err := newPlugin(symbol, proto)
		if err != nil {
			return nil, err
		}
		return p, nil
	}, nil
}

// Plugin is a plugin whose hooks are Lua functions. A gopher-lua state is
// not goroutine-safe, so hook calls are serialized.
type Plugin struct {
	symbol string

	mu     sync.Mutex
	state  *lua.LState
	module *lua.LTable
}

func newPlugin(symbol string, proto *lua.FunctionProto) (*Plugin, error) {
	L := newState()
	L.Push(L.NewFunctionFromProto(proto))
	if err := L.PCall(0, 1, nil); err != nil {
		L.Close()
		return nil, fmt.Errorf("run %s: %w", symbol, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	module, ok := ret.(*lua.LTable)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("%w: %s returned %s", ErrNoPluginTable, symbol, ret.Type())
	}
	return &Plugin{symbol: symbol, state: L, module: module}, nil
}

// newState opens the safe subset of the standard library only.
func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// Initialize calls the initialize function of the plugin table.
func (p *Plugin) Initialize(ctx context.Context, pc *modhost.Context) error {
	return p.call(ctx, pc, "initialize")
}

// Start calls the start function of the plugin table.
func (p *Plugin) Start(ctx context.Context, pc *modhost.Context) error {
	return p.call(ctx, pc, "start")
}

// Close releases the Lua state.
func (p *Plugin) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != nil {
		p.state.Close()
		p.state = nil
	}
}

func (p *Plugin) call(ctx context.Context, pc *modhost.Context, hook string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return fmt.Errorf("%w: %s.%s: state closed", ErrHookFailed, p.symbol, hook)
	}
	L := p.state

	fn := p.module.RawGetString(hook)
	if fn == lua.LNil {
		return nil
	}
	if fn.Type() != lua.LTFunction {
		return fmt.Errorf("%w: %s.%s is a %s", ErrHookFailed, p.symbol, hook, fn.Type())
	}

	L.SetContext(ctx)
	defer L.RemoveContext()
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 2, Protect: true}, hostTable(ctx, L, pc)); err != nil {
		return fmt.Errorf("%w: %s.%s: %w", ErrHookFailed, p.symbol, hook, err)
	}
	reason := L.Get(-1)
	L.Pop(2)
	if reason != lua.LNil {
		return fmt.Errorf("%w: %s.%s: %s", ErrHookFailed, p.symbol, hook, reason.String())
	}
	return nil
}
