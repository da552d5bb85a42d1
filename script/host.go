package script

import (
	"context"
	"io"
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/GoCodeAlone/modhost"
)

// hostTable exposes the plugin context to Lua. Every call runs with the
// hook's context, so capability checks see the calling plugin.
func hostTable(ctx context.Context, L *lua.LState, pc *modhost.Context) *lua.LTable {
	d := pc.Description()
	fns := map[string]lua.LGFunction{
		"id": func(L *lua.LState) int {
			L.Push(lua.LString(d.ID()))
			return 1
		},
		"version": func(L *lua.LState) int {
			L.Push(lua.LString(d.Descriptor().Version.String()))
			return 1
		},
		"log": func(L *lua.LState) int {
			level, msg := L.CheckString(1), L.CheckString(2)
			logger := pc.Logger()
			switch level {
			case "debug":
				logger.Debug(msg)
			case "warn":
				logger.Warn(msg)
			case "error":
				logger.Error(msg)
			default:
				logger.Info(msg)
			}
			return 0
		},
		"read": func(L *lua.LState) int {
			f, err := pc.DataFile(ctx, L.CheckString(1), os.O_RDONLY, 0)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			defer f.Close()
			data, err := io.ReadAll(f)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			L.Push(lua.LString(data))
			return 1
		},
		"write": func(L *lua.LState) int {
			name, content := L.CheckString(1), L.CheckString(2)
			f, err := pc.DataFile(ctx, name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			_, werr := f.WriteString(content)
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				L.RaiseError("%s", werr.Error())
			}
			return 0
		},
		"plugins": func(L *lua.LState) int {
			plugins, err := pc.Plugins().GetPlugins(ctx)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			ids := L.NewTable()
			for _, p := range plugins {
				ids.Append(lua.LString(p.ID()))
			}
			L.Push(ids)
			return 1
		},
	}
	t := L.NewTable()
	for name, fn := range fns {
		L.SetField(t, name, L.NewFunction(fn))
	}
	return t
}
