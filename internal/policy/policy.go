// Package policy implements the registry's optional custom routing hook:
// an operator-supplied Lua script that can override which provider a
// model name resolves to. Most deployments never set this — the
// registry's built-in exact-then-prefix match (internal/registry) covers
// the common case — but a gateway fronting many lookalike model names
// across vendors sometimes needs a rule a static map can't express.
package policy

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/corvidlabs/aigateway/internal/apierr"
)

// Router evaluates a Lua script to pick a provider name for a model. The
// script must define a global function `route(model)` returning a
// string provider name, or nil/"" to defer to the registry's default
// resolution.
type Router struct {
	script string
}

// Load runs source once in a throwaway interpreter, failing fast on a
// syntax error or a missing `route` function so misconfiguration surfaces
// at startup rather than on the first request. Only the source text is
// kept; Route runs it again on every call.
func Load(source string) (*Router, error) {
	state := lua.NewState()
	defer state.Close()

	if err := state.DoString(source); err != nil {
		return nil, apierr.Wrap(apierr.KindConfiguration, err, "loading routing policy script")
	}
	if fn := state.GetGlobal("route"); fn.Type() != lua.LTFunction {
		return nil, apierr.New(apierr.KindConfiguration, "routing policy script must define a route(model) function")
	}

	return &Router{script: source}, nil
}

// Route runs route(model) and returns the provider name it picked, or
// "" if the script deferred to default resolution. Each call gets a
// fresh *lua.LState — gopher-lua states are not safe for concurrent use,
// and a fresh interpreter per call is cheap next to the network round
// trip resolution precedes.
func (r *Router) Route(model string) (string, error) {
	state := lua.NewState()
	defer state.Close()

	if err := state.DoString(r.script); err != nil {
		return "", apierr.Wrap(apierr.KindInternal, err, "evaluating routing policy script")
	}

	if err := state.CallByParam(lua.P{
		Fn:      state.GetGlobal("route"),
		NRet:    1,
		Protect: true,
	}, lua.LString(model)); err != nil {
		return "", apierr.Wrap(apierr.KindInternal, err, "calling route(%q)", model)
	}

	ret := state.Get(-1)
	state.Pop(1)

	switch v := ret.(type) {
	case lua.LString:
		return string(v), nil
	case *lua.LNilType:
		return "", nil
	default:
		return "", apierr.New(apierr.KindInternal, "route(%q) returned non-string %s", model, fmt.Sprint(v))
	}
}
