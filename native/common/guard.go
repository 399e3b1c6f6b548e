package common

import (
	"context"
	"errors"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

type callMarker struct{ module string }

// EnterCall marks ctx as executing inside module. Collaborators invoked with
// the returned context carry the marker into any nested call.
func EnterCall(ctx context.Context, module string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callMarker{module: module}, true)
}

// InCall reports whether ctx was derived from EnterCall for module.
func InCall(ctx context.Context, module string) bool {
	if ctx == nil || module == "" {
		return false
	}
	marked, _ := ctx.Value(callMarker{module: module}).(bool)
	return marked
}
