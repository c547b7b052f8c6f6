package clog

import (
	"context"
	"maps"
	"sync"
)

const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

// attributeBag is a mutable set of log attributes shared by everything
// running under one request context.
type attributeBag struct {
	mu    sync.RWMutex
	attrs map[string]any
}

type bagKey struct{}

func bagFrom(ctx context.Context) *attributeBag {
	b, _ := ctx.Value(bagKey{}).(*attributeBag)
	return b
}

// ContextWithSlog attaches a fresh attribute bag to ctx.
func ContextWithSlog(ctx context.Context) context.Context {
	return context.WithValue(ctx, bagKey{}, &attributeBag{attrs: make(map[string]any)})
}

func AddAttribute(ctx context.Context, key string, value any) {
	b := bagFrom(ctx)
	if b == nil {
		return
	}
	b.mu.Lock()
	b.attrs[key] = value
	b.mu.Unlock()
}

func AddAttributes(ctx context.Context, attributes map[string]any) {
	b := bagFrom(ctx)
	if b == nil {
		return
	}
	b.mu.Lock()
	mergeInto(b.attrs, attributes)
	b.mu.Unlock()
}

func GetAttribute[T any](ctx context.Context, key string) T {
	var zero T
	b := bagFrom(ctx)
	if b == nil {
		return zero
	}
	b.mu.RLock()
	raw, ok := b.attrs[key]
	b.mu.RUnlock()
	if !ok {
		return zero
	}
	v, ok := raw.(T)
	if !ok {
		return zero
	}
	return v
}

// GetAttributes returns a copy of the attributes attached to ctx.
func GetAttributes(ctx context.Context) map[string]any {
	b := bagFrom(ctx)
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.attrs)
}

// mergeInto merges nested maps key by key instead of replacing them.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		sub, isMap := v.(map[string]any)
		if !isMap {
			dst[k] = v
			continue
		}
		if existing, ok := dst[k].(map[string]any); ok {
			mergeInto(existing, sub)
			continue
		}
		dst[k] = sub
	}
}

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func GetError(ctx context.Context) error {
	return GetAttribute[error](ctx, ErrorAttributeKey)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

func GetStack(ctx context.Context) string {
	return GetAttribute[string](ctx, StackAttributeKey)
}
