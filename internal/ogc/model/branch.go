package model

import (
	"context"
	"encoding/json"
	"sync"
)

// Branch is the outcome of one fan-out slot: a value, or the reason it was dropped.
type Branch[T any] struct {
	Value T
	Err   error
}

func Ok[T any](v T) Branch[T] { return Branch[T]{Value: v} }

func Failed[T any](err error) Branch[T] { return Branch[T]{Err: err} }

func (b Branch[T]) OK() bool { return b.Err == nil }

// Reason returns the failure message, or "" for a successful branch.
func (b Branch[T]) Reason() string {
	if b.Err == nil {
		return ""
	}
	return b.Err.Error()
}

func (b Branch[T]) MarshalJSON() ([]byte, error) {
	if b.Err != nil {
		return []byte("null"), nil
	}
	return json.Marshal(b.Value)
}

// Values returns the successful values in slot order.
func Values[T any](bs []Branch[T]) []T {
	out := make([]T, 0, len(bs))
	for _, b := range bs {
		if b.Err == nil {
			out = append(out, b.Value)
		}
	}
	return out
}

// Settle runs fn for every index in its own goroutine and waits for all of them.
// Results keep index order; a failing call only fails its own slot, which still
// carries whatever value fn returned alongside the error.
func Settle[T any](ctx context.Context, n int, fn func(ctx context.Context, i int) (T, error)) []Branch[T] {
	out := make([]Branch[T], n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			v, err := fn(ctx, i)
			out[i] = Branch[T]{Value: v, Err: err}
		}()
	}
	wg.Wait()
	return out
}
