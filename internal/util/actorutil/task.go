package actorutil

import (
	"context"
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

type SafeBackgroundTask[T any] struct {
	ctx       actor.Context
	fn        func(context.Context) (*T, error)
	timeout   *time.Duration
	onError   func(error)
	recover   func(error) T
	onSuccess func(T)
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		ctx: ctx,
		fn: func(context.Context) (*T, error) {
			return fn()
		},
	}
}

// NewBackgroundTaskCtx passes a context to fn that is cancelled once the
// task timeout elapses.
func NewBackgroundTaskCtx[T any](ctx actor.Context, fn func(context.Context) (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		ctx: ctx,
		fn:  fn,
	}
}

func NewBackgroundTaskNoError[T any](ctx actor.Context, fn func() *T) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		ctx: ctx,
		fn: func(context.Context) (*T, error) {
			return fn(), nil
		},
	}
}

func NewBackgroundTaskErr(ctx actor.Context, fn func(context.Context) error) *SafeBackgroundTask[any] {
	return &SafeBackgroundTask[any]{
		ctx: ctx,
		fn: func(c context.Context) (*any, error) {
			return nil, fn(c)
		},
	}
}

func (t *SafeBackgroundTask[T]) WithTimeout(timeout time.Duration) *SafeBackgroundTask[T] {
	t.timeout = &timeout
	return t
}

func (t *SafeBackgroundTask[T]) OnError(fn func(error)) *SafeBackgroundTask[T] {
	t.onError = fn
	return t
}

func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

func (t *SafeBackgroundTask[T]) OnSuccess(fn func(T)) *SafeBackgroundTask[T] {
	t.onSuccess = fn
	return t
}

func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	t.onSuccess = func(value T) {
		t.ctx.Send(pid, value)
	}
	t.Run()
}

// PipeToAsync runs the task on its own goroutine so the calling actor keeps
// processing messages. The actor context must not be touched from there,
// so the result goes through the root context.
func (t *SafeBackgroundTask[T]) PipeToAsync(pid *actor.PID) {
	root := t.ctx.ActorSystem().Root
	t.onSuccess = func(value T) {
		root.Send(pid, value)
	}
	go t.Run()
}

func (t *SafeBackgroundTask[T]) Run() {
	taskCtx, cancel := context.Background(), func() {}
	if t.timeout != nil {
		taskCtx, cancel = context.WithTimeout(taskCtx, *t.timeout)
	}
	defer cancel()

	bgFn := io.Eval(func() (*T, error) {
		return t.fn(taskCtx)
	})
	bg := io.Map(bgFn, func(a *T) T {
		if a != nil {
			return *a
		}
		panic(errors.New("result is nil"))
	})
	if t.timeout != nil {
		bg = io.WithTimeout[T](*t.timeout)(bg)
	}
	result := io.RunSync(bg)
	var finalValue *T
	if result.Error != nil {
		if t.recover != nil {
			a := t.recover(result.Error)
			finalValue = &a
		} else if t.onError != nil {
			t.onError(result.Error)
			return
		}
	}
	if finalValue == nil {
		finalValue = &result.Value
	}

	if t.onSuccess != nil {
		t.onSuccess(*finalValue)
	}
}

func MapBackgroundTask[T, T2 any](bgt *SafeBackgroundTask[T], mapFn func(*T) *T2) *SafeBackgroundTask[T2] {
	newFn := func(c context.Context) (*T2, error) {
		r, err := bgt.fn(c)
		if err != nil {
			return nil, err
		}
		return mapFn(r), nil
	}
	return &SafeBackgroundTask[T2]{
		ctx:     bgt.ctx,
		fn:      newFn,
		timeout: bgt.timeout,
	}
}
