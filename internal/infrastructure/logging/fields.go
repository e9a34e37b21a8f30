package logging

import (
	"go.uber.org/zap"

	"github.com/meshx-org/fiber/internal/fx"
)

// Field constructors for kernel vocabulary, so every component logs koids,
// handles and statuses under the same keys.

func Koid(key string, k fx.Koid) zap.Field {
	return zap.Uint64(key, uint64(k))
}

func Handle(h fx.Handle) zap.Field {
	return zap.Stringer("handle", h)
}

func Rights(r fx.Rights) zap.Field {
	return zap.Stringer("rights", r)
}

func Signals(key string, s fx.Signals) zap.Field {
	return zap.Stringer(key, s)
}

func Status(s fx.Status) zap.Field {
	return zap.Stringer("status", s)
}

func ObjType(t fx.ObjType) zap.Field {
	return zap.Stringer("type", t)
}

