/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log threads a structured github.com/go-logr/logr.Logger through
// context.Context, the same way a zap-backed logger gets threaded through
// every component. It is backed by go.uber.org/zap via go-logr/zapr.
package log

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

type ctxKey struct{}

var fallback = func() logr.Logger {
	zl, err := zap.NewProduction()
	if err != nil {
		zl = zap.NewNop()
	}
	return zapr.NewLogger(zl)
}()

// NewZap builds the default production logger used by cmd/server.
func NewZap() (logr.Logger, error) {
	zl, err := zap.NewProduction()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

// IntoContext stores l on ctx, mirroring knative's logging.WithLogger.
func IntoContext(ctx context.Context, l logr.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext fetches the logger set by IntoContext, or a zap production
// fallback so components never need a nil check.
func FromContext(ctx context.Context) logr.Logger {
	if l, ok := ctx.Value(ctxKey{}).(logr.Logger); ok {
		return l
	}
	return fallback
}

// With returns ctx carrying a logger annotated with the given key-values,
// narrowing the logger at each component boundary the way repeated
// `logging.WithLogger(ctx, logging.FromContext(ctx).With(...))` calls do.
func With(ctx context.Context, keysAndValues ...interface{}) context.Context {
	return IntoContext(ctx, FromContext(ctx).WithValues(keysAndValues...))
}
