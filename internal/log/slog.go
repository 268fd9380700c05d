/*
Copyright The CodePush Server Authors.

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

package log

import (
	"io"
	"log/slog"
)

// SlogAdapter adapts a standard library *slog.Logger to Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

func (a SlogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }

func (a SlogAdapter) With(args ...any) Logger {
	return SlogAdapter{logger: a.logger.With(args...)}
}

// NewSlogAdapter wraps an existing *slog.Logger, falling back to
// DefaultLogger when logger is nil.
func NewSlogAdapter(logger *slog.Logger) Logger {
	if logger == nil {
		return DefaultLogger
	}
	return SlogAdapter{logger: logger}
}

// NewJSONLogger builds a Logger that writes structured JSON lines to w,
// suitable for production use behind the HTTP adapter.
func NewJSONLogger(w io.Writer, debugEnabled bool) Logger {
	level := slog.LevelInfo
	if debugEnabled {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return NewSlogAdapter(slog.New(handler))
}

// NewReadableTextLogger builds a Logger that writes human-readable,
// timestamp-free lines, handy for local development and tests.
func NewReadableTextLogger(w io.Writer, debugEnabled bool) Logger {
	level := slog.LevelInfo
	if debugEnabled {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return NewSlogAdapter(slog.New(handler))
}
