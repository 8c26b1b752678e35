/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// ZapLogger adapts a zap logger to Logger. zap's own Fatal exits the
// process, so Fatal is written at error level with fatal=true.
type ZapLogger struct {
	logger *zap.Logger
	level  atomic.Int32
}

func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.With(zap.String("component", "database"))}
}

func (l *ZapLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

func (l *ZapLogger) Debug(msg string, fields ...interface{}) {
	if l.enabled(LogLevelDebug) {
		l.logger.Debug(msg, zapFields(fields)...)
	}
}

func (l *ZapLogger) Info(msg string, fields ...interface{}) {
	if l.enabled(LogLevelInfo) {
		l.logger.Info(msg, zapFields(fields)...)
	}
}

func (l *ZapLogger) Warn(msg string, fields ...interface{}) {
	if l.enabled(LogLevelWarn) {
		l.logger.Warn(msg, zapFields(fields)...)
	}
}

func (l *ZapLogger) Error(msg string, fields ...interface{}) {
	if l.enabled(LogLevelError) {
		l.logger.Error(msg, zapFields(fields)...)
	}
}

func (l *ZapLogger) Fatal(msg string, fields ...interface{}) {
	l.logger.Error(msg, append(zapFields(fields), zap.Bool("fatal", true))...)
}

func (l *ZapLogger) enabled(level LogLevel) bool {
	return level >= LogLevel(l.level.Load())
}

func zapFields(fields []interface{}) []zap.Field {
	out := make([]zap.Field, 0, (len(fields)+1)/2)
	for i := 0; i < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if i+1 >= len(fields) {
			out = append(out, zap.String(key, "(missing)"))
			break
		}
		if err, ok := fields[i+1].(error); ok {
			out = append(out, zap.NamedError(key, err))
			continue
		}
		out = append(out, zap.Any(key, fields[i+1]))
	}
	return out
}
