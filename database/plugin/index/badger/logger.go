// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger adapts slog to the badger.Logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (b *badgerLogger) Errorf(msg string, args ...any) {
	b.logger.Error(format(msg, args...))
}

func (b *badgerLogger) Warningf(msg string, args ...any) {
	b.logger.Warn(format(msg, args...))
}

func (b *badgerLogger) Infof(msg string, args ...any) {
	b.logger.Info(format(msg, args...))
}

func (b *badgerLogger) Debugf(msg string, args ...any) {
	b.logger.Debug(format(msg, args...))
}

func format(msg string, args ...any) string {
	return strings.TrimSpace(fmt.Sprintf(msg, args...))
}
