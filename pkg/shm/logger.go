/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
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

package shm

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnv selects a development logger at the given level (debug, info, warn, error)
// when the package is loaded. Without it the package logs nothing.
const LogLevelEnv = "SEQSHM_LOG_LEVEL"

var (
	loggerMu sync.RWMutex
	logger   = zap.NewNop()
	level    = zap.NewAtomicLevelAt(zapcore.WarnLevel)
)

func init() {
	v := os.Getenv(LogLevelEnv)
	if v == "" {
		return
	}
	l, err := zapcore.ParseLevel(v)
	if err != nil {
		return
	}
	level.SetLevel(l)
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	if lg, err := cfg.Build(); err == nil {
		logger = lg.Named("seqshm")
	}
}

// Logger returns the package logger. It is a no-op logger unless SetLogger was called or
// SEQSHM_LOG_LEVEL is set.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLogger replaces the package logger used by readers and writers created afterwards.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// SetLogLevel changes the level of the logger built from SEQSHM_LOG_LEVEL.
func SetLogLevel(l zapcore.Level) {
	level.SetLevel(l)
}
