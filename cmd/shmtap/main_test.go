/*
 * Copyright 2025 SREDiag Authors
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

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/seqshm/pkg/shm"
)

type ConfigTestSuite struct {
	suite.Suite
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg, err := loadConfig(newFlagSet(cmdWatch), []string{"--name", "telemetry"})
	s.Require().NoError(err)
	s.Equal("telemetry", cfg.Reader.Name)
	s.Equal(256, cfg.Size)
	s.Equal(16*time.Millisecond, cfg.Interval)
	s.Equal(":9464", cfg.Listen)
	s.True(cfg.Reader.SkipUnchanged)
	s.Equal(10, cfg.Reader.MaxRetries)
	s.Equal(time.Millisecond, cfg.Reader.RetrySleep)
	s.False(cfg.Sized)
}

func (s *ConfigTestSuite) TestFlagsOverrideEnv() {
	s.T().Setenv("SEQSHM_NAME", "from-env")
	s.T().Setenv("SEQSHM_MAX_RETRIES", "4")

	cfg, err := loadConfig(newFlagSet(cmdWatch), []string{"--partial", "--retry-sleep", "2ms"})
	s.Require().NoError(err)
	s.Equal("from-env", cfg.Reader.Name)
	s.Equal(4, cfg.Reader.MaxRetries)
	s.Equal(2*time.Millisecond, cfg.Reader.RetrySleep)
	s.True(cfg.Reader.Partial)
	s.True(cfg.Sized)

	cfg, err = loadConfig(newFlagSet(cmdWatch), []string{"--name", "from-flag"})
	s.Require().NoError(err)
	s.Equal("from-flag", cfg.Reader.Name)
}

func (s *ConfigTestSuite) TestSizedWatchReadsSizedLayout() {
	cfg, err := loadConfig(newFlagSet(cmdWatch), []string{"--name", "x", "--sized"})
	s.Require().NoError(err)
	s.True(cfg.Sized)
	s.True(cfg.Reader.Partial)

	r := shm.NewReader[frame256](cfg.Reader.ReaderOptions()...)
	s.Equal(shm.Layout{Sized: true, PayloadSize: 256}, r.Layout())

	s.T().Setenv("SEQSHM_SIZED", "true")
	cfg, err = loadConfig(newFlagSet(cmdWatch), []string{"--name", "x"})
	s.Require().NoError(err)
	s.True(cfg.Reader.Partial)

	cfg, err = loadConfig(newFlagSet(cmdPublish), []string{"--name", "x"})
	s.Require().NoError(err)
	s.True(cfg.Sized)
	s.False(cfg.Reader.Partial)
}

func (s *ConfigTestSuite) TestConfigFile() {
	path := filepath.Join(s.T().TempDir(), "seqshm.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("name: scoring\nsize: 1024\nrate: 10\n"), 0o600))

	cfg, err := loadConfig(newFlagSet(cmdPublish), []string{"--config", path})
	s.Require().NoError(err)
	s.Equal("scoring", cfg.Reader.Name)
	s.Equal(1024, cfg.Size)
	s.Equal(10.0, cfg.Rate)

	_, err = loadConfig(newFlagSet(cmdPublish), []string{"--config", filepath.Join(s.T().TempDir(), "missing.yaml")})
	s.Error(err)
}

func (s *ConfigTestSuite) TestRejects() {
	_, err := loadConfig(newFlagSet(cmdInspect), nil)
	s.Error(err)
	_, err = loadConfig(newFlagSet(cmdInspect), []string{"--name", "x", "--size", "100"})
	s.Error(err)
	_, err = loadConfig(newFlagSet(cmdInspect), []string{"--name", "x", "--rate", "5"})
	s.Error(err)
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func TestFrameStamp(t *testing.T) {
	var f frame64
	now := time.Unix(1700000000, 42)
	stampFrame(f[:], 0x1234, now)

	seq, at, ok := readStamp(f[:], len(f))
	if seq != 0x1234 || !at.Equal(now) || !ok {
		t.Fatalf("got seq=%x at=%v ok=%t", seq, at, ok)
	}
	f[40] = 0
	if _, _, ok := readStamp(f[:], len(f)); ok {
		t.Fatal("torn filler not detected")
	}
	if _, _, ok := readStamp(f[:], frameStampLen); !ok {
		t.Fatal("prefix check looked past the stamp")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"serve"}, &out); err == nil {
		t.Fatal("expected an error")
	}
	if !bytes.Contains(out.Bytes(), []byte("usage: shmtap")) {
		t.Fatalf("usage not printed: %q", out.String())
	}
	if err := run(context.Background(), nil, &out); err == nil {
		t.Fatal("expected an error")
	}
}
