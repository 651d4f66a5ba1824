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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/srediag/seqshm/pkg/shm"
)

const (
	FlagName          = "name"
	FlagSize          = "size"
	FlagRate          = "rate"
	FlagCount         = "count"
	FlagPrefix        = "prefix"
	FlagSized         = "sized"
	FlagInterval      = "interval"
	FlagListen        = "listen"
	FlagPartial       = "partial"
	FlagSkipUnchanged = "skip-unchanged"
	FlagMaxRetries    = "max-retries"
	FlagRetrySleep    = "retry-sleep"
	FlagDebug         = "debug"
	FlagConfig        = "config"

	HelpName          = "region name"
	HelpSize          = "payload size in bytes (64, 256, 1024 or 4096)"
	HelpRate          = "publish rate in Hz"
	HelpCount         = "frames to publish before exiting, 0 for no limit"
	HelpPrefix        = "publish only the first N payload bytes of each frame (needs --sized)"
	HelpSized         = "use the header carrying a bytes-updated hint (implies --partial on watch)"
	HelpInterval      = "poll interval"
	HelpListen        = "address serving /metrics, /live and /ready, empty to disable"
	HelpPartial       = "copy only the hinted payload prefix (implies --sized)"
	HelpSkipUnchanged = "skip the copy when the version did not move"
	HelpMaxRetries    = "attempts per poll"
	HelpRetrySleep    = "pause between attempts"
	HelpDebug         = "log at debug level"
	HelpConfig        = "config file, defaults to ./seqshm.yaml or /etc/seqshm/seqshm.yaml"

	envPrefix = "SEQSHM"
)

// Config is the merged result of defaults, config file, SEQSHM_* environment and flags.
type Config struct {
	Reader shm.Config `mapstructure:",squash"`

	Size     int           `mapstructure:"size"`
	Rate     float64       `mapstructure:"rate"`
	Count    int           `mapstructure:"count"`
	Prefix   int           `mapstructure:"prefix"`
	Sized    bool          `mapstructure:"sized"`
	Interval time.Duration `mapstructure:"interval"`
	Listen   string        `mapstructure:"listen"`
	Debug    bool          `mapstructure:"debug"`
}

func newFlagSet(cmd string) *pflag.FlagSet {
	def := shm.DefaultConfig()
	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	fs.String(FlagConfig, "", HelpConfig)
	fs.String(FlagName, "", HelpName)
	fs.Int(FlagSize, 256, HelpSize)
	fs.Bool(FlagSized, false, HelpSized)
	fs.Bool(FlagDebug, false, HelpDebug)

	switch cmd {
	case cmdPublish:
		fs.Float64(FlagRate, 60, HelpRate)
		fs.Int(FlagCount, 0, HelpCount)
		fs.Int(FlagPrefix, 0, HelpPrefix)
	case cmdWatch:
		fs.Duration(FlagInterval, 16*time.Millisecond, HelpInterval)
		fs.String(FlagListen, ":9464", HelpListen)
		fs.Bool(FlagPartial, def.Partial, HelpPartial)
		fs.Bool(FlagSkipUnchanged, def.SkipUnchanged, HelpSkipUnchanged)
		fs.Int(FlagMaxRetries, def.MaxRetries, HelpMaxRetries)
		fs.Duration(FlagRetrySleep, def.RetrySleep, HelpRetrySleep)
	}
	return fs
}

// loadConfig parses args into fs and merges them over the config file and environment.
func loadConfig(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == FlagConfig {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = errors.Join(bindErr, err)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	if path, _ := fs.GetString(FlagConfig); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("seqshm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/seqshm/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if fs.Lookup(FlagPartial) != nil && cfg.Sized {
		// watch picks its header layout from Partial alone
		cfg.Reader.Partial = true
	}
	if cfg.Reader.Partial {
		cfg.Sized = true
	}
	if cfg.Reader.Name == "" {
		return nil, errors.New("a region name is required (--name or SEQSHM_NAME)")
	}
	if _, ok := payloadSizes[cfg.Size]; !ok {
		return nil, fmt.Errorf("unsupported payload size %d", cfg.Size)
	}
	return &cfg, nil
}
