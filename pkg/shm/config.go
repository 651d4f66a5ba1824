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

package shm

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// maxPollBudget caps MaxRetries*RetrySleep, the time one Poll may block.
	maxPollBudget = 100 * time.Millisecond
)

// Config is the serializable form of the reader options.
type Config struct {
	// Name identifies the region.
	Name string `mapstructure:"name"`
	// Partial reads the size hint header and copies only the updated prefix.
	Partial bool `mapstructure:"partial"`
	// SkipUnchanged avoids copying when the version did not move.
	SkipUnchanged bool `mapstructure:"skip_unchanged"`
	// MaxRetries bounds the attempts of one poll.
	MaxRetries int `mapstructure:"max_retries"`
	// RetrySleep is the pause between attempts.
	RetrySleep time.Duration `mapstructure:"retry_sleep"`
}

// DefaultConfig returns the default reader configuration without a region name.
func DefaultConfig() *Config {
	return &Config{
		SkipUnchanged: true,
		MaxRetries:    DefaultMaxRetries,
		RetrySleep:    DefaultRetrySleep,
	}
}

// VerifyConfig checks that c can drive a reader with a bounded poll latency.
func VerifyConfig(c *Config) error {
	if c == nil {
		return errors.New("nil config")
	}
	if err := validateRegionName(c.Name); err != nil {
		return err
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RetrySleep < 0 {
		return fmt.Errorf("retry sleep must not be negative, got %s", c.RetrySleep)
	}
	if budget := time.Duration(c.MaxRetries) * c.RetrySleep; budget > maxPollBudget {
		return fmt.Errorf("poll may block for %s, more than %s", budget, maxPollBudget)
	}
	return nil
}

func validateRegionName(name string) error {
	if name == "" {
		return errors.New("region name is empty")
	}
	return nil
}

// ReaderOptions converts c into reader options.
func (c *Config) ReaderOptions() []ReaderOption {
	return []ReaderOption{
		WithPartial(c.Partial),
		WithSkipUnchanged(c.SkipUnchanged),
		WithMaxRetries(c.MaxRetries),
		WithBackOff(backoff.NewConstantBackOff(c.RetrySleep)),
	}
}
