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

package uow

import (
	"fmt"
	"os"

	"github.com/tomoncle/bunit/utils"
	"gopkg.in/yaml.v3"
)

// Options is the save policy of a unit of work. It is copied at construction
// and never changed afterwards.
type Options struct {
	// EnableDefaultLogging emits a diagnostic at each save decision point.
	EnableDefaultLogging bool `json:"enable_default_logging" yaml:"enable_default_logging"`

	// ValidateAffectedRows rolls a save back when the number of affected rows
	// differs from the number of dirty entries in the change tracker. It also
	// turns a save with no dirty entries into a failure without flushing.
	ValidateAffectedRows bool `json:"validate_affected_rows" yaml:"validate_affected_rows"`

	// UseTransactions wraps every save in a transaction. When false the
	// transaction operations are no-ops and flushes run directly.
	UseTransactions bool `json:"use_transactions" yaml:"use_transactions"`
}

// DefaultOptions returns transactions on, validation off, logging on.
func DefaultOptions() *Options {
	return &Options{
		EnableDefaultLogging: true,
		ValidateAffectedRows: false,
		UseTransactions:      true,
	}
}

// LoadOptions reads options from a YAML file. Keys missing from the file keep
// their default values.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("failed to parse options file: %w", err)
	}
	return opts, nil
}

// OverrideFromEnv applies UOW_USE_TRANSACTIONS, UOW_VALIDATE_AFFECTED_ROWS
// and UOW_ENABLE_DEFAULT_LOGGING when they hold valid booleans.
func (o *Options) OverrideFromEnv() {
	if v, ok := utils.LookupEnvBool("UOW_USE_TRANSACTIONS"); ok {
		o.UseTransactions = v
	}
	if v, ok := utils.LookupEnvBool("UOW_VALIDATE_AFFECTED_ROWS"); ok {
		o.ValidateAffectedRows = v
	}
	if v, ok := utils.LookupEnvBool("UOW_ENABLE_DEFAULT_LOGGING"); ok {
		o.EnableDefaultLogging = v
	}
}
