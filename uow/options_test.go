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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.UseTransactions)
	assert.False(t, opts.ValidateAffectedRows)
	assert.True(t, opts.EnableDefaultLogging)
}

func TestNewCopiesOptions(t *testing.T) {
	opts := &Options{UseTransactions: true}
	u := New(newFakeSession(), opts)
	opts.UseTransactions = false
	assert.True(t, u.Options().UseTransactions)

	assert.Equal(t, *DefaultOptions(), New(newFakeSession(), nil).Options())
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("validate_affected_rows: true\nenable_default_logging: false\n"), 0o600))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.True(t, opts.UseTransactions)
	assert.True(t, opts.ValidateAffectedRows)
	assert.False(t, opts.EnableDefaultLogging)

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOptionsOverrideFromEnv(t *testing.T) {
	t.Setenv("UOW_USE_TRANSACTIONS", "false")
	t.Setenv("UOW_VALIDATE_AFFECTED_ROWS", "1")
	t.Setenv("UOW_ENABLE_DEFAULT_LOGGING", "maybe")

	opts := DefaultOptions()
	opts.OverrideFromEnv()
	assert.False(t, opts.UseTransactions)
	assert.True(t, opts.ValidateAffectedRows)
	assert.True(t, opts.EnableDefaultLogging)
}

func TestConcurrentBeginAdmitsOne(t *testing.T) {
	u, _ := newUnit(newFakeSession(), DefaultOptions())

	var (
		mu       sync.Mutex
		admitted int
		rejected int
	)
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			err := u.BeginTransaction()
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case IsPrecondition(err):
				rejected++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 7, rejected)
}

func TestOutcomeEnum(t *testing.T) {
	assert.Equal(t, "row_count_mismatch", OutcomeRowCountMismatch.String())
	assert.Equal(t, 5, OutcomeFault.Number())
	assert.Equal(t, "none", Result{}.Outcome.String())
	assert.Equal(t, "nothing to save", OutcomeNoChanges.Desc())

	o, ok := ParseOutcome("NO_ROWS_AFFECTED")
	require.True(t, ok)
	assert.Equal(t, OutcomeNoRowsAffected, o)

	bogus := Outcome(9)
	assert.False(t, bogus.IsValid())
	assert.Equal(t, -1, bogus.Number())
	assert.Equal(t, "unknown", bogus.String())
	_, ok = ParseOutcome("unknown")
	assert.False(t, ok)
}
