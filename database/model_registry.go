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
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/uptrace/bun"
)

var defaultRegistry = &modelRegistry{}

// SQLModel is a model known to the connection. Priority orders table
// creation, lower values first, so referenced tables exist before the
// tables pointing at them.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

type modelRegistry struct {
	mu     sync.RWMutex
	models []SQLModel
}

func (r *modelRegistry) register(model SQLModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, model)
}

func (r *modelRegistry) sorted() []SQLModel {
	r.mu.RLock()
	out := make([]SQLModel, len(r.models))
	copy(out, r.models)
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() < out[j].Priority()
	})
	return out
}

type modelAdapter struct {
	instance interface{}
	priority int
}

func (a modelAdapter) Instance() interface{} { return a.instance }
func (a modelAdapter) Priority() int         { return a.priority }

// RegisterModel adds a struct pointer to the default registry.
func RegisterModel(instance interface{}, priority int) {
	defaultRegistry.register(modelAdapter{instance: instance, priority: priority})
}

// RegisteredModelInstances returns the registered struct pointers by
// ascending priority.
func RegisteredModelInstances() []interface{} {
	models := defaultRegistry.sorted()
	out := make([]interface{}, len(models))
	for i, m := range models {
		out[i] = m.Instance()
	}
	return out
}

// CreateTables creates the tables of models, or of every registered model
// when none are given. Existing tables are left untouched.
func CreateTables(ctx context.Context, db bun.IDB, models ...interface{}) error {
	if len(models) == 0 {
		models = RegisteredModelInstances()
	}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	return nil
}
