// Copyright 2025 Tom Barlow
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

package launcher

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tombee/orca/internal/config"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// Factory builds the Configurator for one workflow.
type Factory func(wf config.WorkflowConfig, env Environment) (Configurator, error)

// Registry maps plugin names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in condor and pegasus
// plugins.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(config.PluginCondor, NewCondorConfigurator)
	r.Register(config.PluginPegasus, NewPegasusConfigurator)
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// New builds the Configurator for wf using its plugin's factory.
func (r *Registry) New(wf config.WorkflowConfig, env Environment) (Configurator, error) {
	r.mu.RLock()
	factory, ok := r.factories[wf.Plugin]
	r.mu.RUnlock()

	if !ok {
		return nil, &orcaerrors.ConfigError{
			Key:    fmt.Sprintf("workflows.%s.plugin", wf.Name),
			Reason: fmt.Sprintf("plugin %q is not registered", wf.Plugin),
		}
	}
	return factory(wf, env)
}

// Plugins returns the registered plugin names, sorted.
func (r *Registry) Plugins() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
