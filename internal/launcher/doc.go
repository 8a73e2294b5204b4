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

// Package launcher turns a workflow configuration into a submitted job with a
// running monitor.
//
// Each workflow names a plugin. The Registry maps plugin names to factories
// that build a Configurator for that workflow; the Configurator checks its
// section of the configuration and produces a Launcher. Launch submits the
// batch through a scheduler adapter and returns a monitor that is already
// started.
package launcher
