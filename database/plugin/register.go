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

package plugin

import (
	"slices"
	"sync"
)

type PluginEntry struct {
	NewFunc     func(Options) (Store, error)
	Name        string
	Description string
}

var (
	pluginEntries      []PluginEntry
	pluginEntriesMutex sync.RWMutex
)

// Register adds a plugin to the registry. Registering an existing name
// replaces the previous entry.
func Register(entry PluginEntry) {
	pluginEntriesMutex.Lock()
	defer pluginEntriesMutex.Unlock()
	for i := range pluginEntries {
		if pluginEntries[i].Name == entry.Name {
			pluginEntries[i] = entry
			return
		}
	}
	pluginEntries = append(pluginEntries, entry)
}

// GetPlugins returns all registered plugins sorted by name
func GetPlugins() []PluginEntry {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	ret := slices.Clone(pluginEntries)
	slices.SortFunc(ret, func(a, b PluginEntry) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return ret
}

func GetPlugin(name string) (PluginEntry, bool) {
	pluginEntriesMutex.RLock()
	defer pluginEntriesMutex.RUnlock()
	for _, entry := range pluginEntries {
		if entry.Name == name {
			return entry, true
		}
	}
	return PluginEntry{}, false
}
