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
	"context"
	"fmt"
	"log/slog"

	"github.com/blinklabs-io/ratify/database/models"
)

// Store is the campaign index. Implementations must reject an Upsert whose
// version does not exceed the stored version with types.ErrStaleUpdate.
type Store interface {
	List(ctx context.Context) ([]models.Campaign, error)
	Get(ctx context.Context, address string) (*models.Campaign, error)
	Upsert(ctx context.Context, entry *models.Campaign) error
	MarkInactive(ctx context.Context, address string) error
	MarkCompleted(ctx context.Context, address string) error
	Close() error
}

// Options are passed to a plugin when opening a store. An empty DataDir
// selects an in-memory store for the embedded plugins, while the networked
// plugins connect using DSN.
type Options struct {
	Logger  *slog.Logger
	DataDir string
	DSN     string
}

// OpenPlugin opens a store from the named registered plugin
func OpenPlugin(pluginName string, opts Options) (Store, error) {
	p, ok := GetPlugin(pluginName)
	if !ok {
		return nil, fmt.Errorf(
			"index plugin '%s' not found",
			pluginName,
		)
	}
	store, err := p.NewFunc(opts)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to open index plugin '%s': %w",
			pluginName,
			err,
		)
	}
	return store, nil
}
