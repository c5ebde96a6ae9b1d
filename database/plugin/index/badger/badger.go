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

package badger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/ratify/database/models"
	"github.com/blinklabs-io/ratify/database/plugin"
	"github.com/blinklabs-io/ratify/database/types"
	badger "github.com/dgraph-io/badger/v4"
)

// IndexStoreBadger keeps the campaign index in badger. Data may not be
// persisted when no data dir is given.
type IndexStoreBadger struct {
	db      *badger.DB
	logger  *slog.Logger
	dataDir string
	mu      sync.Mutex
	closed  bool
}

// Register plugin
func init() {
	plugin.Register(
		plugin.PluginEntry{
			Name:        "badger",
			Description: "BadgerDB local key-value store",
			NewFunc: func(opts plugin.Options) (plugin.Store, error) {
				return New(opts.DataDir, opts.Logger)
			},
		},
	)
}

// campaignRecord is the stored form of an index entry
type campaignRecord struct {
	cbor.StructAsArray
	Address           string
	Title             string
	Description       string
	ImageURL          string
	Category          string
	CreatorAddress    string
	OriginTxHash      string
	CampaignID        []byte
	CreatorPaymentKey []byte
	CreatorStakeKey   []byte
	CreatedAt         int64
	UpdatedAt         int64
	ReconciledAt      int64
	GoalAmount        uint64
	RaisedAmount      uint64
	RecordedFunds     uint64
	Version           uint64
	BackerCount       int
	OriginIndex       uint32
	GoalKind          uint8
	IsActive          bool
	IsCompleted       bool
}

func toRecord(c *models.Campaign) *campaignRecord {
	return &campaignRecord{
		Address:           c.Address,
		Title:             c.Title,
		Description:       c.Description,
		ImageURL:          c.ImageURL,
		Category:          c.Category,
		CreatorAddress:    c.CreatorAddress,
		OriginTxHash:      c.OriginTxHash,
		CampaignID:        c.CampaignID,
		CreatorPaymentKey: c.CreatorPaymentKey,
		CreatorStakeKey:   c.CreatorStakeKey,
		CreatedAt:         unixNano(c.CreatedAt),
		UpdatedAt:         unixNano(c.UpdatedAt),
		ReconciledAt:      unixNano(c.ReconciledAt),
		GoalAmount:        uint64(c.GoalAmount),
		RaisedAmount:      uint64(c.RaisedAmount),
		RecordedFunds:     uint64(c.RecordedFunds),
		Version:           c.Version,
		BackerCount:       c.BackerCount,
		OriginIndex:       c.OriginIndex,
		GoalKind:          c.GoalKind,
		IsActive:          c.IsActive,
		IsCompleted:       c.IsCompleted,
	}
}

func (r *campaignRecord) toModel() *models.Campaign {
	return &models.Campaign{
		Address:           r.Address,
		Title:             r.Title,
		Description:       r.Description,
		ImageURL:          r.ImageURL,
		Category:          r.Category,
		CreatorAddress:    r.CreatorAddress,
		OriginTxHash:      r.OriginTxHash,
		CampaignID:        r.CampaignID,
		CreatorPaymentKey: r.CreatorPaymentKey,
		CreatorStakeKey:   r.CreatorStakeKey,
		CreatedAt:         fromUnixNano(r.CreatedAt),
		UpdatedAt:         fromUnixNano(r.UpdatedAt),
		ReconciledAt:      fromUnixNano(r.ReconciledAt),
		GoalAmount:        types.Uint64(r.GoalAmount),
		RaisedAmount:      types.Uint64(r.RaisedAmount),
		RecordedFunds:     types.Uint64(r.RecordedFunds),
		Version:           r.Version,
		BackerCount:       r.BackerCount,
		OriginIndex:       r.OriginIndex,
		GoalKind:          r.GoalKind,
		IsActive:          r.IsActive,
		IsCompleted:       r.IsCompleted,
	}
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

// New creates a badger index store. Uses an in-memory database if dataDir
// is empty.
func New(dataDir string, logger *slog.Logger) (*IndexStoreBadger, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger = logger.With("component", "index", "plugin", "badger")
	var badgerOpts badger.Options
	if dataDir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		badgerOpts = badger.DefaultOptions(dataDir)
	}
	badgerOpts = badgerOpts.
		WithLogger(newBadgerLogger(logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	return &IndexStoreBadger{
		db:      db,
		logger:  logger,
		dataDir: dataDir,
	}, nil
}

// DB returns the underlying badger handle
func (d *IndexStoreBadger) DB() *badger.DB {
	return d.db
}

func (d *IndexStoreBadger) List(ctx context.Context) ([]models.Campaign, error) {
	var ret []models.Campaign
	err := d.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(types.CampaignKeyPrefix)
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var record campaignRecord
			if _, err := cbor.Decode(val, &record); err != nil {
				return fmt.Errorf(
					"decode index entry %s: %w",
					it.Item().Key(),
					err,
				)
			}
			ret = append(ret, *record.toModel())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (d *IndexStoreBadger) Get(
	ctx context.Context,
	address string,
) (*models.Campaign, error) {
	var ret *models.Campaign
	err := d.db.View(func(txn *badger.Txn) error {
		record, err := getRecord(txn, address)
		if err != nil {
			return err
		}
		ret = record.toModel()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func getRecord(txn *badger.Txn, address string) (*campaignRecord, error) {
	item, err := txn.Get(types.CampaignKey(address))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var record campaignRecord
	if _, err := cbor.Decode(val, &record); err != nil {
		return nil, fmt.Errorf("decode index entry %s: %w", address, err)
	}
	return &record, nil
}

func setRecord(txn *badger.Txn, record *campaignRecord) error {
	val, err := cbor.Encode(record)
	if err != nil {
		return err
	}
	return txn.Set(types.CampaignKey(record.Address), val)
}

// Upsert writes the entry when its version is greater than the stored one.
// A write conflict with a concurrent transaction is reported as a stale
// update.
func (d *IndexStoreBadger) Upsert(
	ctx context.Context,
	entry *models.Campaign,
) error {
	if entry.Address == "" {
		return errors.New("campaign index entry has no address")
	}
	now := time.Now()
	err := d.db.Update(func(txn *badger.Txn) error {
		existing, err := getRecord(txn, entry.Address)
		switch {
		case errors.Is(err, types.ErrNotFound):
			entry.CreatedAt = now
		case err != nil:
			return err
		default:
			if entry.Version <= existing.Version {
				return types.ErrStaleUpdate
			}
			entry.CreatedAt = fromUnixNano(existing.CreatedAt)
		}
		entry.UpdatedAt = now
		return setRecord(txn, toRecord(entry))
	})
	if errors.Is(err, badger.ErrConflict) {
		return types.ErrStaleUpdate
	}
	return err
}

func (d *IndexStoreBadger) MarkInactive(ctx context.Context, address string) error {
	return d.mark(address, func(r *campaignRecord) {
		r.IsActive = false
	})
}

func (d *IndexStoreBadger) MarkCompleted(ctx context.Context, address string) error {
	return d.mark(address, func(r *campaignRecord) {
		r.IsActive = false
		r.IsCompleted = true
	})
}

func (d *IndexStoreBadger) mark(address string, modify func(*campaignRecord)) error {
	for {
		err := d.db.Update(func(txn *badger.Txn) error {
			record, err := getRecord(txn, address)
			if err != nil {
				return err
			}
			modify(record)
			record.Version++
			record.UpdatedAt = time.Now().UnixNano()
			return setRecord(txn, record)
		})
		// Lifecycle flags only ever move one way, so a conflicting write
		// can be retried against the new state
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
}

func (d *IndexStoreBadger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}
