// Package store defines the panel-record store the engine reads from and
// reconciles into. The store is externally owned: the engine performs only
// targeted writes (seeding a missing main panel, writing back a repaired
// position) and never blindly overwrites the whole map.
package store

import (
	"github.com/dandytbermillo/canvasd/internal/models"
	"github.com/dandytbermillo/canvasd/internal/panelkey"
)

// EventOp names a store mutation kind.
type EventOp string

const (
	OpSet    EventOp = "set"
	OpUpdate EventOp = "update"
	OpDelete EventOp = "delete"
)

// Event describes one store mutation. Record is nil for deletes.
type Event struct {
	Op     EventOp
	Key    panelkey.StoreKey
	Record *models.PanelRecord
}

// Listener receives store mutation events. Listeners must not block; they
// are invoked synchronously on the mutating goroutine.
type Listener func(Event)

// PanelStore is the keyed map of panel records. All access is by composite
// store key; implementations must never be handed a bare panel id.
type PanelStore interface {
	Get(key panelkey.StoreKey) (models.PanelRecord, bool)
	Set(key panelkey.StoreKey, rec models.PanelRecord)
	Has(key panelkey.StoreKey) bool
	Delete(key panelkey.StoreKey)
	// Keys returns every key currently present, in no particular order.
	Keys() []panelkey.StoreKey
	// Subscribe registers a mutation listener and returns a cancel func.
	Subscribe(l Listener) (cancel func())
}
