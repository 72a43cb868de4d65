package domain

import (
	"encoding/json"
	"time"
)

const (
	OperationActive    = "active"
	OperationCancelled = "cancelled"
)

// DayLayout is the calendar-day key format used for lock checks.
const DayLayout = "2006-01-02"

type ChangeKind string

const (
	ChangeDeleteState   ChangeKind = "delete_state"
	ChangeHistoryEntry  ChangeKind = "history_entry"
	ChangeCreatedRecord ChangeKind = "created_record"
)

type RecordCollection string

const (
	CollectionSales       RecordCollection = "sales"
	CollectionTransfers   RecordCollection = "transfers"
	CollectionCorrections RecordCollection = "corrections"
)

// Operation is a lockable, reversible unit of work. At most one active
// operation exists per (Day, Location, Symbol).
type Operation struct {
	ID          string     `json:"operationId"`
	Date        time.Time  `json:"date"`
	Day         string     `json:"day"`
	Location    string     `json:"location"`
	Symbol      string     `json:"symbol"`
	Status      string     `json:"status"`
	ActorID     string     `json:"actorId,omitempty"`
	Changes     []Change   `json:"changes"`
	CreatedAt   time.Time  `json:"createdAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// Change is one undoable mutation. Which fields are set depends on Kind:
// delete_state uses OriginalData, history_entry uses ChangeID, and
// created_record uses Collection and RecordID.
type Change struct {
	Kind         ChangeKind       `json:"kind"`
	OriginalData json.RawMessage  `json:"originalData,omitempty"`
	ChangeID     string           `json:"changeId,omitempty"`
	Collection   RecordCollection `json:"collection,omitempty"`
	RecordID     string           `json:"recordId,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

func DeleteStateChange(s Snapshot) (Change, error) {
	raw, err := EncodeSnapshot(s)
	if err != nil {
		return Change{}, err
	}
	return Change{Kind: ChangeDeleteState, OriginalData: raw, CreatedAt: time.Now().UTC()}, nil
}

func HistoryEntryChange(transactionID string) Change {
	return Change{Kind: ChangeHistoryEntry, ChangeID: transactionID, CreatedAt: time.Now().UTC()}
}

func CreatedRecordChange(collection RecordCollection, recordID string) Change {
	return Change{Kind: ChangeCreatedRecord, Collection: collection, RecordID: recordID, CreatedAt: time.Now().UTC()}
}

type OpenOperationRequest struct {
	Date     string `json:"date" validate:"required"`
	Location string `json:"location" validate:"required"`
	Symbol   string `json:"symbol" validate:"required"`
}

type LockStatus struct {
	IsLocked  bool       `json:"isLocked"`
	Operation *Operation `json:"operation,omitempty"`
}

type ChangeFailure struct {
	Index int        `json:"index"`
	Kind  ChangeKind `json:"kind"`
	Error string     `json:"error"`
}

// RollbackResult reports a best-effort replay. Errors and Failures describe
// the same sub-steps; Errors is the flat form operators read.
// RestoredStates counts state items only. Sales and transfers rebuilt from
// the correction holding area are counted in RebuiltRecords.
type RollbackResult struct {
	OperationID           string          `json:"operationId"`
	RestoredStates        int             `json:"restoredStates"`
	RebuiltRecords        int             `json:"rebuiltRecords"`
	RemovedHistoryEntries int             `json:"removedHistoryEntries"`
	RemovedRecords        int             `json:"removedRecords"`
	Errors                []string        `json:"errors"`
	Failures              []ChangeFailure `json:"failures"`
}
