// Package dataset defines the generated CRM records and their JSON shape.
//
// A Dataset is immutable once built. Slices are kept in id order, which is
// also generation order; rule evaluation and every export rely on it.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"cloud.google.com/go/civil"
)

// History field names.
const (
	FieldStage     = "stage"
	FieldCloseDate = "closeDate"
)

// Territory groups accounts of one industry.
type Territory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Rep is a sales representative owning accounts in one territory.
type Rep struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	HomeState   string `json:"homeState"`
	Region      string `json:"region"`
	Quota       int64  `json:"quota"`
	TerritoryID int    `json:"territoryId"`
}

// Account is a customer or prospect company.
type Account struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	AnnualRevenue int64  `json:"annualRevenue"`
	NumDevelopers int64  `json:"numDevelopers"`
	State         string `json:"state"`
	Industry      string `json:"industry"`
	IsCustomer    bool   `json:"isCustomer"`
	InPipeline    bool   `json:"inPipeline"`
	RepID         int    `json:"repId"`
	TerritoryID   int    `json:"territoryId"`
}

// Opportunity is a potential deal. CloseDate is nil when missing.
type Opportunity struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Amount      int64       `json:"amount"`
	Stage       string      `json:"stage"`
	CreatedDate civil.Date  `json:"created_date"`
	CloseDate   *civil.Date `json:"closeDate"`
	RepID       int         `json:"repId"`
	AccountID   int         `json:"accountId"`
}

// HistoryEvent records one field change on an opportunity.
type HistoryEvent struct {
	ID            int        `json:"id"`
	OpportunityID int        `json:"opportunity_id"`
	FieldName     string     `json:"field_name"`
	OldValue      *string    `json:"old_value"`
	NewValue      string     `json:"new_value"`
	ChangeDate    civil.Date `json:"change_date"`
}

// Dataset is one generated snapshot.
type Dataset struct {
	GeneratedAt        time.Time      `json:"generated_at"`
	Seed               int64          `json:"seed"`
	Reps               []Rep          `json:"reps"`
	Accounts           []Account      `json:"accounts"`
	Opportunities      []Opportunity  `json:"opportunities"`
	Territories        []Territory    `json:"territories"`
	OpportunityHistory []HistoryEvent `json:"opportunity_history"`
}

// Marshal encodes ds as indented JSON.
func Marshal(ds *Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, ds); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes ds to w as indented JSON without HTML escaping.
func Encode(w io.Writer, ds *Dataset) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ds); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return nil
}

// Unmarshal decodes a dataset. Unknown fields are rejected.
func Unmarshal(data []byte) (*Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var ds Dataset
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}

// Index provides id lookups over a dataset. Build it once per pass.
type Index struct {
	Reps        map[int]*Rep
	Accounts    map[int]*Account
	Territories map[int]*Territory

	// OppsByAccount and OppsByRep hold opportunities in dataset order.
	OppsByAccount map[int][]*Opportunity
	OppsByRep     map[int][]*Opportunity

	// AccountsByRep holds accounts in dataset order.
	AccountsByRep map[int][]*Account

	// History holds each opportunity's events sorted by change date, then id.
	History map[int][]HistoryEvent
}

// NewIndex builds lookups for ds.
func NewIndex(ds *Dataset) *Index {
	idx := &Index{
		Reps:          make(map[int]*Rep, len(ds.Reps)),
		Accounts:      make(map[int]*Account, len(ds.Accounts)),
		Territories:   make(map[int]*Territory, len(ds.Territories)),
		OppsByAccount: make(map[int][]*Opportunity),
		OppsByRep:     make(map[int][]*Opportunity),
		AccountsByRep: make(map[int][]*Account),
		History:       make(map[int][]HistoryEvent),
	}
	for i := range ds.Reps {
		idx.Reps[ds.Reps[i].ID] = &ds.Reps[i]
	}
	for i := range ds.Territories {
		idx.Territories[ds.Territories[i].ID] = &ds.Territories[i]
	}
	for i := range ds.Accounts {
		a := &ds.Accounts[i]
		idx.Accounts[a.ID] = a
		idx.AccountsByRep[a.RepID] = append(idx.AccountsByRep[a.RepID], a)
	}
	for i := range ds.Opportunities {
		o := &ds.Opportunities[i]
		idx.OppsByAccount[o.AccountID] = append(idx.OppsByAccount[o.AccountID], o)
		idx.OppsByRep[o.RepID] = append(idx.OppsByRep[o.RepID], o)
	}
	for _, ev := range ds.OpportunityHistory {
		idx.History[ev.OpportunityID] = append(idx.History[ev.OpportunityID], ev)
	}
	for id, events := range idx.History {
		SortHistory(events)
		idx.History[id] = events
	}
	return idx
}

// SortHistory orders events by change date, breaking ties by id.
func SortHistory(events []HistoryEvent) {
	slices.SortFunc(events, func(a, b HistoryEvent) int {
		switch {
		case a.ChangeDate.Before(b.ChangeDate):
			return -1
		case a.ChangeDate.After(b.ChangeDate):
			return 1
		}
		return a.ID - b.ID
	})
}

// Pipeline returns the sum of opportunity amounts.
func (ds *Dataset) Pipeline() int64 {
	var total int64
	for _, o := range ds.Opportunities {
		total += o.Amount
	}
	return total
}
