package model

import "time"

// BlockStatus is the lifecycle state of a Block instance within one pattern.
type BlockStatus string

const (
	BlockActive    BlockStatus = "ACTIVE"
	BlockCompleted BlockStatus = "COMPLETED"
	BlockFailed    BlockStatus = "FAILED"
)

// Block is one phase of a pattern instance: a concrete, dated realization of
// a BlockNode from the block graph, scoped to exactly one PatternContext.
//
// Invariants: EndedAt >= StartedAt when set; EndedAt is set iff Status !=
// ACTIVE; PeakPrice >= the entry candle's High.
type Block struct {
	BlockID        string      `json:"block_id"`
	BlockType      int         `json:"block_type"`
	Ticker         string      `json:"ticker"`
	StartedAt      time.Time   `json:"started_at"`
	EndedAt        *time.Time  `json:"ended_at,omitempty"`
	Status         BlockStatus `json:"status"`
	PeakPrice      float64     `json:"peak_price"`
	PeakVolume     int64       `json:"peak_volume"`
	PeakDate       time.Time   `json:"peak_date"`
	ParentBlockIDs []string    `json:"parent_block_ids,omitempty"`
	ExitReason     string      `json:"exit_reason,omitempty"`

	// Metadata is an insertion-ordered string->value map. Keys and values
	// are stored in parallel slices rather than a Go map so JSON encoding
	// and equality checks stay order-stable across re-runs.
	MetadataKeys   []string      `json:"-"`
	MetadataValues []interface{} `json:"-"`
}

// SetMetadata appends or overwrites a metadata entry, preserving first-seen
// key order.
func (b *Block) SetMetadata(key string, value interface{}) {
	for i, k := range b.MetadataKeys {
		if k == key {
			b.MetadataValues[i] = value
			return
		}
	}
	b.MetadataKeys = append(b.MetadataKeys, key)
	b.MetadataValues = append(b.MetadataValues, value)
}

// Metadata looks up a metadata entry by key.
func (b *Block) Metadata(key string) (interface{}, bool) {
	for i, k := range b.MetadataKeys {
		if k == key {
			return b.MetadataValues[i], true
		}
	}
	return nil, false
}

// UpdatePeak applies the peak-tracking rule from one additional candle: High
// raises PeakPrice/PeakDate, Volume raises PeakVolume. Only called while the
// block is ACTIVE.
func (b *Block) UpdatePeak(c Candle) {
	if c.High > b.PeakPrice {
		b.PeakPrice = c.High
		b.PeakDate = c.Date
	}
	if c.Volume > b.PeakVolume {
		b.PeakVolume = c.Volume
	}
}

// Complete transitions the block to COMPLETED with the given end date and
// reason. No-op if already non-ACTIVE (termination is idempotent by
// construction — the orchestrator never calls this twice for one block).
func (b *Block) Complete(endedAt time.Time, reason string) {
	if b.Status != BlockActive {
		return
	}
	end := endedAt
	b.EndedAt = &end
	b.Status = BlockCompleted
	b.ExitReason = reason
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// orchestrator's critical section (slices are copied; Candle indicator
// caches are never referenced from a Block so no further copying is needed).
func (b Block) Clone() Block {
	cp := b
	if b.EndedAt != nil {
		t := *b.EndedAt
		cp.EndedAt = &t
	}
	if b.ParentBlockIDs != nil {
		cp.ParentBlockIDs = append([]string(nil), b.ParentBlockIDs...)
	}
	if b.MetadataKeys != nil {
		cp.MetadataKeys = append([]string(nil), b.MetadataKeys...)
		cp.MetadataValues = append([]interface{}(nil), b.MetadataValues...)
	}
	return cp
}
