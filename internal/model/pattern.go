package model

import (
	"fmt"
	"time"
)

// PatternStatus is the lifecycle state of a whole pattern instance.
type PatternStatus string

const (
	PatternActive    PatternStatus = "ACTIVE"
	PatternCompleted PatternStatus = "COMPLETED"
	PatternArchived  PatternStatus = "ARCHIVED"
)

// Mode distinguishes the two top-level detectors, and feeds the pattern id
// prefix ("SEED" or "HIGHLIGHT").
type Mode string

const (
	ModeSequential       Mode = "SEED"
	ModeHighlightCentric Mode = "HIGHLIGHT"
)

// PatternID formats a pattern identifier as
// "{MODE}_{ticker}_{YYYYMMDD}_{sequence:03}". Sequence is per-(ticker, date,
// mode) monotone starting at 1; ids are total-ordered by their textual form
// because the date component is zero-padded and the sequence is
// zero-padded to three digits.
func PatternID(mode Mode, ticker string, date time.Time, sequence int) string {
	return fmt.Sprintf("%s_%s_%s_%03d", mode, ticker, date.Format("20060102"), sequence)
}

// Pattern is a rooted tree of Block instances: exactly one Block per
// block_id reachable in the owning graph, anchored at a root Block whose
// BlockID equals the graph's root node id.
type Pattern struct {
	PatternID   string         `json:"pattern_id"`
	Ticker      string         `json:"ticker"`
	RootBlockID string         `json:"root_block_id"`
	Status      PatternStatus  `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	// order and blocks form an insertion-ordered block_id -> Block map, so
	// Blocks and BlockIDs list blocks in a stable order. Both fields are
	// unexported and so are not part of the Pattern's own JSON encoding.
	order  []string
	blocks map[string]*Block
}

// NewPattern creates a pattern containing only its root block.
func NewPattern(id, ticker, rootBlockID string, root Block, createdAt time.Time) *Pattern {
	p := &Pattern{
		PatternID:   id,
		Ticker:      ticker,
		RootBlockID: rootBlockID,
		Status:      PatternActive,
		CreatedAt:   createdAt,
		blocks:      make(map[string]*Block, 8),
	}
	p.put(root)
	return p
}

func (p *Pattern) put(b Block) {
	if _, exists := p.blocks[b.BlockID]; !exists {
		p.order = append(p.order, b.BlockID)
	}
	cp := b
	p.blocks[b.BlockID] = &cp
}

// Add inserts a new block instance. Panics if the pattern already has a
// block with this id — callers (the orchestrator) must never attempt to
// insert a duplicate block_id; "at most one instance per block_id" is a
// hard invariant, not a soft one.
func (p *Pattern) Add(b Block) {
	if _, exists := p.blocks[b.BlockID]; exists {
		panic(fmt.Sprintf("pattern %s: duplicate block_id %s", p.PatternID, b.BlockID))
	}
	p.put(b)
}

// Block returns the block instance for block_id, if present.
func (p *Pattern) Block(blockID string) (*Block, bool) {
	b, ok := p.blocks[blockID]
	return b, ok
}

// BlockIDs returns block ids in insertion order.
func (p *Pattern) BlockIDs() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Blocks returns a snapshot slice of blocks in insertion order.
func (p *Pattern) Blocks() []Block {
	out := make([]Block, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.blocks[id].Clone())
	}
	return out
}

// ActiveBlockIDs returns ids whose status is ACTIVE, in insertion order.
func (p *Pattern) ActiveBlockIDs() []string {
	var out []string
	for _, id := range p.order {
		if p.blocks[id].Status == BlockActive {
			out = append(out, id)
		}
	}
	return out
}

// Complete transitions the whole pattern to COMPLETED. A no-op once the
// pattern is already COMPLETED or ARCHIVED — once terminal, blocks are
// immutable and so is pattern status.
func (p *Pattern) Complete(completedAt time.Time) {
	if p.Status != PatternActive {
		return
	}
	t := completedAt
	p.CompletedAt = &t
	p.Status = PatternCompleted
}

// Archive marks a COMPLETED pattern ARCHIVED, the terminal state after a
// caller has drained and persisted it. No-op if not COMPLETED.
func (p *Pattern) Archive() {
	if p.Status != PatternCompleted {
		return
	}
	p.Status = PatternArchived
}

// Rehydrate reconstructs a Pattern from its persisted fields — used by
// Repository implementations reading rows back out of storage, where the
// block order and contents come from a decoded JSON column rather than a
// live orchestrator run.
func Rehydrate(id, ticker, rootBlockID string, status PatternStatus, createdAt time.Time, completedAt *time.Time, blocks []Block) *Pattern {
	p := &Pattern{
		PatternID:   id,
		Ticker:      ticker,
		RootBlockID: rootBlockID,
		Status:      status,
		CreatedAt:   createdAt,
		CompletedAt: completedAt,
		blocks:      make(map[string]*Block, len(blocks)),
	}
	for _, b := range blocks {
		p.put(b)
	}
	return p
}
