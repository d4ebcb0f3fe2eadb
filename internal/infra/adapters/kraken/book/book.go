// Package book maintains a depth-limited L2 order book and its CRC32 checksum.
package book

import (
	"hash/crc32"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// ChecksumLevels is the number of levels per side folded into the checksum.
const ChecksumLevels = 10

// DefaultDepth is used when a subscription does not name one.
const DefaultDepth = 10

// Level is one price level.
type Level struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// Precision is the number of decimals the venue uses for prices and quantities of a symbol.
type Precision struct {
	Price int32
	Qty   int32
}

// Book is not safe for concurrent use; the streaming session owns it from its read loop.
type Book struct {
	symbol string
	depth  int

	precision Precision
	// explicit precision came from instrument metadata and is never overwritten by inference.
	explicit bool

	bids map[string]Level
	asks map[string]Level
}

// New returns an empty book truncated to depth levels per side.
func New(symbol string, depth int) *Book {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Book{
		symbol: symbol,
		depth:  depth,
		bids:   make(map[string]Level),
		asks:   make(map[string]Level),
	}
}

func (b *Book) Symbol() string { return b.symbol }

func (b *Book) Depth() int { return b.depth }

// SetPrecision pins the checksum precision.
func (b *Book) SetPrecision(p Precision) {
	b.precision = p
	b.explicit = true
}

func (b *Book) Precision() Precision { return b.precision }

// Reset drops every level. Pinned precision is kept.
func (b *Book) Reset() {
	b.bids = make(map[string]Level)
	b.asks = make(map[string]Level)
	if !b.explicit {
		b.precision = Precision{}
	}
}

// ApplySnapshot replaces the book contents.
func (b *Book) ApplySnapshot(bids, asks []Level) {
	b.Reset()
	b.ApplyUpdate(bids, asks)
}

// ApplyUpdate upserts levels; a zero quantity deletes the level. Each side is then truncated
// to the subscribed depth.
func (b *Book) ApplyUpdate(bids, asks []Level) {
	b.infer(bids)
	b.infer(asks)
	apply(b.bids, bids)
	apply(b.asks, asks)
	truncate(b.bids, b.depth, true)
	truncate(b.asks, b.depth, false)
}

func (b *Book) infer(levels []Level) {
	if b.explicit {
		return
	}
	for _, lvl := range levels {
		if places := -lvl.Price.Exponent(); places > b.precision.Price {
			b.precision.Price = places
		}
		if places := -lvl.Qty.Exponent(); places > b.precision.Qty {
			b.precision.Qty = places
		}
	}
}

func apply(side map[string]Level, levels []Level) {
	for _, lvl := range levels {
		key := lvl.Price.String()
		if lvl.Qty.IsZero() {
			delete(side, key)
			continue
		}
		side[key] = lvl
	}
}

func truncate(side map[string]Level, depth int, descending bool) {
	if len(side) <= depth {
		return
	}
	for _, lvl := range sorted(side, descending)[depth:] {
		delete(side, lvl.Price.String())
	}
}

func sorted(side map[string]Level, descending bool) []Level {
	out := make([]Level, 0, len(side))
	for _, lvl := range side {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// Bids returns bids best first.
func (b *Book) Bids() []Level { return sorted(b.bids, true) }

// Asks returns asks best first.
func (b *Book) Asks() []Level { return sorted(b.asks, false) }

// Checksum computes the venue checksum: top asks ascending then top bids descending, each
// level rendered as price then quantity at the symbol precision with the decimal point and
// leading zeros removed, CRC32 (IEEE) over the concatenation.
func (b *Book) Checksum() uint32 {
	var sb strings.Builder
	b.writeSide(&sb, b.Asks())
	b.writeSide(&sb, b.Bids())
	return crc32.ChecksumIEEE([]byte(sb.String()))
}

func (b *Book) writeSide(sb *strings.Builder, levels []Level) {
	if len(levels) > ChecksumLevels {
		levels = levels[:ChecksumLevels]
	}
	for _, lvl := range levels {
		sb.WriteString(checksumField(lvl.Price, b.precision.Price))
		sb.WriteString(checksumField(lvl.Qty, b.precision.Qty))
	}
}

func checksumField(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	s = strings.Replace(s, ".", "", 1)
	return strings.TrimLeft(s, "0")
}

// View is an immutable copy handed to consumers.
type View struct {
	Symbol   string
	Bids     []Level
	Asks     []Level
	Checksum uint32
}

// View snapshots the book.
func (b *Book) View() View {
	return View{
		Symbol:   b.symbol,
		Bids:     b.Bids(),
		Asks:     b.Asks(),
		Checksum: b.Checksum(),
	}
}

// BestBid returns the highest bid, if any.
func (v View) BestBid() (Level, bool) {
	if len(v.Bids) == 0 {
		return Level{}, false
	}
	return v.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (v View) BestAsk() (Level, bool) {
	if len(v.Asks) == 0 {
		return Level{}, false
	}
	return v.Asks[0], true
}
