package book

import (
	"hash/crc32"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func lvl(price, qty string) Level {
	return Level{Price: decimal.RequireFromString(price), Qty: decimal.RequireFromString(qty)}
}

func snapshotLevels() (bids, asks []Level) {
	bids = []Level{
		lvl("66788.0", "3.21926649"),
		lvl("66787.5", "0.44916298"),
		lvl("66787.4", "0.05992580"),
		lvl("66785.3", "0.01496904"),
		lvl("66785.2", "0.86989511"),
	}
	asks = []Level{
		lvl("66788.1", "1.67939137"),
		lvl("66788.4", "1.49726637"),
		lvl("66790.0", "1.49723133"),
		lvl("66791.1", "0.01100000"),
		lvl("66792.6", "1.49717197"),
	}
	return bids, asks
}

func TestChecksumMatchesReferenceString(t *testing.T) {
	b := New("BTC/USD", 10)
	bids, asks := snapshotLevels()
	b.ApplySnapshot(bids, asks)

	require.Equal(t, Precision{Price: 1, Qty: 8}, b.Precision())

	want := "6678811679391376678841497266376679001497231336679111100000667926149717197" +
		"667880321926649667875449162986678745992580667853149690466785286989511"
	require.Equal(t, crc32.ChecksumIEEE([]byte(want)), b.Checksum())
	require.Equal(t, uint32(3979123481), b.Checksum())
}

func TestUpdateDeletesZeroQtyAndTruncates(t *testing.T) {
	b := New("BTC/USD", 3)
	bids, asks := snapshotLevels()
	b.ApplySnapshot(bids, asks)
	require.Len(t, b.Bids(), 3)
	require.Len(t, b.Asks(), 3)

	b.ApplyUpdate([]Level{lvl("66787.5", "0.00000000"), lvl("66787.7", "0.12440000")}, nil)

	got := b.Bids()
	require.Len(t, got, 3)
	require.True(t, got[0].Price.Equal(decimal.RequireFromString("66788.0")))
	require.True(t, got[1].Price.Equal(decimal.RequireFromString("66787.7")))
	require.True(t, got[2].Price.Equal(decimal.RequireFromString("66787.4")))
}

func TestPriceKeyIgnoresTrailingZeros(t *testing.T) {
	b := New("X/Y", 10)
	b.ApplySnapshot([]Level{lvl("100.10", "1")}, nil)
	b.ApplyUpdate([]Level{lvl("100.1", "2")}, nil)
	require.Len(t, b.Bids(), 1)
	require.True(t, b.Bids()[0].Qty.Equal(decimal.NewFromInt(2)))
}

func TestExplicitPrecisionWins(t *testing.T) {
	b := New("X/Y", 10)
	b.SetPrecision(Precision{Price: 2, Qty: 3})
	b.ApplySnapshot([]Level{lvl("1.5", "0.1")}, []Level{lvl("1.6", "0.2")})

	require.Equal(t, "160", checksumField(decimal.RequireFromString("1.6"), 2))
	require.Equal(t, "200", checksumField(decimal.RequireFromString("0.2"), 3))
	require.Equal(t, crc32.ChecksumIEEE([]byte("160200150100")), b.Checksum())
	require.Equal(t, Precision{Price: 2, Qty: 3}, b.Precision())

	b.Reset()
	require.Equal(t, Precision{Price: 2, Qty: 3}, b.Precision())
}

func TestChecksumUsesTopTenOnly(t *testing.T) {
	b := New("X/Y", 25)
	var bids []Level
	for i := 0; i < 15; i++ {
		bids = append(bids, Level{Price: decimal.NewFromInt(int64(100 - i)), Qty: decimal.NewFromInt(1)})
	}
	b.ApplySnapshot(bids, nil)
	before := b.Checksum()

	b.ApplyUpdate([]Level{{Price: decimal.NewFromInt(50), Qty: decimal.NewFromInt(7)}}, nil)
	require.Equal(t, before, b.Checksum())

	b.ApplyUpdate([]Level{{Price: decimal.NewFromInt(95), Qty: decimal.NewFromInt(7)}}, nil)
	require.NotEqual(t, before, b.Checksum())
}

func TestViewIsACopy(t *testing.T) {
	b := New("X/Y", 10)
	b.ApplySnapshot([]Level{lvl("10", "1")}, []Level{lvl("11", "1")})
	v := b.View()
	b.ApplyUpdate([]Level{lvl("10", "0")}, nil)

	best, ok := v.BestBid()
	require.True(t, ok)
	require.True(t, best.Price.Equal(decimal.NewFromInt(10)))
	_, ok = b.View().BestBid()
	require.False(t, ok)
	ask, ok := v.BestAsk()
	require.True(t, ok)
	require.True(t, ask.Price.Equal(decimal.NewFromInt(11)))
}
