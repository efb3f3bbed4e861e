package stream

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

const wallet = "0xWallet"

func TestBuild_OrdersAcrossFamilies(t *testing.T) {
	src := Sources{
		Trades: []domain.TradeEvent{
			domain.NewTradeEvent("0xtx2", 0, 10, 200, "tok", uint256.NewInt(1), uint256.NewInt(1), uint256.NewInt(0), true),
		},
		Fees: []domain.FeeEvent{
			domain.NewFeeEvent("0xtx1", 0, 5, 100, uint256.NewInt(1), domain.FeeRefund),
		},
	}
	events := Build(wallet, src, nil, ExchangeAddresses{})
	require.Len(t, events, 2)
	assert.Equal(t, int64(100), events[0].Key().TimestampSec)
	assert.Equal(t, int64(200), events[1].Key().TimestampSec)
}

func TestBuild_DropsBookkeepingTransferLegs(t *testing.T) {
	src := Sources{
		Splits: []domain.SplitEvent{
			domain.NewSplitEvent("0xtx1", 1, 1, 100, "0xcond", []uint64{1, 2}, uint256.NewInt(1), nil, domain.SplitPlain),
		},
		Transfers: []domain.TransferEvent{
			domain.NewTransferEvent("0xtx1", 0, 1, 100, "tokA", uint256.NewInt(1), domain.TransferIn, "", "", wallet),
		},
	}
	events := Build(wallet, src, nil, ExchangeAddresses{})
	require.Len(t, events, 1)
	assert.Equal(t, domain.KindSplit, events[0].Kind())
}

func TestBuild_DropsExchangeInternalTransfer(t *testing.T) {
	exch := ExchangeAddresses{Normal: "0xExchange"}
	src := Sources{
		Trades: []domain.TradeEvent{
			domain.NewTradeEvent("0xtx1", 1, 1, 100, "tok", uint256.NewInt(1), uint256.NewInt(1), uint256.NewInt(0), true),
		},
		Transfers: []domain.TransferEvent{
			domain.NewTransferEvent("0xtx1", 0, 1, 100, "tok", uint256.NewInt(1), domain.TransferIn, "0xExchange", "0xExchange", wallet),
		},
	}
	events := Build(wallet, src, nil, exch)
	require.Len(t, events, 1)
	assert.Equal(t, domain.KindTrade, events[0].Kind())
}

func TestBuild_DropsSelfTransfer(t *testing.T) {
	src := Sources{
		Transfers: []domain.TransferEvent{
			domain.NewTransferEvent("0xtx1", 0, 1, 100, "tok", uint256.NewInt(1), domain.TransferIn, "op", wallet, wallet),
		},
	}
	events := Build(wallet, src, nil, ExchangeAddresses{})
	assert.Empty(t, events)
}

func TestBuild_KeepsGiftTransfer(t *testing.T) {
	src := Sources{
		Transfers: []domain.TransferEvent{
			domain.NewTransferEvent("0xtx1", 0, 1, 100, "tok", uint256.NewInt(1), domain.TransferIn, "op", "0xFriend", wallet),
		},
	}
	events := Build(wallet, src, nil, ExchangeAddresses{})
	require.Len(t, events, 1)
	assert.Equal(t, domain.KindTransfer, events[0].Kind())
}
