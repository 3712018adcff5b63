package sale

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"salechain/core/types"
)

const (
	EventTypeSaleConfigured      = "sale.configured"
	EventTypeSaleScheduleUpdated = "sale.schedule_updated"
	EventTypeSalePurchased       = "sale.purchased"
	EventTypeSaleEnded           = "sale.ended"
	EventTypeSaleWithdrawn       = "sale.withdrawn"
	EventTypeSaleRefundClaimed   = "sale.refund_claimed"
)

type saleEvent struct {
	evt *types.Event
}

func (e saleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e saleEvent) Event() *types.Event { return e.evt }

func newConfiguredEvent(cfg *SaleConfig) *types.Event {
	attrs := make(map[string]string)
	if cfg != nil {
		attrs["startTime"] = strconv.FormatInt(cfg.StartTime, 10)
		attrs["endTime"] = strconv.FormatInt(cfg.EndTime, 10)
		attrs["priceUsd"] = cfg.PriceUSD.String()
		attrs["totalAllocation"] = cfg.TotalAllocation.String()
		attrs["softCap"] = cfg.SoftCap.String()
		attrs["hardCap"] = cfg.HardCap.String()
		attrs["minimumPurchase"] = cfg.MinimumPurchase.String()
		attrs["soldTokenDecimals"] = strconv.FormatUint(uint64(cfg.SoldTokenDecimals), 10)
	}
	return &types.Event{Type: EventTypeSaleConfigured, Attributes: attrs}
}

func newScheduleUpdatedEvent(cfg *SaleConfig) *types.Event {
	attrs := make(map[string]string)
	if cfg != nil {
		attrs["endTime"] = strconv.FormatInt(cfg.EndTime, 10)
		attrs["minimumPurchase"] = cfg.MinimumPurchase.String()
	}
	return &types.Event{Type: EventTypeSaleScheduleUpdated, Attributes: attrs}
}

func newPurchasedEvent(record *ContributionRecord) *types.Event {
	attrs := make(map[string]string)
	if record != nil {
		attrs["buyer"] = hex.EncodeToString(record.Buyer[:])
		attrs["asset"] = string(record.Asset)
		attrs["usdAmount"] = record.UsdAmount.String()
		attrs["tokenAmount"] = record.TokenAmount.String()
		attrs["timestamp"] = strconv.FormatInt(record.Timestamp, 10)
	}
	return &types.Event{Type: EventTypeSalePurchased, Attributes: attrs}
}

func newEndedEvent(totals *SaleTotals) *types.Event {
	attrs := make(map[string]string)
	if totals != nil {
		attrs["collected"] = totals.Collected().String()
		attrs["tokensSold"] = totals.TokensSold.String()
	}
	return &types.Event{Type: EventTypeSaleEnded, Attributes: attrs}
}

func newWithdrawnEvent(totals *SaleTotals, destination [20]byte) *types.Event {
	attrs := make(map[string]string)
	attrs["destination"] = hex.EncodeToString(destination[:])
	if totals != nil {
		attrs["collected"] = totals.Collected().String()
	}
	return &types.Event{Type: EventTypeSaleWithdrawn, Attributes: attrs}
}

func newRefundClaimedEvent(buyer [20]byte, refunds []*big.Int, total *big.Int) *types.Event {
	attrs := make(map[string]string)
	attrs["buyer"] = hex.EncodeToString(buyer[:])
	if total != nil {
		attrs["total"] = total.String()
	}
	for i, asset := range PaymentAssets {
		if i < len(refunds) && refunds[i] != nil {
			attrs["refund"+string(asset)] = refunds[i].String()
		}
	}
	return &types.Event{Type: EventTypeSaleRefundClaimed, Attributes: attrs}
}
