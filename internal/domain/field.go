package domain

// Field names a token attribute as it appears on the wire.
type Field string

const (
	FieldID              Field = "id"
	FieldAddress         Field = "address"
	FieldName            Field = "name"
	FieldTicker          Field = "ticker"
	FieldCreatedAt       Field = "createdAt"
	FieldMarketCap       Field = "marketCap"
	FieldVolume          Field = "volume"
	FieldHolders         Field = "holders"
	FieldTransactions    Field = "transactions"
	FieldReplies         Field = "replies"
	FieldPriceChange5m   Field = "priceChange5m"
	FieldPriceChange1h   Field = "priceChange1h"
	FieldDevHolding      Field = "devHolding"
	FieldTopHolders      Field = "topHolders"
	FieldSnipers         Field = "snipers"
	FieldBondingProgress Field = "bondingProgress"
	FieldIsVerified      Field = "isVerified"
	FieldQuickBuyAmount  Field = "quickBuyAmount"
)

// Numeric returns the numeric value of field f. ok is false when the field is
// not numeric or, for bonding progress, not set.
func (t Token) Numeric(f Field) (v float64, ok bool) {
	switch f {
	case FieldMarketCap:
		return t.MarketCap, true
	case FieldVolume:
		return t.Volume, true
	case FieldHolders:
		return t.Holders, true
	case FieldTransactions:
		return t.Transactions, true
	case FieldReplies:
		return t.Replies, true
	case FieldPriceChange5m:
		return t.PriceChange5m, true
	case FieldPriceChange1h:
		return t.PriceChange1h, true
	case FieldDevHolding:
		return t.DevHolding, true
	case FieldTopHolders:
		return t.TopHolders, true
	case FieldSnipers:
		return t.Snipers, true
	case FieldQuickBuyAmount:
		return t.QuickBuyAmount, true
	case FieldBondingProgress:
		if t.BondingProgress == nil {
			return 0, false
		}
		return *t.BondingProgress, true
	}
	return 0, false
}

// TimestampLayout renders creation times in UTC with fixed millisecond
// width, the same shape as an ISO-8601 timestamp from a browser.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Text returns the string value of field f. Creation time is rendered with
// TimestampLayout.
func (t Token) Text(f Field) (string, bool) {
	switch f {
	case FieldID:
		return t.ID, true
	case FieldAddress:
		return t.Address, true
	case FieldName:
		return t.Name, true
	case FieldTicker:
		return t.Ticker, true
	case FieldCreatedAt:
		return t.CreatedAt.UTC().Format(TimestampLayout), true
	}
	return "", false
}

// Sortable reports whether f can be used as a sort key.
func (f Field) Sortable() bool {
	var zero Token
	zero.BondingProgress = Float(0)
	if _, ok := zero.Numeric(f); ok {
		return true
	}
	_, ok := zero.Text(f)
	return ok
}
