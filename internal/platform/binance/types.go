package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/futbot/internal/domain"
)

// Filter type discriminators used in the exchangeInfo payload.
const (
	filterTypeLotSize     = "LOT_SIZE"
	filterTypePriceFilter = "PRICE_FILTER"
	filterTypeMinNotional = "MIN_NOTIONAL"
)

type exchangeInfoResponse struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol  string       `json:"symbol"`
	Status  string       `json:"status"`
	Filters []symbolRule `json:"filters"`
}

// symbolRule is one entry of a symbol's filters array. Fields are a union
// across filter types; which ones are meaningful depends on FilterType.
type symbolRule struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty"`
	MaxQty     string `json:"maxQty"`
	StepSize   string `json:"stepSize"`
	MinPrice   string `json:"minPrice"`
	MaxPrice   string `json:"maxPrice"`
	TickSize   string `json:"tickSize"`
	Notional   string `json:"notional"`
	MinNotion  string `json:"minNotional"`
}

func (r exchangeInfoResponse) toDomain() (domain.ExchangeInfo, error) {
	info := domain.ExchangeInfo{Symbols: make([]domain.SymbolFilters, 0, len(r.Symbols))}
	for _, s := range r.Symbols {
		sf, err := s.toDomain()
		if err != nil {
			return domain.ExchangeInfo{}, err
		}
		info.Symbols = append(info.Symbols, sf)
	}
	return info, nil
}

func (s symbolInfo) toDomain() (domain.SymbolFilters, error) {
	sf := domain.SymbolFilters{
		Symbol: s.Symbol,
		Status: domain.SymbolStatus(s.Status),
	}

	for _, f := range s.Filters {
		var err error
		switch f.FilterType {
		case filterTypeLotSize:
			sf.HasLotSize = true
			if sf.MinQty, err = parseDecimal(s.Symbol, "minQty", f.MinQty); err != nil {
				return domain.SymbolFilters{}, err
			}
			if sf.MaxQty, err = parseDecimal(s.Symbol, "maxQty", f.MaxQty); err != nil {
				return domain.SymbolFilters{}, err
			}
			if sf.StepSize, err = parseDecimal(s.Symbol, "stepSize", f.StepSize); err != nil {
				return domain.SymbolFilters{}, err
			}
		case filterTypePriceFilter:
			sf.HasPriceFilter = true
			if sf.MinPrice, err = parseDecimal(s.Symbol, "minPrice", f.MinPrice); err != nil {
				return domain.SymbolFilters{}, err
			}
			if sf.MaxPrice, err = parseDecimal(s.Symbol, "maxPrice", f.MaxPrice); err != nil {
				return domain.SymbolFilters{}, err
			}
			if sf.TickSize, err = parseDecimal(s.Symbol, "tickSize", f.TickSize); err != nil {
				return domain.SymbolFilters{}, err
			}
		case filterTypeMinNotional:
			// The futures API names the field "notional"; spot uses
			// "minNotional". Accept either.
			raw := f.Notional
			if raw == "" {
				raw = f.MinNotion
			}
			sf.HasMinNotional = true
			if sf.MinNotional, err = parseDecimal(s.Symbol, "notional", raw); err != nil {
				return domain.SymbolFilters{}, err
			}
		}
	}
	return sf, nil
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
	TimeInForce   string `json:"timeInForce"`
	ReduceOnly    bool   `json:"reduceOnly"`
	UpdateTime    int64  `json:"updateTime"`
}

func (r orderResponse) toDomain() (domain.Order, error) {
	o := domain.Order{
		OrderID:       r.OrderID,
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          domain.Side(r.Side),
		Type:          domain.OrderType(r.Type),
		Status:        domain.OrderStatus(r.Status),
		TimeInForce:   domain.TimeInForce(r.TimeInForce),
		ReduceOnly:    r.ReduceOnly,
	}
	if r.UpdateTime > 0 {
		o.UpdatedAt = time.UnixMilli(r.UpdateTime).UTC()
	}

	var err error
	if o.Quantity, err = parseDecimal(r.Symbol, "origQty", r.OrigQty); err != nil {
		return domain.Order{}, err
	}
	if o.ExecutedQty, err = parseDecimal(r.Symbol, "executedQty", r.ExecutedQty); err != nil {
		return domain.Order{}, err
	}
	if o.Price, err = parseDecimal(r.Symbol, "price", r.Price); err != nil {
		return domain.Order{}, err
	}
	if o.StopPrice, err = parseDecimal(r.Symbol, "stopPrice", r.StopPrice); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func decodeOrder(body []byte) (domain.Order, error) {
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("binance: decode order: %w", err)
	}
	return resp.toDomain()
}

func decodeOrders(body []byte) ([]domain.Order, error) {
	var resp []orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("binance: decode orders: %w", err)
	}
	orders := make([]domain.Order, 0, len(resp))
	for _, r := range resp {
		o, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

type accountResponse struct {
	Assets []struct {
		Asset            string `json:"asset"`
		WalletBalance    string `json:"walletBalance"`
		AvailableBalance string `json:"availableBalance"`
	} `json:"assets"`
}

func (r accountResponse) toDomain() (domain.Account, error) {
	acct := domain.Account{Balances: make([]domain.Balance, 0, len(r.Assets))}
	for _, a := range r.Assets {
		total, err := parseDecimal(a.Asset, "walletBalance", a.WalletBalance)
		if err != nil {
			return domain.Account{}, err
		}
		avail, err := parseDecimal(a.Asset, "availableBalance", a.AvailableBalance)
		if err != nil {
			return domain.Account{}, err
		}
		acct.Balances = append(acct.Balances, domain.Balance{
			Asset:     a.Asset,
			Available: avail,
			Total:     total,
		})
	}
	return acct, nil
}

// parseDecimal converts a wire string to an exact decimal. Empty strings decode
// to zero since the exchange omits unset numeric fields on some order types.
func parseDecimal(subject, field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: %s: parse %s %q: %w", subject, field, raw, err)
	}
	return d, nil
}
