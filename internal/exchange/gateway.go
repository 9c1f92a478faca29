package exchange

import (
	"context"
	"fmt"
)

// Gateway is every exchange call the strategies need. All calls may fail
// transiently; failures surface as *Error.
type Gateway interface {
	Case(ctx context.Context) (Session, error)
	Trader(ctx context.Context) (Trader, error)
	Securities(ctx context.Context, ticker string) ([]Security, error)
	Book(ctx context.Context, ticker string, limit int) (Book, error)
	Tenders(ctx context.Context) ([]Tender, error)
	AcceptTender(ctx context.Context, id int, price float64) (Result, error)
	DeclineTender(ctx context.Context, id int) (Result, error)
	Orders(ctx context.Context, status OrderStatus) ([]Order, error)
	PostOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, id int) (Result, error)
	News(ctx context.Context, limit int) ([]News, error)
}

// SecurityFor fetches the snapshot of a single ticker.
func SecurityFor(ctx context.Context, gw Gateway, ticker string) (Security, error) {
	rows, err := gw.Securities(ctx, ticker)
	if err != nil {
		return Security{}, err
	}
	for _, row := range rows {
		if row.Ticker == ticker {
			return row, nil
		}
	}
	return Security{}, fmt.Errorf("security %s: %w", ticker, ErrEmptyResponse)
}

// Positions indexes a securities snapshot by ticker.
func Positions(rows []Security) map[string]int {
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Ticker] = row.Position
	}
	return out
}
