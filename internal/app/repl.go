package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quantfold/futbot/internal/domain"
)

const replHelp = `commands:
  price <symbol>                                  latest traded price
  balance [asset]                                 account balances
  market <symbol> <buy|sell> <qty>                place a market order
  limit <symbol> <buy|sell> <qty> <price> [tif]   place a limit order (tif defaults to GTC)
  stop-limit <symbol> <buy|sell> <qty> <limit> <stop> [tif] [reduce-only]
                                                  place a stop-limit order
  oco <symbol> <buy|sell> <qty> <take-profit> <stop> [stop-limit-price]
                                                  place a take-profit/stop-loss bracket
  cancel <symbol> <order-id>                      cancel one order
  cancel-all <symbol>                             cancel all open orders for a symbol
  open [symbol]                                   list open orders
  status <symbol> <order-id>                      query one order
  history <symbol> [limit]                        recent orders, open and closed
  cached [symbol]                                 show the local order cache
  sync                                            reconcile the cache with the exchange
  help                                            this text
  quit                                            exit`

// runREPL reads commands from stdin until EOF, "quit", or context
// cancellation. Stdin reads happen on their own goroutine so a cancelled
// context still shuts the loop down promptly.
func (a *App) runREPL(ctx context.Context, deps *Dependencies) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Println("futbot ready; type 'help' for commands")
	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "quit" || fields[0] == "exit" {
				return nil
			}
			if err := a.dispatch(ctx, deps, fields); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		}
	}
}

// dispatch executes one REPL command.
func (a *App) dispatch(ctx context.Context, deps *Dependencies, fields []string) error {
	cmd, args := fields[0], fields[1:]
	svc := deps.Orders

	switch cmd {
	case "help":
		fmt.Println(replHelp)
		return nil

	case "price":
		if len(args) != 1 {
			return fmt.Errorf("usage: price <symbol>")
		}
		price, err := svc.Price(ctx, strings.ToUpper(args[0]))
		if err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", strings.ToUpper(args[0]), price)
		return nil

	case "balance":
		acct, err := svc.Balances(ctx)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			b := acct.BalanceOf(strings.ToUpper(args[0]))
			fmt.Printf("%s: available %s, total %s\n", b.Asset, b.Available, b.Total)
			return nil
		}
		for _, b := range acct.Balances {
			if !b.Total.IsZero() {
				fmt.Printf("%s: available %s, total %s\n", b.Asset, b.Available, b.Total)
			}
		}
		return nil

	case "market":
		if len(args) != 3 {
			return fmt.Errorf("usage: market <symbol> <buy|sell> <qty>")
		}
		qty, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[2])
		}
		order, err := svc.PlaceMarket(ctx, args[0], domain.Side(strings.ToUpper(args[1])), qty)
		if err != nil {
			return err
		}
		printOrder(order)
		return nil

	case "limit":
		if len(args) < 4 || len(args) > 5 {
			return fmt.Errorf("usage: limit <symbol> <buy|sell> <qty> <price> [tif]")
		}
		qty, price, err := parseTwoDecimals(args[2], args[3])
		if err != nil {
			return err
		}
		var tif domain.TimeInForce
		if len(args) == 5 {
			tif = domain.TimeInForce(strings.ToUpper(args[4]))
		}
		order, err := svc.PlaceLimit(ctx, args[0], domain.Side(strings.ToUpper(args[1])), qty, price, tif)
		if err != nil {
			return err
		}
		printOrder(order)
		return nil

	case "stop-limit":
		if len(args) < 5 || len(args) > 7 {
			return fmt.Errorf("usage: stop-limit <symbol> <buy|sell> <qty> <limit> <stop> [tif] [reduce-only]")
		}
		qty, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[2])
		}
		limit, stop, err := parseTwoDecimals(args[3], args[4])
		if err != nil {
			return err
		}
		var tif domain.TimeInForce
		reduceOnly := false
		for _, extra := range args[5:] {
			if strings.EqualFold(extra, "reduce-only") {
				reduceOnly = true
				continue
			}
			tif = domain.TimeInForce(strings.ToUpper(extra))
		}
		order, err := svc.PlaceStopLimit(ctx, args[0], domain.Side(strings.ToUpper(args[1])), qty, limit, stop, tif, reduceOnly)
		if err != nil {
			return err
		}
		printOrder(order)
		return nil

	case "oco":
		if len(args) < 5 || len(args) > 6 {
			return fmt.Errorf("usage: oco <symbol> <buy|sell> <qty> <take-profit> <stop> [stop-limit-price]")
		}
		qty, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[2])
		}
		tp, stop, err := parseTwoDecimals(args[3], args[4])
		if err != nil {
			return err
		}
		stopLimit := decimal.Zero
		if len(args) == 6 {
			stopLimit, err = decimal.NewFromString(args[5])
			if err != nil {
				return fmt.Errorf("invalid stop-limit price %q", args[5])
			}
		}
		res, err := svc.PlaceOCO(ctx, args[0], domain.Side(strings.ToUpper(args[1])), qty, tp, stop, stopLimit)
		if err != nil {
			return err
		}
		fmt.Printf("bracket %s placed\n", res.CompositeID)
		printOrder(res.TakeProfit)
		printOrder(res.StopLoss)
		return nil

	case "cancel":
		if len(args) != 2 {
			return fmt.Errorf("usage: cancel <symbol> <order-id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid order id %q", args[1])
		}
		order, err := svc.Cancel(ctx, strings.ToUpper(args[0]), id)
		if err != nil {
			return err
		}
		printOrder(order)
		return nil

	case "cancel-all":
		if len(args) != 1 {
			return fmt.Errorf("usage: cancel-all <symbol>")
		}
		if err := svc.CancelAll(ctx, strings.ToUpper(args[0])); err != nil {
			return err
		}
		fmt.Println("all open orders cancelled")
		return nil

	case "open":
		symbol := ""
		if len(args) == 1 {
			symbol = strings.ToUpper(args[0])
		}
		orders, err := svc.OpenOrders(ctx, symbol)
		if err != nil {
			return err
		}
		printOrders(orders)
		return nil

	case "status":
		if len(args) != 2 {
			return fmt.Errorf("usage: status <symbol> <order-id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid order id %q", args[1])
		}
		order, err := svc.OrderStatus(ctx, strings.ToUpper(args[0]), id)
		if err != nil {
			return err
		}
		printOrder(order)
		return nil

	case "history":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("usage: history <symbol> [limit]")
		}
		limit := 20
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid limit %q", args[1])
			}
			limit = n
		}
		orders, err := svc.History(ctx, strings.ToUpper(args[0]), limit)
		if err != nil {
			return err
		}
		printOrders(orders)
		return nil

	case "cached":
		symbol := ""
		if len(args) == 1 {
			symbol = strings.ToUpper(args[0])
		}
		printOrders(svc.CachedOrders(symbol))
		return nil

	case "sync":
		if err := svc.SyncCache(ctx); err != nil {
			return err
		}
		printOrders(svc.CachedOrders(""))
		return nil

	default:
		return fmt.Errorf("unknown command %q; type 'help'", cmd)
	}
}

func parseTwoDecimals(a, b string) (decimal.Decimal, decimal.Decimal, error) {
	first, err := decimal.NewFromString(a)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid value %q", a)
	}
	second, err := decimal.NewFromString(b)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("invalid value %q", b)
	}
	return first, second, nil
}

func printOrder(o domain.Order) {
	fmt.Printf("#%d %s %s %s qty=%s", o.OrderID, o.Symbol, o.Side, o.Type, o.Quantity)
	if !o.Price.IsZero() {
		fmt.Printf(" price=%s", o.Price)
	}
	if !o.StopPrice.IsZero() {
		fmt.Printf(" stop=%s", o.StopPrice)
	}
	if o.ReduceOnly {
		fmt.Print(" reduce-only")
	}
	fmt.Printf(" [%s]\n", o.Status)
}

func printOrders(orders []domain.Order) {
	if len(orders) == 0 {
		fmt.Println("(none)")
		return
	}
	for _, o := range orders {
		printOrder(o)
	}
}
