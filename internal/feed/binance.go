package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/schema"
)

const (
	_binanceBaseWsUrl           = "wss://stream.binance.com:9443/ws"
	_binanceBaseWsUr2           = "wss://stream.binance.com:443/ws"
	_binanceBaseWsUrlMarketOnly = "wss://data-stream.binance.vision"
)

// BinancePub streams candlestick bars from the Binance public websocket.
type BinancePub struct {
	wss *ws.WebSocket
}

func NewBinancePub(ctx context.Context) *BinancePub {
	return &BinancePub{
		wss: ws.New(ctx, _binanceBaseWsUrl),
	}
}

func (repo *BinancePub) Len() int {
	return repo.wss.Len()
}

func (repo *BinancePub) Close() {
	repo.wss.Close()
}

func (repo *BinancePub) CloseWhenEmpty() bool {
	if repo.Len() == 0 {
		repo.Close()
		logs.Info("close websocket. reason: empty")
		return true
	}

	return false
}

func (repo *BinancePub) StartWebsocket(ctx context.Context) error {
	if err := repo.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}

	return nil
}

type BinanceSubscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type BinanceSubscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func subscriberResponseParser(m ws.Message) (BinanceSubscribeResponse, bool) {
	var resp BinanceSubscribeResponse
	err := m.Unmarshal(&resp)
	return resp, err == nil
}

// SubscribeKline subscribes 'Kline/Candlestick Stream' for the interval
// (e.g. "1m", "1h", "1d").
func (repo *BinancePub) SubscribeKline(ctx context.Context, symbol, interval string) error {
	appendIntoRegister := true
	if err := repo.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := BinanceSubscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{
					fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval),
				},
				ID: 1,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := subscriberResponseParser(m)
			if !ok || resp.ID != 1 {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("subscribe and wait, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

type BinanceKline struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// ObserveKline invokes the handler with a market data payload for every
// closed candle. In-progress candles are skipped.
func (repo *BinancePub) ObserveKline(ctx context.Context, symbol string, handler func(ts time.Time, md *schema.MarketData)) (unsubscribe func()) {
	ch, cancel := repo.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				resp, ok := ws.ReadMessage[BinanceKline](m)
				if !ok || resp.EventType != "kline" {
					continue
				}
				if !resp.Kline.Closed {
					continue
				}

				md, err := resp.toMarketData(symbol)
				if err != nil {
					logs.Warnf("drop malformed kline: %+v", err)
					continue
				}
				handler(time.UnixMilli(resp.Kline.CloseTime).UTC(), md)
			}
		}
	}()

	return cancel
}

func (k BinanceKline) toMarketData(symbol string) (*schema.MarketData, error) {
	o, err := strconv.ParseFloat(k.Kline.Open, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse open")
	}
	h, err := strconv.ParseFloat(k.Kline.High, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse high")
	}
	l, err := strconv.ParseFloat(k.Kline.Low, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse low")
	}
	c, err := strconv.ParseFloat(k.Kline.Close, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse close")
	}
	v, err := strconv.ParseFloat(k.Kline.Volume, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse volume")
	}
	return &schema.MarketData{
		Symbol: symbol,
		Asset:  schema.AssetCrypto,
		Bar:    schema.Bar{Open: o, High: h, Low: l, Close: c, Volume: v},
		Source: "binance",
	}, nil
}
