package bittrex

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Every v1.1/v2.0 response carries the same envelope.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type tickerPayload struct {
	Bid  decimal.Decimal `json:"Bid"`
	Ask  decimal.Decimal `json:"Ask"`
	Last decimal.Decimal `json:"Last"`
}

// v2.0 GetTicks sample. Timestamps look like "2018-01-02T15:04:05".
type tickPayload struct {
	Open       float64 `json:"O"`
	High       float64 `json:"H"`
	Low        float64 `json:"L"`
	Close      float64 `json:"C"`
	Volume     float64 `json:"V"`
	BaseVolume float64 `json:"BV"`
	Timestamp  string  `json:"T"`
}

type uuidPayload struct {
	UUID string `json:"uuid"`
}

type orderPayload struct {
	OrderUuid         string          `json:"OrderUuid"`
	Exchange          string          `json:"Exchange"`
	Type              string          `json:"Type"`
	Quantity          decimal.Decimal `json:"Quantity"`
	QuantityRemaining decimal.Decimal `json:"QuantityRemaining"`
	CommissionPaid    decimal.Decimal `json:"CommissionPaid"`
	Price             decimal.Decimal `json:"Price"`
	PricePerUnit      decimal.Decimal `json:"PricePerUnit"`
	IsOpen            bool            `json:"IsOpen"`
}

type balancePayload struct {
	Currency  string          `json:"Currency"`
	Balance   decimal.Decimal `json:"Balance"`
	Available decimal.Decimal `json:"Available"`
	Pending   decimal.Decimal `json:"Pending"`
}

type summaryPayload struct {
	MarketName string          `json:"MarketName"`
	Last       decimal.Decimal `json:"Last"`
	Bid        decimal.Decimal `json:"Bid"`
	Ask        decimal.Decimal `json:"Ask"`
	High       float64         `json:"High"`
	Low        float64         `json:"Low"`
	Volume     float64         `json:"Volume"`
	BaseVolume float64         `json:"BaseVolume"`
	PrevDay    float64         `json:"PrevDay"`
	TimeStamp  string          `json:"TimeStamp"`
}
