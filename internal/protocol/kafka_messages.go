package protocol

import (
	"encoding/json"
	"time"
)

// MonthBuiltNotification is published once all days of a month are out
type MonthBuiltNotification struct {
	Type        string    `json:"type"` // MONTH_BUILT
	RunID       string    `json:"run_id"`
	LocationID  string    `json:"location_id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	Days        int       `json:"days"`
	FailedCells int       `json:"failed_cells"`
	BuiltAt     time.Time `json:"built_at"`
}

const (
	NotificationTypeMonthBuilt = "MONTH_BUILT"
)

// EncodeDailyRecordMessage encodes a DailyRecordMessage to JSON
func EncodeDailyRecordMessage(msg *DailyRecordMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeDailyRecordMessage decodes JSON to DailyRecordMessage
func DecodeDailyRecordMessage(data []byte) (*DailyRecordMessage, error) {
	var msg DailyRecordMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeMonthBuilt encodes a MonthBuiltNotification to JSON
func EncodeMonthBuilt(n *MonthBuiltNotification) ([]byte, error) {
	return json.Marshal(n)
}

// DecodeMonthBuilt decodes JSON to MonthBuiltNotification
func DecodeMonthBuilt(data []byte) (*MonthBuiltNotification, error) {
	var n MonthBuiltNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
