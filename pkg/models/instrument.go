package models

// InstrumentUpdate represents one published price move for a tradable symbol
type InstrumentUpdate struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`    // % move since last tick
	Timestamp int64   `json:"timestamp"` // unix milli
	SeqID     int64   `json:"seq_id"`    // monotonic counter per symbol
}
