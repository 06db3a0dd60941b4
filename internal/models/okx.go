package models

// Instrument: параметры инструмента для сайзинга ордера.
type Instrument struct {
	InstID string  `json:"instId"`
	TickSz float64 `json:"tickSz"`
	LotSz  float64 `json:"lotSz"`
	MinSz  float64 `json:"minSz"`
	CtVal  float64 `json:"ctVal"`
}
