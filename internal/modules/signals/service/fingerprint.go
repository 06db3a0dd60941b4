package service

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"

	"signal_bot/internal/models"
)

// FingerprintKey: направление, стратегия и округлённые уровни. Таймфрейм
// в ключ не входит: один сетап с разных воркеров совпадает.
func FingerprintKey(c models.CandidateSignal, places int) string {
	return fmt.Sprintf("%s_%s_%s_%s_%s",
		c.Direction,
		c.Strategy,
		roundPrice(c.Entry, places),
		roundPrice(c.StopLoss, places),
		roundPrice(c.TakeProfit, places),
	)
}

func Fingerprint(c models.CandidateSignal, places int) string {
	sum := md5.Sum([]byte(FingerprintKey(c, places)))
	return hex.EncodeToString(sum[:])
}

func roundPrice(v float64, places int) string {
	if places < 0 {
		places = 0
	}
	return decimal.NewFromFloat(v).StringFixed(int32(places))
}
