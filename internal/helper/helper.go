package helper

import (
	"fmt"
	"math"
	"strings"
	"time"
)

func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h":
		return "1h"
	case "240m", "4h":
		return "4h"
	case "1d", "24h", "1440m":
		return "1d"
	default:
		return s
	}
}

// TimeframeDuration: длительность бара. Неизвестный таймфрейм даёт ошибку.
func TimeframeDuration(tf string) (time.Duration, error) {
	switch NormTF(tf) {
	case "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported timeframe %q", tf)
}

// NextBoundary: ближайшая граница бара строго после t (по Unix, UTC).
func NextBoundary(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t
	}
	sec := int64(d / time.Second)
	u := t.Unix()
	next := u - u%sec + sec
	return time.Unix(next, 0).UTC()
}

// LastClosedOpen: время открытия последнего закрытого бара на момент t.
func LastClosedOpen(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t
	}
	sec := int64(d / time.Second)
	u := t.Unix()
	return time.Unix(u-u%sec-sec, 0).UTC()
}

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}
