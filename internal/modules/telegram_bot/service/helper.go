package service

import (
	"fmt"
	"math"
	"strings"

	"signal_bot/internal/models"
)

func onOff(v bool) string {
	if v {
		return "да"
	}
	return "нет"
}

func f2(v float64) string { // для красивого вывода
	return fmt.Sprintf("%.2f", v)
}

func dirEmoji(d models.Direction) string {
	if d == models.DirectionShort {
		return "🔴"
	}
	return "🟢"
}

// stars: уверенность 0..1 в шкале из пяти звёзд.
func stars(confidence float64) string {
	n := int(math.Round(confidence * 5))
	if n < 0 {
		n = 0
	}
	if n > 5 {
		n = 5
	}
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}
