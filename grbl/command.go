package grbl

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StatusQuery is the realtime status report request.
const StatusQuery = "?"

func number(v float64) string {
	return decimal.NewFromFloat(v).Round(3).String()
}

// MoveCommand formats an absolute linear move in millimetres.
func MoveCommand(x, y, feed float64) string {
	return fmt.Sprintf("G1 G21 X%s Y%s F%s\n", number(x), number(y), number(feed))
}

// JogCommand formats a relative jog along Y.
func JogCommand(dy, feed float64) string {
	return fmt.Sprintf("$J=G91 G21 Y%s F%s\n", number(dy), number(feed))
}
