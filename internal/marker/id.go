package marker

import (
	"sync"

	"github.com/sadopc/marktime/internal/clock"
)

const base62Digits = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Base62 encodes n in shortest-form base 62 using digits 0-9a-zA-Z.
// Negative input encodes its absolute value.
func Base62(n int64) string {
	if n < 0 {
		n = -n
	}
	if n == 0 {
		return "0"
	}
	var buf [11]byte // 2^63 fits in 11 base-62 digits
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base62Digits[n%62]
		n /= 62
	}
	return string(buf[i:])
}

// IDSource mints marker ids from millisecond creation time, base-62
// encoded. Two starts within the same millisecond are disambiguated by
// bumping, so ids stay unique and roughly ordered within a session.
type IDSource struct {
	mu   sync.Mutex
	clk  clock.Clock
	last int64
}

func NewIDSource(clk clock.Clock) *IDSource {
	return &IDSource{clk: clk}
}

func (g *IDSource) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.clk.Now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return Base62(ms)
}
