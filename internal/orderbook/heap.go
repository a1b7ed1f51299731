package orderbook

import "github.com/shopspring/decimal"

// priceHeap implements heap.Interface over distinct price levels.
// With desc set the highest price sits on top (bids); otherwise the
// lowest (asks). Use container/heap to manipulate it.
type priceHeap struct {
	prices []decimal.Decimal
	desc   bool
}

func (h *priceHeap) Len() int { return len(h.prices) }

func (h *priceHeap) Less(i, j int) bool {
	if h.desc {
		return h.prices[i].GreaterThan(h.prices[j])
	}
	return h.prices[i].LessThan(h.prices[j])
}

func (h *priceHeap) Swap(i, j int) { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }

func (h *priceHeap) Push(x any) {
	h.prices = append(h.prices, x.(decimal.Decimal))
}

func (h *priceHeap) Pop() any {
	old := h.prices
	n := len(old)
	x := old[n-1]
	h.prices = old[:n-1]
	return x
}

// Peek returns the top price without removing it.
func (h *priceHeap) Peek() (decimal.Decimal, bool) {
	if len(h.prices) == 0 {
		return decimal.Zero, false
	}
	return h.prices[0], true
}

// indexOf is a linear scan; level removal is rare next to fills.
func (h *priceHeap) indexOf(p decimal.Decimal) int {
	for i, q := range h.prices {
		if q.Equal(p) {
			return i
		}
	}
	return -1
}

func (h *priceHeap) clone() *priceHeap {
	return &priceHeap{prices: append([]decimal.Decimal(nil), h.prices...), desc: h.desc}
}
