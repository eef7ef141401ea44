package executor

import (
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

func sideRank(s domain.Side) int {
	switch s {
	case domain.SideBuy:
		return 0
	case domain.SideSell:
		return 1
	default:
		return 2
	}
}

// CompareOrders is the one ordering used for every backlog: buys before
// sells, then price descending. Ties fall back to creation time and DataID so
// the order is total.
//
// With this ordering the front of a list is the highest buy and the back is
// the lowest sell, which are the legs most likely to have filled.
func CompareOrders(a, b *domain.ArbitrageOrder) int {
	if ra, rb := sideRank(a.Side), sideRank(b.Side); ra != rb {
		return ra - rb
	}
	if c := b.Price.Cmp(a.Price); c != 0 {
		return c
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	}
	return strings.Compare(a.DataID, b.DataID)
}

// buysFromFront yields buy legs front to back.
func buysFromFront(list []*domain.ArbitrageOrder) []*domain.ArbitrageOrder {
	var out []*domain.ArbitrageOrder
	for _, o := range list {
		if o.Side != domain.SideBuy {
			break
		}
		out = append(out, o)
	}
	return out
}

// sellsFromBack yields sell legs back to front.
func sellsFromBack(list []*domain.ArbitrageOrder) []*domain.ArbitrageOrder {
	var out []*domain.ArbitrageOrder
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Side != domain.SideSell {
			break
		}
		out = append(out, list[i])
	}
	return out
}
