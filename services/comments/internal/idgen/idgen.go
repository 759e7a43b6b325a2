// Package idgen issues thread and sub-thread numbers. Values increase with
// wall-clock seconds and are unique within a process for up to 1000 ids per
// second.
package idgen

import (
	"math/rand/v2"
	"sync/atomic"
	"time"
)

type Generator struct {
	counter atomic.Int64
	now     func() time.Time
	rand    func(n int) int
}

func New() *Generator {
	return &Generator{now: time.Now, rand: rand.IntN}
}

// Next returns seconds*100000 + r*1000 + counter, with r in [0,100) and the
// counter rolling modulo 1000.
func (g *Generator) Next() int64 {
	var c int64
	for {
		old := g.counter.Load()
		c = (old + 1) % 1000
		if g.counter.CompareAndSwap(old, c) {
			break
		}
	}
	return g.now().Unix()*100000 + int64(g.rand(100))*1000 + c
}

var defaultGenerator = New()

func Next() int64 {
	return defaultGenerator.Next()
}
