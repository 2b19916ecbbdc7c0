// Package builtin registers a couple of diagnostic plugin types with the
// default registry. Import it for side effects:
//
//	import _ "github.com/psantana5/nodehost/pkg/plugin/builtin"
package builtin

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/psantana5/nodehost/pkg/plugin"
)

func init() {
	plugin.Register("nodehost/Ticker", func() (plugin.Plugin, error) {
		return &ticker{period: time.Second}, nil
	})
	plugin.Register("nodehost/Echo", func() (plugin.Plugin, error) {
		return &echo{}, nil
	})
}

// ticker pushes a logging task onto its single-threaded queue on a fixed
// period. Pass "period=500ms" in the load args to change the interval.
type ticker struct {
	name   string
	period time.Duration
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func (t *ticker) Init(ctx plugin.InitContext) error {
	t.name = ctx.Name
	for _, arg := range ctx.Args {
		if v, ok := strings.CutPrefix(arg, "period="); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			t.period = d
		}
	}

	t.stopCh = make(chan struct{})
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		tick := time.NewTicker(t.period)
		defer tick.Stop()
		n := 0
		for {
			select {
			case <-tick.C:
				n++
				seq := n
				ctx.Queue.Push(func() {
					log.Printf("[%s] tick %d", t.name, seq)
				})
			case <-t.stopCh:
				return
			}
		}
	}()
	return nil
}

func (t *ticker) Stop() {
	close(t.stopCh)
	t.wg.Wait()
}

// echo logs its remappings and arguments once, on the work queue
type echo struct{}

func (e *echo) Init(ctx plugin.InitContext) error {
	name := ctx.Name
	remaps := make([]string, 0, len(ctx.Remappings))
	for src, dst := range ctx.Remappings {
		remaps = append(remaps, src+"->"+dst)
	}
	args := ctx.Args
	ctx.WorkQueue.Push(func() {
		log.Printf("[%s] args=%v remappings=%v", name, args, remaps)
	})
	return nil
}

func (e *echo) Stop() {}
