package main

import (
	"io"
	"sync"

	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

type progress struct {
	p *mpb.Progress

	mu   sync.Mutex
	bars []*mpb.Bar
}

func newProgress(output io.Writer) *progress {
	return &progress{
		p: mpb.New(mpb.WithWidth(60), mpb.WithOutput(output)),
	}
}

func (p *progress) addBar(name string, total int64) *mpb.Bar {
	bar := p.p.AddBar(total,
		mpb.PrependDecorators(
			decor.CountersKibiByte("% .2f / % .2f "),
		),
		mpb.AppendDecorators(
			decor.Name(name, decor.WC{W: 20, C: decor.DidentRight}),
			decor.Name(" | "),
			decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
		),
	)

	p.mu.Lock()
	p.bars = append(p.bars, bar)
	p.mu.Unlock()

	return bar
}

// wait stops bars that will never complete, then waits for rendering.
func (p *progress) wait() {
	p.mu.Lock()
	for _, bar := range p.bars {
		if !bar.Completed() {
			bar.Abort(false)
		}
	}
	p.mu.Unlock()

	p.p.Wait()
}
