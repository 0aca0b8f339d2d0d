package tail

import (
	"strings"
	"time"
)

// Pulse lights up on every frame and fades while the stream is quiet.
// Heartbeats get their own dimmer beat so a silent-but-alive stream is
// distinguishable from a stalled one.
type Pulse struct {
	dots          int
	lastFrame     time.Time
	lastHeartbeat time.Time
}

func (p *Pulse) OnFrame(at time.Time) {
	p.dots = 5
	p.lastFrame = at
}

func (p *Pulse) OnHeartbeat(at time.Time) {
	p.lastHeartbeat = at
}

// Decay fades the dots based on time since the last frame.
func (p *Pulse) Decay(now time.Time) {
	if p.dots == 0 {
		return
	}
	elapsed := now.Sub(p.lastFrame)
	switch {
	case elapsed > 10*time.Second:
		p.dots = 0
	case elapsed > 8*time.Second:
		p.dots = 1
	case elapsed > 6*time.Second:
		p.dots = 2
	case elapsed > 4*time.Second:
		p.dots = 3
	case elapsed > 2*time.Second:
		p.dots = 4
	}
}

func (p Pulse) Dots() int { return p.dots }

func (p Pulse) Render(theme Theme) string {
	var result strings.Builder
	for i := range 5 {
		if i < p.dots {
			result.WriteString(theme.TickerActive.Render("●"))
		} else {
			result.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return result.String()
}

func (p Pulse) LastFrame() time.Time     { return p.lastFrame }
func (p Pulse) LastHeartbeat() time.Time { return p.lastHeartbeat }
