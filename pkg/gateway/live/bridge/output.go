package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/live"
	"github.com/vango-go/antron/pkg/gateway/live/protocol"
)

// NewOutput starts a fresh output clock at zero. It matches
// live.Dependencies.NewOutput.
func (b *Bridge) NewOutput() (live.OutputContext, error) {
	if b.ctx.Err() != nil {
		return nil, core.NewPlaybackError("client disconnected", errClosed)
	}
	return newOutput(b, time.Now), nil
}

// output schedules buffers on the client. The server decides when each
// buffer starts and ends; the client only plays what it is sent.
type output struct {
	b     *Bridge
	now   func() time.Time
	epoch time.Time

	mu     sync.Mutex
	seq    uint64
	voices map[string]*voice
	closed bool
}

func newOutput(b *Bridge, now func() time.Time) *output {
	return &output{b: b, now: now, epoch: now(), voices: make(map[string]*voice)}
}

func (o *output) Now() time.Duration {
	return o.now().Sub(o.epoch)
}

func (o *output) Play(chunk live.AudioChunk, at time.Duration, onEnded func()) (live.Voice, error) {
	if chunk.SampleRateHz <= 0 || chunk.Channels <= 0 {
		return nil, core.NewPlaybackError(fmt.Sprintf("unsupported format %d Hz x %d", chunk.SampleRateHz, chunk.Channels), nil)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, core.NewPlaybackError("output closed", nil)
	}
	o.seq++
	v := &voice{out: o, id: fmt.Sprintf("a_%d", o.seq), onEnded: onEnded}
	o.voices[v.id] = v
	o.mu.Unlock()

	if err := o.b.enqueue(protocol.AudioFrom(v.id, chunk, at), false); err != nil {
		o.remove(v.id)
		return nil, core.NewPlaybackError("send audio", err)
	}

	delay := at + chunk.Duration() - o.Now()
	if delay < 0 {
		delay = 0
	}
	v.mu.Lock()
	if !v.done {
		v.timer = time.AfterFunc(delay, v.finish)
	}
	v.mu.Unlock()
	return v, nil
}

// Close silences every buffer still scheduled on the client.
func (o *output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	voices := make([]*voice, 0, len(o.voices))
	for _, v := range o.voices {
		voices = append(voices, v)
	}
	o.voices = make(map[string]*voice)
	o.mu.Unlock()

	ids := make([]string, 0, len(voices))
	for _, v := range voices {
		if v.cancel() {
			ids = append(ids, v.id)
		}
	}
	if len(ids) > 0 {
		_ = o.b.enqueue(protocol.ServerAudioStop{Type: protocol.TypeAudioStop, IDs: ids}, true)
	}
	return nil
}

func (o *output) remove(id string) {
	o.mu.Lock()
	delete(o.voices, id)
	o.mu.Unlock()
}

type voice struct {
	out     *output
	id      string
	onEnded func()

	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

func (v *voice) finish() {
	v.mu.Lock()
	if v.done {
		v.mu.Unlock()
		return
	}
	v.done = true
	v.mu.Unlock()

	v.out.remove(v.id)
	if v.onEnded != nil {
		v.onEnded()
	}
}

// cancel ends the voice early and reports whether it was still live.
// onEnded runs on its own goroutine.
func (v *voice) cancel() bool {
	v.mu.Lock()
	if v.done {
		v.mu.Unlock()
		return false
	}
	v.done = true
	if v.timer != nil {
		v.timer.Stop()
	}
	v.mu.Unlock()

	if v.onEnded != nil {
		go v.onEnded()
	}
	return true
}

func (v *voice) Stop() {
	if !v.cancel() {
		return
	}
	v.out.remove(v.id)
	_ = v.out.b.enqueue(protocol.ServerAudioStop{Type: protocol.TypeAudioStop, IDs: []string{v.id}}, true)
}
