package live

import (
	"sync"
	"time"
)

// Scheduler queues model audio gaplessly on an OutputContext.
//
// Each buffer starts at max(now, end of previous buffer). The speaking
// flag rises with the first buffer after silence and falls when a buffer
// ends within tolerance of the end of the queue. Interrupt is a hard
// stop: every scheduled buffer is stopped and the queue restarts at the
// current clock time.
type Scheduler struct {
	out       OutputContext
	tolerance time.Duration
	onChange  func(speaking bool)

	mu        sync.Mutex
	nextStart time.Duration
	speaking  bool
	voices    map[uint64]Voice
	seq       uint64
	epoch     uint64
}

// NewScheduler builds a scheduler. onChange, if set, is called outside
// the scheduler lock whenever the speaking flag flips.
func NewScheduler(out OutputContext, tolerance time.Duration, onChange func(speaking bool)) *Scheduler {
	if tolerance < 0 {
		tolerance = DefaultPlaybackTolerance
	}
	return &Scheduler{
		out:       out,
		tolerance: tolerance,
		onChange:  onChange,
		voices:    make(map[uint64]Voice),
	}
}

// Schedule enqueues chunk and returns its start time on the output clock.
func (s *Scheduler) Schedule(chunk AudioChunk) (time.Duration, error) {
	s.mu.Lock()
	now := s.out.Now()
	start := s.nextStart
	if now > start {
		start = now
	}

	s.seq++
	id, epoch := s.seq, s.epoch
	voice, err := s.out.Play(chunk, start, func() { s.ended(id, epoch) })
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.voices[id] = voice
	s.nextStart = start + chunk.Duration()

	changed := !s.speaking
	s.speaking = true
	s.mu.Unlock()

	if changed {
		s.notify(true)
	}
	return start, nil
}

func (s *Scheduler) ended(id, epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	delete(s.voices, id)
	changed := false
	if s.speaking && s.out.Now() >= s.nextStart-s.tolerance {
		s.speaking = false
		changed = true
	}
	s.mu.Unlock()

	if changed {
		s.notify(false)
	}
}

// Interrupt stops all scheduled audio and resets the queue.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	voices := s.voices
	s.voices = make(map[uint64]Voice)
	s.epoch++
	s.nextStart = 0
	changed := s.speaking
	s.speaking = false
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
	if changed {
		s.notify(false)
	}
}

// Silence clears the speaking flag without touching scheduled audio.
func (s *Scheduler) Silence() {
	s.mu.Lock()
	changed := s.speaking
	s.speaking = false
	s.mu.Unlock()
	if changed {
		s.notify(false)
	}
}

// NextStart returns the end of the queued audio on the output clock.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Scheduled returns the number of buffers that have not yet ended.
func (s *Scheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

func (s *Scheduler) notify(speaking bool) {
	if s.onChange != nil {
		s.onChange(speaking)
	}
}
