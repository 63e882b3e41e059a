package playback

import "sync"

type CommandOp string

const (
	OpSeek  CommandOp = "seek"
	OpPlay  CommandOp = "play"
	OpPause CommandOp = "pause"
)

// Command is one media instruction for a presentation layer that owns the
// real player.
type Command struct {
	OverlayID  string    `json:"overlay_id"`
	Op         CommandOp `json:"op"`
	PositionMs int64     `json:"position_ms"`
}

// CommandQueue collects commands from per-overlay recorder handles until the
// presentation layer drains them.
type CommandQueue struct {
	mu       sync.Mutex
	commands []Command
}

func (q *CommandQueue) push(c Command) {
	q.mu.Lock()
	q.commands = append(q.commands, c)
	q.mu.Unlock()
}

// Drain returns queued commands in issue order and empties the queue.
func (q *CommandQueue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.commands
	q.commands = nil
	if out == nil {
		out = []Command{}
	}
	return out
}

// Handle returns a recorder for the given overlay.
func (q *CommandQueue) Handle(overlayID string) Handle {
	return &recorder{queue: q, id: overlayID}
}

type recorder struct {
	queue *CommandQueue
	id    string
}

func (r *recorder) Play() error {
	r.queue.push(Command{OverlayID: r.id, Op: OpPlay})
	return nil
}

func (r *recorder) Pause() error {
	r.queue.push(Command{OverlayID: r.id, Op: OpPause})
	return nil
}

func (r *recorder) Seek(ms int64) error {
	r.queue.push(Command{OverlayID: r.id, Op: OpSeek, PositionMs: ms})
	return nil
}
