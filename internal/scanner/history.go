package scanner

import "github.com/rewired-gh/polyscan/internal/models"

// DefaultHistoryCapacity bounds the recent-moves buffer.
const DefaultHistoryCapacity = 500

// MoveHistory is a fixed-capacity FIFO ring of moves. Once full, each
// append evicts the oldest entry. It is not safe for concurrent use; the
// engine guards it with its state lock.
type MoveHistory struct {
	buf   []models.Move
	start int
	size  int
}

// NewMoveHistory creates an empty history holding at most capacity moves.
func NewMoveHistory(capacity int) *MoveHistory {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &MoveHistory{buf: make([]models.Move, capacity)}
}

// Cap returns the fixed capacity.
func (h *MoveHistory) Cap() int { return len(h.buf) }

// Len returns the number of retained moves.
func (h *MoveHistory) Len() int { return h.size }

// Append adds moves in order, evicting the oldest on overflow.
func (h *MoveHistory) Append(moves ...models.Move) {
	for _, m := range moves {
		if h.size < len(h.buf) {
			h.buf[(h.start+h.size)%len(h.buf)] = m
			h.size++
			continue
		}
		h.buf[h.start] = m
		h.start = (h.start + 1) % len(h.buf)
	}
}

// Reset replaces the contents, keeping only the newest Cap() entries.
func (h *MoveHistory) Reset(moves []models.Move) {
	h.start, h.size = 0, 0
	for i := range h.buf {
		h.buf[i] = models.Move{}
	}
	if len(moves) > len(h.buf) {
		moves = moves[len(moves)-len(h.buf):]
	}
	h.Append(moves...)
}

// Moves returns a copy, oldest first.
func (h *MoveHistory) Moves() []models.Move {
	out := make([]models.Move, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Since returns a copy of the moves stamped at or after cutoff, oldest
// first. A zero cutoff returns everything.
func (h *MoveHistory) Since(cutoff models.UnixTime) []models.Move {
	if cutoff.IsZero() {
		return h.Moves()
	}
	out := make([]models.Move, 0, h.size)
	for i := 0; i < h.size; i++ {
		m := h.buf[(h.start+i)%len(h.buf)]
		if !m.Time.Before(cutoff.Time) {
			out = append(out, m)
		}
	}
	return out
}
