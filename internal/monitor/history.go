package monitor

import (
	"sync"

	"github.com/btp2/btpmon/internal/api"
)

// DefaultHistorySize is the number of status samples kept per link.
// At the default 30s status interval that is one hour.
const DefaultHistorySize = 120

// History keeps the pending-message count of every link in ring buffers
// for sparkline rendering.
type History struct {
	mu    sync.RWMutex
	size  int
	links map[string]*ringBuffer
}

// ringBuffer is a fixed-size circular buffer for float64 values.
type ringBuffer struct {
	data  []float64
	head  int
	count int
	size  int
}

// NewHistory creates a history tracker with the given per-link capacity.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:  size,
		links: make(map[string]*ringBuffer),
	}
}

// Push records one sample for every link in the report.
func (h *History) Push(report *api.StatusReport) {
	if report == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, l := range report.Links {
		buf, ok := h.links[l.ID()]
		if !ok {
			buf = newRingBuffer(h.size)
			h.links[l.ID()] = buf
		}
		buf.push(float64(l.PendingCount))
	}
}

// Pending returns up to count pending-count samples for the link, oldest first.
func (h *History) Pending(linkID string, count int) []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf, ok := h.links[linkID]
	if !ok {
		return nil
	}
	return buf.getLast(count)
}

// Count returns the number of samples stored for a link.
func (h *History) Count(linkID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf, ok := h.links[linkID]
	if !ok {
		return 0
	}
	return buf.count
}

// Len returns the number of tracked links.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.links)
}

// Retain drops links that are absent from the report.
func (h *History) Retain(report *api.StatusReport) {
	if report == nil {
		return
	}

	keep := make(map[string]struct{}, len(report.Links))
	for _, l := range report.Links {
		keep[l.ID()] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.links {
		if _, ok := keep[id]; !ok {
			delete(h.links, id)
		}
	}
}

// ClearAll removes all history.
func (h *History) ClearAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.links = make(map[string]*ringBuffer)
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		data: make([]float64, size),
		size: size,
	}
}

func (r *ringBuffer) push(value float64) {
	r.data[r.head] = value
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// getLast returns the last count values in chronological order (oldest first).
func (r *ringBuffer) getLast(count int) []float64 {
	if count <= 0 || r.count == 0 {
		return nil
	}
	if count > r.count {
		count = r.count
	}

	result := make([]float64, count)

	// head is the next write position, so the newest value sits at head-1.
	start := (r.head - count + r.size) % r.size
	for i := 0; i < count; i++ {
		result[i] = r.data[(start+i)%r.size]
	}
	return result
}
