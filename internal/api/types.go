package api

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// LinkState is the health of one direction of a link.
type LinkState string

const (
	LinkGood LinkState = "good"
	LinkBad  LinkState = "bad"
)

// Valid reports whether s is a known state.
func (s LinkState) Valid() bool {
	return s == LinkGood || s == LinkBad
}

// Label returns the upper-case label shown on cards and in logs.
func (s LinkState) Label() string {
	if s == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(string(s))
}

// Network is one BTP network the backend relays between.
type Network struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Info describes the backend (GET {endpoint}/info).
type Info struct {
	Name     string    `json:"name"`
	Version  string    `json:"version"`
	Networks []Network `json:"networks"`
}

// Validate checks the fields the header relies on.
func (i *Info) Validate() error {
	for idx, n := range i.Networks {
		if n.Address == "" {
			return fmt.Errorf("networks[%d]: address is required", idx)
		}
	}
	return nil
}

// NetworkName returns the display name for address, or the address itself.
func (i *Info) NetworkName(address string) string {
	for _, n := range i.Networks {
		if n.Address == address && n.Name != "" {
			return n.Name
		}
	}
	return address
}

// MaxPendingDuration is the largest pending age, in seconds, a time.Duration holds.
const MaxPendingDuration = float64(math.MaxInt64 / int64(time.Second))

// Link is the relay state for one direction, src to dst.
type Link struct {
	Src     string    `json:"src"`
	Dst     string    `json:"dst"`
	SrcName string    `json:"src_name,omitempty"`
	DstName string    `json:"dst_name,omitempty"`
	State   LinkState `json:"state"`
	TxSeq   int64     `json:"tx_seq"`
	RxSeq   int64     `json:"rx_seq"`

	// PendingCount is the number of messages sent but not yet received.
	PendingCount int `json:"pending_count"`
	// PendingDuration is the age of the oldest pending message, in seconds.
	PendingDuration float64 `json:"pending_duration"`
}

// SrcLabel returns the source name, falling back to the address.
func (l Link) SrcLabel() string {
	if l.SrcName != "" {
		return l.SrcName
	}
	return l.Src
}

// DstLabel returns the destination name, falling back to the address.
func (l Link) DstLabel() string {
	if l.DstName != "" {
		return l.DstName
	}
	return l.Dst
}

// ID identifies the direction, e.g. "0x1.icon->0x38.bsc".
func (l Link) ID() string {
	return l.Src + "->" + l.Dst
}

// Delay returns PendingDuration as a duration, saturating at the largest
// representable value.
func (l Link) Delay() time.Duration {
	if l.PendingDuration >= MaxPendingDuration {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(l.PendingDuration * float64(time.Second))
}

// StatusReport is the relay status (GET {endpoint}/status).
type StatusReport struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Links     []Link    `json:"links,omitempty"`
}

// Validate checks the report before it enters the cache.
func (r *StatusReport) Validate() error {
	if strings.TrimSpace(r.Status) == "" {
		return fmt.Errorf("status is required")
	}
	for idx, l := range r.Links {
		if l.Src == "" || l.Dst == "" {
			return fmt.Errorf("links[%d]: src and dst are required", idx)
		}
		if !l.State.Valid() {
			return fmt.Errorf("links[%d]: unknown state %q", idx, l.State)
		}
		if err := checkPending(l.PendingCount, l.PendingDuration); err != nil {
			return fmt.Errorf("links[%d]: %w", idx, err)
		}
	}
	return nil
}

// BadLinks returns the links currently in LinkBad.
func (r *StatusReport) BadLinks() []Link {
	var bad []Link
	for _, l := range r.Links {
		if l.State == LinkBad {
			bad = append(bad, l)
		}
	}
	return bad
}

// Healthy reports whether every link is good.
func (r *StatusReport) Healthy() bool {
	return len(r.BadLinks()) == 0
}

// Pair groups the two directions between a pair of networks. Forward is the
// first direction seen in the report; Backward may be nil.
type Pair struct {
	Forward  *Link
	Backward *Link
}

// Name returns "A <-> B" using display names.
func (p Pair) Name() string {
	return p.Forward.SrcLabel() + " <-> " + p.Forward.DstLabel()
}

// Bad reports whether either direction is bad.
func (p Pair) Bad() bool {
	return p.Forward.State == LinkBad || (p.Backward != nil && p.Backward.State == LinkBad)
}

// Pairs groups links into connected pairs, in order of first appearance.
func (r *StatusReport) Pairs() []Pair {
	var pairs []Pair
	index := make(map[string]int)

	for i := range r.Links {
		l := &r.Links[i]
		if at, ok := index[l.Dst+"->"+l.Src]; ok && pairs[at].Backward == nil {
			pairs[at].Backward = l
			continue
		}
		index[l.ID()] = len(pairs)
		pairs = append(pairs, Pair{Forward: l})
	}
	return pairs
}

// Event is a recorded link state transition.
type Event struct {
	Time            time.Time `json:"time"`
	Src             string    `json:"src"`
	Dst             string    `json:"dst"`
	SrcName         string    `json:"src_name,omitempty"`
	DstName         string    `json:"dst_name,omitempty"`
	Before          LinkState `json:"before,omitempty"`
	After           LinkState `json:"after"`
	PendingCount    int       `json:"pending_count"`
	PendingDuration float64   `json:"pending_duration"`
}

// Link returns the link direction the event happened on.
func (e Event) Link() Link {
	return Link{Src: e.Src, Dst: e.Dst, SrcName: e.SrcName, DstName: e.DstName, State: e.After}
}

// EventLog is the recent event history (GET {endpoint}/events?limit=N).
type EventLog struct {
	Events []Event `json:"events"`
}

// Validate checks every event.
func (l *EventLog) Validate() error {
	for idx, e := range l.Events {
		if e.Src == "" || e.Dst == "" {
			return fmt.Errorf("events[%d]: src and dst are required", idx)
		}
		if !e.After.Valid() {
			return fmt.Errorf("events[%d]: unknown state %q", idx, e.After)
		}
		if err := checkPending(e.PendingCount, e.PendingDuration); err != nil {
			return fmt.Errorf("events[%d]: %w", idx, err)
		}
	}
	return nil
}

func checkPending(count int, seconds float64) error {
	if count < 0 || seconds < 0 {
		return fmt.Errorf("pending values must not be negative")
	}
	if seconds > MaxPendingDuration {
		return fmt.Errorf("pending_duration %g out of range", seconds)
	}
	return nil
}

// Newest returns the events sorted newest first. The log itself is not modified.
func (l *EventLog) Newest() []Event {
	out := append([]Event(nil), l.Events...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return out
}
