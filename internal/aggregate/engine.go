// Package aggregate reduces the canonical event stream into per-identity,
// per-day, per-hour and per-address statistics in a single pass.
// Accumulators combine associatively, so a date-sharded run merged back
// together is indistinguishable from a sequential one.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"trailscope/pkg/models"
)

// EventRef is the minimal per-event record retained for gap and session
// derivation.
type EventRef struct {
	Timestamp time.Time
	Action    string
}

// IdentityAccum accumulates one identity's statistics.
type IdentityAccum struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	EventCount   int
	ErroredCount int
	ActionCounts map[string]int
	Addresses    map[string]struct{}
	Events       []EventRef
}

// DayAccum accumulates one UTC calendar day.
type DayAccum struct {
	Date         string
	TotalEvents  int
	ErroredCount int
	PerIdentity  map[string]int
	ActionCounts map[string]int
}

// HourAccum accumulates one UTC hour.
type HourAccum struct {
	Hour         time.Time
	TotalEvents  int
	ErroredCount int
	PerIdentity  map[string]int
	ActionCounts map[string]int
}

// AddressAccum accumulates one source address.
type AddressAccum struct {
	EventCount   int
	Identities   map[string]struct{}
	ActionCounts map[string]int
}

// Accumulator is the streaming reduction state over canonical events.
type Accumulator struct {
	EventCount   int
	ErroredCount int
	FirstEvent   time.Time
	LastEvent    time.Time
	ActionCounts map[string]int
	ErrorCodes   map[string]int
	Identities   map[string]*IdentityAccum
	Days         map[string]*DayAccum
	Hours        map[time.Time]*HourAccum
	Addresses    map[string]*AddressAccum
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		ActionCounts: make(map[string]int, 256),
		ErrorCodes:   make(map[string]int, 64),
		Identities:   make(map[string]*IdentityAccum, 128),
		Days:         make(map[string]*DayAccum, 128),
		Hours:        make(map[time.Time]*HourAccum, 512),
		Addresses:    make(map[string]*AddressAccum, 1024),
	}
}

// Add folds one canonical event into the accumulator.
func (a *Accumulator) Add(event *models.CanonicalEvent) {
	if event == nil {
		return
	}

	a.EventCount++
	a.ActionCounts[event.Action]++
	if a.FirstEvent.IsZero() || event.Timestamp.Before(a.FirstEvent) {
		a.FirstEvent = event.Timestamp
	}
	if event.Timestamp.After(a.LastEvent) {
		a.LastEvent = event.Timestamp
	}
	if event.Errored() {
		a.ErroredCount++
		a.ErrorCodes[event.ErrorCode]++
	}

	ident := a.Identities[event.Identity]
	if ident == nil {
		ident = &IdentityAccum{
			ActionCounts: make(map[string]int, 16),
			Addresses:    make(map[string]struct{}, 4),
		}
		a.Identities[event.Identity] = ident
	}
	if ident.FirstSeen.IsZero() || event.Timestamp.Before(ident.FirstSeen) {
		ident.FirstSeen = event.Timestamp
	}
	if event.Timestamp.After(ident.LastSeen) {
		ident.LastSeen = event.Timestamp
	}
	ident.EventCount++
	ident.ActionCounts[event.Action]++
	if event.Errored() {
		ident.ErroredCount++
	}
	if event.SourceAddress != "" {
		ident.Addresses[event.SourceAddress] = struct{}{}
	}
	ident.Events = append(ident.Events, EventRef{Timestamp: event.Timestamp, Action: event.Action})

	date := event.Date()
	day := a.Days[date]
	if day == nil {
		day = &DayAccum{
			Date:         date,
			PerIdentity:  make(map[string]int, 16),
			ActionCounts: make(map[string]int, 32),
		}
		a.Days[date] = day
	}
	day.TotalEvents++
	day.PerIdentity[event.Identity]++
	day.ActionCounts[event.Action]++
	if event.Errored() {
		day.ErroredCount++
	}

	hourKey := event.Timestamp.UTC().Truncate(time.Hour)
	hour := a.Hours[hourKey]
	if hour == nil {
		hour = &HourAccum{
			Hour:         hourKey,
			PerIdentity:  make(map[string]int, 8),
			ActionCounts: make(map[string]int, 16),
		}
		a.Hours[hourKey] = hour
	}
	hour.TotalEvents++
	hour.PerIdentity[event.Identity]++
	hour.ActionCounts[event.Action]++
	if event.Errored() {
		hour.ErroredCount++
	}

	if event.SourceAddress != "" {
		addr := a.Addresses[event.SourceAddress]
		if addr == nil {
			addr = &AddressAccum{
				Identities:   make(map[string]struct{}, 4),
				ActionCounts: make(map[string]int, 8),
			}
			a.Addresses[event.SourceAddress] = addr
		}
		addr.EventCount++
		addr.Identities[event.Identity] = struct{}{}
		addr.ActionCounts[event.Action]++
	}
}

// Merge folds another accumulator into this one. Shard order does not
// matter: downstream derivations sort before emitting.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}

	a.EventCount += other.EventCount
	a.ErroredCount += other.ErroredCount
	if a.FirstEvent.IsZero() || (!other.FirstEvent.IsZero() && other.FirstEvent.Before(a.FirstEvent)) {
		a.FirstEvent = other.FirstEvent
	}
	if other.LastEvent.After(a.LastEvent) {
		a.LastEvent = other.LastEvent
	}
	for action, count := range other.ActionCounts {
		a.ActionCounts[action] += count
	}
	for code, count := range other.ErrorCodes {
		a.ErrorCodes[code] += count
	}

	for identity, o := range other.Identities {
		ident := a.Identities[identity]
		if ident == nil {
			ident = &IdentityAccum{
				ActionCounts: make(map[string]int, len(o.ActionCounts)),
				Addresses:    make(map[string]struct{}, len(o.Addresses)),
			}
			a.Identities[identity] = ident
		}
		if ident.FirstSeen.IsZero() || (!o.FirstSeen.IsZero() && o.FirstSeen.Before(ident.FirstSeen)) {
			ident.FirstSeen = o.FirstSeen
		}
		if o.LastSeen.After(ident.LastSeen) {
			ident.LastSeen = o.LastSeen
		}
		ident.EventCount += o.EventCount
		ident.ErroredCount += o.ErroredCount
		for action, count := range o.ActionCounts {
			ident.ActionCounts[action] += count
		}
		for addr := range o.Addresses {
			ident.Addresses[addr] = struct{}{}
		}
		ident.Events = append(ident.Events, o.Events...)
	}

	for date, o := range other.Days {
		day := a.Days[date]
		if day == nil {
			day = &DayAccum{
				Date:         date,
				PerIdentity:  make(map[string]int, len(o.PerIdentity)),
				ActionCounts: make(map[string]int, len(o.ActionCounts)),
			}
			a.Days[date] = day
		}
		day.TotalEvents += o.TotalEvents
		day.ErroredCount += o.ErroredCount
		for identity, count := range o.PerIdentity {
			day.PerIdentity[identity] += count
		}
		for action, count := range o.ActionCounts {
			day.ActionCounts[action] += count
		}
	}

	for hourKey, o := range other.Hours {
		hour := a.Hours[hourKey]
		if hour == nil {
			hour = &HourAccum{
				Hour:         o.Hour,
				PerIdentity:  make(map[string]int, len(o.PerIdentity)),
				ActionCounts: make(map[string]int, len(o.ActionCounts)),
			}
			a.Hours[hourKey] = hour
		}
		hour.TotalEvents += o.TotalEvents
		hour.ErroredCount += o.ErroredCount
		for identity, count := range o.PerIdentity {
			hour.PerIdentity[identity] += count
		}
		for action, count := range o.ActionCounts {
			hour.ActionCounts[action] += count
		}
	}

	for address, o := range other.Addresses {
		addr := a.Addresses[address]
		if addr == nil {
			addr = &AddressAccum{
				Identities:   make(map[string]struct{}, len(o.Identities)),
				ActionCounts: make(map[string]int, len(o.ActionCounts)),
			}
			a.Addresses[address] = addr
		}
		addr.EventCount += o.EventCount
		for identity := range o.Identities {
			addr.Identities[identity] = struct{}{}
		}
		for action, count := range o.ActionCounts {
			addr.ActionCounts[action] += count
		}
	}
}

// TopActions ranks action counts descending, ties broken by action name
// ascending, and keeps at most n entries. n <= 0 keeps everything.
func TopActions(counts map[string]int, n int) []models.ActionCount {
	out := make([]models.ActionCount, 0, len(counts))
	for action, count := range counts {
		out = append(out, models.ActionCount{Action: action, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Action < out[j].Action
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// TopErrorCodes ranks error code counts the same way as TopActions.
func TopErrorCodes(counts map[string]int, n int) []models.CodeCount {
	out := make([]models.CodeCount, 0, len(counts))
	for code, count := range counts {
		out = append(out, models.CodeCount{Code: code, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Code < out[j].Code
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// DailyBuckets derives the per-day buckets sorted by date ascending.
// Days with zero events are absent.
func (a *Accumulator) DailyBuckets(topActions int) []models.DailyBucket {
	out := make([]models.DailyBucket, 0, len(a.Days))
	for _, day := range a.Days {
		perIdentity := make(map[string]int, len(day.PerIdentity))
		for identity, count := range day.PerIdentity {
			perIdentity[identity] = count
		}
		out = append(out, models.DailyBucket{
			Date:             day.Date,
			TotalEvents:      day.TotalEvents,
			UniqueIdentities: len(day.PerIdentity),
			PerIdentity:      perIdentity,
			TopActions:       TopActions(day.ActionCounts, topActions),
			ErroredCount:     day.ErroredCount,
			ErrorRate:        rate(day.ErroredCount, day.TotalEvents),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// HourlyBuckets derives hour buckets with at least minEvents events,
// sorted by hour ascending.
func (a *Accumulator) HourlyBuckets(minEvents int) []models.HourlyBucket {
	out := make([]models.HourlyBucket, 0, 32)
	for _, hour := range a.Hours {
		if hour.TotalEvents < minEvents {
			continue
		}
		perIdentity := make(map[string]int, len(hour.PerIdentity))
		for identity, count := range hour.PerIdentity {
			perIdentity[identity] = count
		}
		dominant := ""
		if top := TopActions(hour.ActionCounts, 1); len(top) > 0 {
			dominant = top[0].Action
		}
		out = append(out, models.HourlyBucket{
			Hour:           hour.Hour,
			TotalEvents:    hour.TotalEvents,
			PerIdentity:    perIdentity,
			DominantAction: dominant,
			ErrorRate:      rate(hour.ErroredCount, hour.TotalEvents),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out
}

// DenseDailyBuckets fills the inclusive date range with zero buckets for
// absent days. Callers that need a gap-free series request it explicitly.
func DenseDailyBuckets(buckets []models.DailyBucket, from, to string) ([]models.DailyBucket, error) {
	start, err := time.Parse(models.DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("parse range start: %w", err)
	}
	end, err := time.Parse(models.DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("parse range end: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s before start %s", to, from)
	}

	byDate := make(map[string]models.DailyBucket, len(buckets))
	for _, b := range buckets {
		byDate[b.Date] = b
	}

	out := make([]models.DailyBucket, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(models.DateLayout)
		if b, ok := byDate[date]; ok {
			out = append(out, b)
			continue
		}
		out = append(out, models.DailyBucket{Date: date, PerIdentity: map[string]int{}, TopActions: []models.ActionCount{}})
	}
	return out, nil
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}
