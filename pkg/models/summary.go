package models

import "time"

// ActionCount pairs an action name with its occurrence count.
type ActionCount struct {
	Action string `json:"action"`
	Count  int    `json:"count"`
}

// CodeCount pairs an error code with its occurrence count.
type CodeCount struct {
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// VelocityHistogram counts consecutive same-identity event gaps per tier.
// An identity with n events contributes n-1 gaps.
type VelocityHistogram struct {
	SubSecond int `json:"sub_second"`
	Seconds   int `json:"seconds"`
	Human     int `json:"human"`
}

// Total returns the number of gaps in the histogram.
func (h VelocityHistogram) Total() int {
	return h.SubSecond + h.Seconds + h.Human
}

// TierShares returns each tier's share of all gaps. Zero gaps yield all zeros.
func (h VelocityHistogram) TierShares() (subSecond, seconds, human float64) {
	total := h.Total()
	if total == 0 {
		return 0, 0, 0
	}
	return float64(h.SubSecond) / float64(total),
		float64(h.Seconds) / float64(total),
		float64(h.Human) / float64(total)
}

// IdentityProfile is the derived behavioral profile of one identity.
// Profiles are rebuilt from scratch on every run and are read-only
// afterwards. ErrorRate carries no minimum-sample threshold; LowSample
// is an advisory flag only and never suppresses the profile.
type IdentityProfile struct {
	Identity          string             `json:"identity"`
	FirstSeen         time.Time          `json:"first_seen"`
	LastSeen          time.Time          `json:"last_seen"`
	EventCount        int                `json:"event_count"`
	ErroredCount      int                `json:"errored_count"`
	ErrorRate         float64            `json:"error_rate"`
	TopActions        []ActionCount      `json:"top_actions"`
	UniqueActions     int                `json:"unique_actions"`
	VelocityHistogram VelocityHistogram  `json:"velocity_histogram"`
	SourceAddresses   []string           `json:"source_addresses"`
	CategoryShares    map[string]float64 `json:"category_shares,omitempty"`
	LowSample         bool               `json:"low_sample,omitempty"`
}

// DailyBucket aggregates one UTC calendar day present in the data.
// Days with zero events are absent unless a caller requests a dense range.
type DailyBucket struct {
	Date             string         `json:"date"`
	TotalEvents      int            `json:"total_events"`
	UniqueIdentities int            `json:"unique_identities"`
	PerIdentity      map[string]int `json:"per_identity"`
	TopActions       []ActionCount  `json:"top_actions"`
	ErroredCount     int            `json:"errored_count"`
	ErrorRate        float64        `json:"error_rate"`
}

// HourlyBucket aggregates one UTC hour, emitted only above a volume threshold.
type HourlyBucket struct {
	Hour           time.Time      `json:"hour"`
	TotalEvents    int            `json:"total_events"`
	PerIdentity    map[string]int `json:"per_identity"`
	DominantAction string         `json:"dominant_action"`
	ErrorRate      float64        `json:"error_rate"`
}

// AnomalyWindow is a contiguous span of days whose volume exceeded the
// trailing baseline. PartialBaseline marks windows whose baseline was
// computed from fewer days of history than configured.
type AnomalyWindow struct {
	StartDate          string  `json:"start_date"`
	EndDate            string  `json:"end_date"`
	EventCount         int     `json:"event_count"`
	BaselineEvents     int     `json:"baseline_events"`
	BaselineMultiplier float64 `json:"baseline_multiplier"`
	DominantAction     string  `json:"dominant_action"`
	ErrorRate          float64 `json:"error_rate"`
	PartialBaseline    bool    `json:"partial_baseline,omitempty"`
}

// CorrelationEdge links two identities that used at least one common
// source address. Edges are undirected; IdentityA sorts before IdentityB
// and each pair is emitted exactly once.
type CorrelationEdge struct {
	IdentityA          string   `json:"identity_a"`
	IdentityB          string   `json:"identity_b"`
	SharedAddressCount int      `json:"shared_address_count"`
	SharedAddresses    []string `json:"shared_addresses"`
}

// PhaseRationale records the numbers a phase label was derived from.
// Every assignment must be traceable back to these.
type PhaseRationale struct {
	EventCount           int                `json:"event_count"`
	ErrorRate            float64            `json:"error_rate"`
	SubSecondShare       float64            `json:"sub_second_share"`
	SecondsShare         float64            `json:"seconds_share"`
	HumanShare           float64            `json:"human_share"`
	CategoryShares       map[string]float64 `json:"category_shares,omitempty"`
	CorrelatedIdentities int                `json:"correlated_identities"`
	OverlapsAnomaly      bool               `json:"overlaps_anomaly"`
}

// AttackPhase is one labeled, time-bounded segment of the reconstructed
// attack lifecycle. Ordinals increase with start date.
type AttackPhase struct {
	Ordinal   int            `json:"ordinal"`
	Identity  string         `json:"identity"`
	Label     string         `json:"label"`
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Rationale PhaseRationale `json:"rationale"`
}

// Phase label vocabulary.
const (
	PhaseReconnaissance   = "reconnaissance"
	PhaseEscalation       = "escalation"
	PhaseExploitation     = "exploitation"
	PhaseMassExploitation = "mass-exploitation"
)

// SessionSequence is one idle-gap-delimited activity session of an identity.
type SessionSequence struct {
	Session         int       `json:"session"`
	Start           time.Time `json:"start"`
	DurationMinutes float64   `json:"duration_minutes"`
	EventCount      int       `json:"event_count"`
	Actions         []string  `json:"actions"`
}

// IdentitySessions groups the retained sessions of one identity.
type IdentitySessions struct {
	Identity string            `json:"identity"`
	Sessions []SessionSequence `json:"sessions"`
}

// AddressActivity summarizes one high-volume source address.
type AddressActivity struct {
	Address    string        `json:"address"`
	Identities []string      `json:"identities"`
	EventCount int           `json:"event_count"`
	TopActions []ActionCount `json:"top_actions"`
}

// ErrorSummary aggregates error codes across the whole dataset.
type ErrorSummary struct {
	TotalErrors int         `json:"total_errors"`
	ErrorRate   float64     `json:"error_rate"`
	TopCodes    []CodeCount `json:"top_codes"`
}

// Statistics holds dataset-level totals.
type Statistics struct {
	TotalEvents       int       `json:"total_events"`
	SkippedEvents     int       `json:"skipped_events"`
	FirstEvent        time.Time `json:"first_event"`
	LastEvent         time.Time `json:"last_event"`
	UniqueIdentities  int       `json:"unique_identities"`
	UniqueAddresses   int       `json:"unique_addresses"`
	UniqueActions     int       `json:"unique_actions"`
	OverallErrorRate  float64   `json:"overall_error_rate"`
	CategoryVersion   string    `json:"category_table_version"`
}

// AnalysisSummary is the single aggregate root produced by one analysis
// run. It is the only object crossing the core boundary; downstream
// consumers read it and never trigger recomputation.
type AnalysisSummary struct {
	Statistics       Statistics         `json:"statistics"`
	Profiles         []IdentityProfile  `json:"profiles"`
	DailyBuckets     []DailyBucket      `json:"daily_buckets"`
	HourlyBreakdown  []HourlyBucket     `json:"hourly_breakdown,omitempty"`
	AnomalyWindows   []AnomalyWindow    `json:"anomaly_windows"`
	CorrelationEdges []CorrelationEdge  `json:"correlation_edges"`
	Phases           []AttackPhase      `json:"phases"`
	Sessions         []IdentitySessions `json:"sessions,omitempty"`
	TopAddresses     []AddressActivity  `json:"top_addresses,omitempty"`
	Errors           ErrorSummary       `json:"errors"`
}
