package domain

import (
	"fmt"
	"time"
)

// ListType classifies a watchlist and determines the sign and magnitude of
// its score delta.
type ListType string

const (
	// ListBlock entries carry a heavy positive penalty and typically force review.
	ListBlock ListType = "blocklist"

	// ListWatch entries carry a moderate positive penalty.
	ListWatch ListType = "watchlist"

	// ListAllow entries reduce the score; the aggregate floors at zero.
	ListAllow ListType = "allowlist"
)

// ParseListType validates a stored list type at the core boundary.
func ParseListType(s string) (ListType, error) {
	switch ListType(s) {
	case ListBlock, ListWatch, ListAllow:
		return ListType(s), nil
	}
	return "", fmt.Errorf("unknown list type %q", s)
}

// Default score deltas by list type, used when an entry carries none.
const (
	BlocklistDelta = 75
	WatchlistDelta = 25
	AllowlistDelta = -30
)

// DefaultDelta returns the type-specific score adjustment.
func (t ListType) DefaultDelta() int {
	switch t {
	case ListBlock:
		return BlocklistDelta
	case ListWatch:
		return WatchlistDelta
	case ListAllow:
		return AllowlistDelta
	}
	return 0
}

// WatchField names the transaction attribute an entry matches against.
type WatchField string

const (
	WatchSender             WatchField = "sender_id"
	WatchReceiver           WatchField = "receiver_id"
	WatchSourceCountry      WatchField = "source_country"
	WatchDestinationCountry WatchField = "destination_country"
)

// ParseWatchField validates a stored field name at the core boundary.
func ParseWatchField(s string) (WatchField, error) {
	switch WatchField(s) {
	case WatchSender, WatchReceiver, WatchSourceCountry, WatchDestinationCountry:
		return WatchField(s), nil
	}
	return "", fmt.Errorf("unknown watch field %q", s)
}

// WatchlistEntry matches one transaction field against a literal value.
// Entries may expire; expired entries are skipped during matching.
type WatchlistEntry struct {
	ID     string     `json:"id"`
	Field  WatchField `json:"field"`
	Value  string     `json:"value"`
	Reason string     `json:"reason,omitempty"`

	// ScoreDelta overrides the list's default adjustment when non-zero.
	ScoreDelta int `json:"scoreDelta,omitempty"`

	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Position  int        `json:"position"`
}

// Expired reports whether the entry has lapsed at the given instant.
func (e *WatchlistEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// Delta returns the entry's effective score adjustment for its list type.
func (e *WatchlistEntry) Delta(t ListType) int {
	if e.ScoreDelta != 0 {
		return e.ScoreDelta
	}
	return t.DefaultDelta()
}

// Watchlist is a named, ordered list of entries of one type.
type Watchlist struct {
	ID       string           `json:"id"`
	TenantID string           `json:"tenantId"`
	Name     string           `json:"name"`
	Type     ListType         `json:"type"`
	Enabled  bool             `json:"enabled"`
	Entries  []WatchlistEntry `json:"entries"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Validate enforces list shape at the core boundary.
func (w *Watchlist) Validate() error {
	if w.ID == "" || w.Name == "" {
		return fmt.Errorf("watchlist: id and name are required")
	}
	if _, err := ParseListType(string(w.Type)); err != nil {
		return fmt.Errorf("watchlist %s: %w", w.ID, err)
	}
	for i, e := range w.Entries {
		if e.Value == "" {
			return fmt.Errorf("watchlist %s: entry %d requires a value", w.ID, i)
		}
		if _, err := ParseWatchField(string(e.Field)); err != nil {
			return fmt.Errorf("watchlist %s: entry %d: %w", w.ID, i, err)
		}
	}
	return nil
}
