package domain

import "time"

// HistoryEntry is a read-only snapshot of one past transaction, in the wire
// shape the transaction-history service uses.
type HistoryEntry struct {
	ID       string  `json:"id"`
	Currency string  `json:"currency"`
	Date     string  `json:"date"` // RFC 3339
	Quantity float64 `json:"quantity"`
	Sender   string  `json:"sender"`
	Receiver string  `json:"receiver"`
	Status   string  `json:"status"`
}

// Time parses the entry date. A zero time is returned for unparseable dates
// so malformed entries never count toward a pattern window.
func (e HistoryEntry) Time() time.Time {
	t, err := time.Parse(time.RFC3339, e.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// HistoryBackup is the durable fallback copy of an account's history, used
// when the upstream transaction-history service is down.
type HistoryBackup struct {
	IBAN      string         `json:"iban"`
	Entries   []HistoryEntry `json:"entries"`
	FetchedAt time.Time      `json:"fetchedAt"`
}
