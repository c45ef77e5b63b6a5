package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// record is the envelope stored under an entry key.
type record struct {
	Value    []byte   `json:"value"`
	Tags     []string `json:"tags,omitempty"`
	ExpireAt int64    `json:"expire_at,omitempty"` // unix milliseconds, 0 = never
}

func encodeRecord(value []byte, tags []string, expireAt time.Time) ([]byte, error) {
	rec := record{Value: value, Tags: tags}
	if !expireAt.IsZero() {
		rec.ExpireAt = expireAt.UnixMilli()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal cache record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*record, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal cache record: %w", err)
	}
	return &rec, nil
}

func (r *record) expireTime() time.Time {
	if r.ExpireAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.ExpireAt)
}

func (r *record) expired(now time.Time) bool {
	return r.ExpireAt != 0 && !now.Before(r.expireTime())
}
