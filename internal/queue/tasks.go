package queue

import "time"

const TypeMediaPurge = "media:purge"

// MediaPurgePayload asks the worker to delete a session's audio files that
// were written no later than ProducedAt. Newer files belong to a later
// conversion and are kept for that conversion's own purge.
type MediaPurgePayload struct {
	SessionID  string    `json:"session_id"`
	ProducedAt time.Time `json:"produced_at"`
}
