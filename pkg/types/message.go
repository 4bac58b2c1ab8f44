package types

// AdMessage is the payload carried on the validation queue. It holds only the
// ad id; the database stays the source of truth for ad content.
type AdMessage struct {
	AdID string `json:"ad_id"`
}
