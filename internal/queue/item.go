package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostPayload is the normalized record a scraper produces for one
// submission. Media URLs pointing at local files are cache paths
// produced by the media processor; the original* fields retain the
// upstream URLs for attribution.
type PostPayload struct {
	Title             string   `json:"title,omitempty"`
	SiteName          string   `json:"siteName,omitempty"`
	SourceURL         string   `json:"sourceUrl,omitempty"`
	IsVideo           bool     `json:"isVideo"`
	ImageURL          string   `json:"imageUrl,omitempty"`
	VideoURL          string   `json:"videoUrl,omitempty"`
	ImageURLs         []string `json:"imageUrls,omitempty"`
	OriginalImageURL  string   `json:"originalImageUrl,omitempty"`
	OriginalImageURLs []string `json:"originalImageUrls,omitempty"`
	OriginalVideoURL  string   `json:"originalVideoUrl,omitempty"`
	Name              string   `json:"name,omitempty"`
}

// MediaPath returns the local cache path of the item's primary asset.
func (p *PostPayload) MediaPath() string {
	if p.IsVideo {
		return p.VideoURL
	}

	return p.ImageURL
}

// Item is one pending post. Delivered tracks per-destination success
// independently; the item leaves the queue only once every configured
// destination has confirmed delivery.
type Item struct {
	PostPayload

	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Delivered map[string]bool `json:"deliveryStatus"`
}

// DeliveredToAll reports whether every named destination has confirmed
// delivery of this item.
func (item *Item) DeliveredToAll(destinations []string) bool {
	for _, dest := range destinations {
		if !item.Delivered[dest] {
			return false
		}
	}

	return true
}

// clone returns a deep copy so callers never hold references into the
// store's backing list.
func (item *Item) clone() *Item {
	copied := *item

	copied.Delivered = make(map[string]bool, len(item.Delivered))
	for dest, done := range item.Delivered {
		copied.Delivered[dest] = done
	}

	if item.ImageURLs != nil {
		copied.ImageURLs = append([]string(nil), item.ImageURLs...)
	}
	if item.OriginalImageURLs != nil {
		copied.OriginalImageURLs = append([]string(nil), item.OriginalImageURLs...)
	}

	return &copied
}

// newItemID generates the best-effort-unique id for a new item: the
// creation timestamp plus a random suffix. Uniqueness is adequate for
// this workload's scale, not cryptographically guaranteed.
func newItemID(createdAt time.Time) string {
	return fmt.Sprintf("%d-%s", createdAt.UnixMilli(), uuid.NewString()[:8])
}
