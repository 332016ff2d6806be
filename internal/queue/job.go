package queue

// RenditionJob is what we push to Redis Streams. No bytes here — workers
// fetch the original by ObjectKey.
type RenditionJob struct {
	RecordID    int64  `json:"record_id"`
	ObjectKey   string `json:"object_key"`
	ContentType string `json:"content_type"`
	Ext         string `json:"ext"` // ".jpg" | ".jpeg" | ".png" | ".webp" | ".gif"
}
