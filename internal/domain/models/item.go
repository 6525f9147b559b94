package models

import "time"

// Source enumerates the kind of text feed an Item was harvested from.
type Source string

const (
	SourceNews     Source = "news"
	SourceTwitter  Source = "twitter-like"
	SourceChatA    Source = "chat-a"
	SourceChatB    Source = "chat-b"
	SourceUnknown  Source = "unknown"
)

// Item is one social/news post pulled by a Collector.
type Item struct {
	ID           string
	Source       Source
	Text         string
	AuthorID     string
	AuthorWeight float64 // in [0,1], default 0.5
	CreatedAt    time.Time
	AssetTags    []string
	Metadata     map[string]string
}

// DefaultAuthorWeight is used when a source cannot derive a quality signal.
const DefaultAuthorWeight = 0.5

// MaxTextBytes caps Item.Text length; collectors truncate to this cap.
const MaxTextBytes = 4096

// ScoredItem is an Item plus a Scorer's polarity/confidence verdict.
type ScoredItem struct {
	Item
	Polarity   float64 // in [-1, 1]
	Confidence float64 // in [0, 1]
}
