package model

import "time"

// News sentiment labels.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// NewsItem is a market news entry shown alongside the stock list.
type NewsItem struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	Sentiment      string    `json:"sentiment"`
	Source         string    `json:"source"`
	PublishedAt    time.Time `json:"published_date"`
	RelatedSymbols []string  `json:"related_symbols"`
}
