package domain

import (
	"fmt"
	"time"
)

// Record is one raw message fetched from the stream. It is immutable once
// read; the pipeline owns it until a terminal outcome is reported.
type Record struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Coordinate identifies a record's position on the stream.
type Coordinate struct {
	Topic     string
	Partition int32
	Offset    int64
}

func (r Record) Coordinate() Coordinate {
	return Coordinate{Topic: r.Topic, Partition: r.Partition, Offset: r.Offset}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s/%d/%d", c.Topic, c.Partition, c.Offset)
}

// Message is the decoded payload of a Record.
type Message struct {
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"message"`
}

// Translation is the output of the translation stage.
type Translation struct {
	Text           string
	SourceLanguage string
	// Translated is false when the text was already in the target language
	// and the call was skipped.
	Translated bool
}

// Prediction is the sentiment score map returned by the prediction endpoint.
type Prediction struct {
	Scores map[string]float64
}

// Label returns the highest-scoring sentiment label.
func (p Prediction) Label() (string, float64) {
	var best string
	var bestScore float64
	first := true
	for label, score := range p.Scores {
		if first || score > bestScore || (score == bestScore && label < best) {
			best, bestScore = label, score
			first = false
		}
	}
	return best, bestScore
}

// Enrichment is the downstream result published for a successfully
// processed record.
type Enrichment struct {
	ChannelID      string             `json:"channel_id"`
	UserID         string             `json:"user_id"`
	Text           string             `json:"text"`
	TranslatedText string             `json:"translated_text"`
	SourceLanguage string             `json:"source_language"`
	Scores         map[string]float64 `json:"scores"`
	Topic          string             `json:"topic"`
	Partition      int32              `json:"partition"`
	Offset         int64              `json:"offset"`
	IngestedAt     time.Time          `json:"ingested_at"`
}
