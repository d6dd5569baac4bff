package domain

import "time"

// GeneratedName is one accepted or fallback name produced for a culture.
type GeneratedName struct {
	Name          string   `json:"name"`
	Syllables     []string `json:"syllables"`
	Score         float64  `json:"score"`
	Culture       string   `json:"culture"`
	Gender        Gender   `json:"gender,omitempty"`
	Pronunciation string   `json:"pronunciation,omitempty"`
	Fallback      bool     `json:"fallback,omitempty"`
}

// GenerationParameters captures the request inputs that shape generated output.
type GenerationParameters struct {
	Culture              string
	Gender               Gender
	Count                int
	Length               LengthClass
	MinScore             float64
	IncludePronunciation bool
}

// NameRecord is the payload handed to persistence sinks for each new name.
type NameRecord struct {
	Name       string
	Culture    string
	Gender     Gender
	Syllables  []string
	Score      float64
	Parameters GenerationParameters
	CreatedAt  time.Time
}

// StoredName is the persisted view of a generated name.
type StoredName struct {
	ID         string
	Name       string
	Culture    string
	Gender     Gender
	Syllables  []string
	Score      float64
	UsageCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RequestLog summarises one generation request for later analysis.
type RequestLog struct {
	RequestID      string
	Culture        string
	Gender         Gender
	Count          int
	Returned       int
	MinScore       float64
	ResponseTimeMs float64
	CacheHit       bool
	Success        bool
	CreatedAt      time.Time
}

// NameEventGenerated is the event type announced when a generated name is recorded.
const NameEventGenerated = "name.generated"

// NameEvent is the message published to downstream consumers for each recorded name.
type NameEvent struct {
	EventID    string    `json:"eventId"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	Culture    string    `json:"culture"`
	Gender     Gender    `json:"gender,omitempty"`
	Syllables  []string  `json:"syllables"`
	Score      float64   `json:"score"`
	UsageCount int64     `json:"usageCount"`
	OccurredAt time.Time `json:"occurredAt"`
}
