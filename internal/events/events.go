package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/ad-product-extractor/internal/database"
	"github.com/maltedev/ad-product-extractor/internal/models"
)

type EventType string

const (
	EventTypeExtractionCompleted EventType = "EXTRACTION_COMPLETED"
	EventTypeExtractionFailed    EventType = "EXTRACTION_FAILED"

	AggregateTypeExtractionJob = "extraction_job"
	DefaultSource              = "extractor"
)

// Failure reasons carried by EXTRACTION_FAILED.
const (
	ReasonInvalidURL  = "invalid_url"
	ReasonFetchFailed = "fetch_failed"
	ReasonValidation  = "validation_failed"
	ReasonInternal    = "internal"
)

type ExtractionCompletedPayload struct {
	EventID    string                `json:"event_id"`
	EventType  string                `json:"event_type"`
	Timestamp  time.Time             `json:"timestamp"`
	JobID      string                `json:"job_id"`
	ProductURL string                `json:"product_url"`
	Record     *models.ProductRecord `json:"record"`
	Source     string                `json:"source"`
}

type ExtractionFailedPayload struct {
	EventID    string                `json:"event_id"`
	EventType  string                `json:"event_type"`
	Timestamp  time.Time             `json:"timestamp"`
	JobID      string                `json:"job_id"`
	ProductURL string                `json:"product_url"`
	Reason     string                `json:"reason"`
	Error      string                `json:"error"`
	Record     *models.ProductRecord `json:"record,omitempty"`
	Source     string                `json:"source"`
}

// Builder turns job outcomes into outbox rows bound for one stream.
type Builder struct {
	Stream string
	Source string
	now    func() time.Time
}

func NewBuilder(stream string) *Builder {
	if stream == "" {
		stream = database.DefaultTargetStream
	}
	return &Builder{Stream: stream, Source: DefaultSource, now: time.Now}
}

func (b *Builder) Completed(jobID string, rec *models.ProductRecord) (*database.OutboxEvent, error) {
	payload := &ExtractionCompletedPayload{
		EventID:    uuid.NewString(),
		EventType:  string(EventTypeExtractionCompleted),
		Timestamp:  b.now(),
		JobID:      jobID,
		ProductURL: rec.ProductURL,
		Record:     rec,
		Source:     b.Source,
	}
	return b.outboxEvent(jobID, EventTypeExtractionCompleted, payload)
}

// Failed builds the failure event. rec may be nil when the page never loaded.
func (b *Builder) Failed(jobID, productURL, reason string, cause error, rec *models.ProductRecord) (*database.OutboxEvent, error) {
	payload := &ExtractionFailedPayload{
		EventID:    uuid.NewString(),
		EventType:  string(EventTypeExtractionFailed),
		Timestamp:  b.now(),
		JobID:      jobID,
		ProductURL: productURL,
		Reason:     reason,
		Record:     rec,
		Source:     b.Source,
	}
	if cause != nil {
		payload.Error = cause.Error()
	}
	return b.outboxEvent(jobID, EventTypeExtractionFailed, payload)
}

func (b *Builder) outboxEvent(jobID string, eventType EventType, payload any) (*database.OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	return &database.OutboxEvent{
		AggregateType: AggregateTypeExtractionJob,
		AggregateID:   jobID,
		EventType:     string(eventType),
		Payload:       data,
		TargetStream:  b.Stream,
	}, nil
}
