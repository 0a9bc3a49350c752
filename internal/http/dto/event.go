package dto

type PublishEventRequest struct {
	EventType      string         `json:"event_type" binding:"required"`
	Data           map[string]any `json:"data" binding:"required"`
	TargetServices []string       `json:"target_services,omitempty"`
	SourceService  string         `json:"source_service,omitempty"`
	GroupID        string         `json:"group_id,omitempty"`
}

type PublishEventResponse struct {
	MessageID string `json:"message_id"`
	Topic     string `json:"topic"`
}

type SubscribeRequest struct {
	Topic        string              `json:"topic,omitempty"`
	Queue        string              `json:"queue" binding:"required"`
	FilterPolicy map[string][]string `json:"filter_policy,omitempty"`
	RawDelivery  bool                `json:"raw_delivery,omitempty"`
}

type DeadLetterResponse struct {
	ID           string            `json:"id"`
	SourceQueue  string            `json:"source_queue"`
	SourceID     string            `json:"source_id"`
	Body         string            `json:"body"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	ReceiveCount int               `json:"receive_count"`
	DeadAt       string            `json:"dead_at"`
}

type RedriveResponse struct {
	Redriven int `json:"redriven"`
}
