package diagnostic

import (
	"github.com/bgdnvk/shopfloor/internal/expectation"
)

// Error codes carried in Metadata.ErrorCode.
const (
	CodeSnapshotUnavailable = "SNAPSHOT_UNAVAILABLE"
	CodeEquipmentNotFound   = "EQUIPMENT_NOT_FOUND"
	CodeModelUnavailable    = "MODEL_UNAVAILABLE"
	CodeUnknownProfile      = "CONFIG_ERROR"
	CodeCancelled           = "REQUEST_CANCELLED"
)

// Sections holds the four named parts of every explanation.
type Sections struct {
	WhatIsHappening    string `json:"what_is_happening" yaml:"what_is_happening"`
	WhyThisIsHappening string `json:"why_this_is_happening" yaml:"why_this_is_happening"`
	WhatToDoNow        string `json:"what_to_do_now" yaml:"what_to_do_now"`
	WhatToCheckNext    string `json:"what_to_check_next" yaml:"what_to_check_next"`
}

// RAGDocument summarises a knowledge hit that was shown to the model.
type RAGDocument struct {
	ID            string  `json:"id" yaml:"id"`
	DocType       string  `json:"doc_type" yaml:"doc_type"`
	Source        string  `json:"source,omitempty" yaml:"source,omitempty"`
	WeightedScore float64 `json:"weighted_score" yaml:"weighted_score"`
}

// Metadata is the provenance record attached to every response.
type Metadata struct {
	RequestID             string               `json:"request_id" yaml:"request_id"`
	Scope                 string               `json:"scope" yaml:"scope"`
	EquipmentID           string               `json:"equipment_id" yaml:"equipment_id"`
	Timestamp             string               `json:"timestamp" yaml:"timestamp"`
	Plant                 string               `json:"plant" yaml:"plant"`
	Model                 string               `json:"model" yaml:"model"`
	LossCategories        []string             `json:"loss_categories" yaml:"loss_categories"`
	RAGDocuments          []RAGDocument        `json:"rag_documents" yaml:"rag_documents"`
	DomainProfile         string               `json:"domain_profile" yaml:"domain_profile"`
	ReasoningPriority     []string             `json:"reasoning_priority" yaml:"reasoning_priority"`
	ExpectationViolations []string             `json:"expectation_violations" yaml:"expectation_violations"`
	ExpectationWarnings   []string             `json:"expectation_warnings" yaml:"expectation_warnings"`
	BlockingConditions    []string             `json:"blocking_conditions" yaml:"blocking_conditions"`
	RequiresConfirmation  bool                 `json:"requires_confirmation" yaml:"requires_confirmation"`
	Severity              expectation.Severity `json:"severity" yaml:"severity"`
	RawResponse           string               `json:"raw_response" yaml:"raw_response"`
	KnowledgeDegraded     bool                 `json:"knowledge_degraded,omitempty" yaml:"knowledge_degraded,omitempty"`
	MalformedResponse     bool                 `json:"malformed_response,omitempty" yaml:"malformed_response,omitempty"`
	Error                 bool                 `json:"error" yaml:"error"`
	ErrorCode             string               `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	ErrorMessage          string               `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// Response is the only thing Explain returns. Failures are encoded in
// Metadata.Error rather than as Go errors.
type Response struct {
	Sections `yaml:",inline"`
	Metadata Metadata `json:"metadata" yaml:"metadata"`
}

// Request names what to explain. Profile selects a profile by name for this
// request only; empty means the active profile.
type Request struct {
	Scope       string
	EquipmentID string
	Profile     string
}
