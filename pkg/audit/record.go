// Package audit builds and persists audit records for operations that
// declare an audit directive.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Record is one audit log entry
type Record struct {
	ID           uuid.UUID `json:"id"`
	Op           string    `json:"op"`
	ResourceType string    `json:"resourceType"`
	ResourceID   *string   `json:"resourceId,omitempty"`
	After        any       `json:"after,omitempty"`
	ActorID      string    `json:"actorId,omitempty"`
	TenantID     string    `json:"tenantId,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Input is the request data audit expressions can see. Input is the body
// after validation with defaults applied.
type Input struct {
	Params map[string]any
	Body   any
	Input  any
	Result any
	Ctx    map[string]any
}

// Context keys read from Input.Ctx to fill record metadata
const (
	CtxUserID    = "userId"
	CtxTenantID  = "tenantId"
	CtxRequestID = "requestId"
)
