package sqlstore

import (
	"time"

	"github.com/goliatone/go-gateway/core"
)

func newConnectionRecord(in core.CreateConnectionInput, now time.Time) *connectionRecord {
	return &connectionRecord{
		PluginID:     in.PluginID,
		Scope:        string(in.Scope),
		CompanyID:    in.CompanyID,
		UserID:       in.UserID,
		ExternalID:   in.ExternalID,
		ExternalName: in.ExternalName,
		Status:       string(core.ConnectionStatusActive),
		Metadata:     RedactMetadata(in.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *connectionRecord) toDomain() core.Connection {
	if r == nil {
		return core.Connection{}
	}
	return core.Connection{
		ID:           r.ID,
		PluginID:     r.PluginID,
		Scope:        core.ConnectionScope(r.Scope),
		CompanyID:    r.CompanyID,
		UserID:       r.UserID,
		ExternalID:   r.ExternalID,
		ExternalName: r.ExternalName,
		Status:       core.ConnectionStatus(r.Status),
		Metadata:     copyAnyMap(r.Metadata),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func newCredentialRecord(in core.SaveCredentialInput, now time.Time) *credentialRecord {
	return &credentialRecord{
		ConnectionID: in.ConnectionID,
		Kind:         string(in.Kind),
		Payload:      in.Payload,
		ExpiresAt:    cloneTimePointer(in.ExpiresAt),
		Refreshable:  in.Refreshable,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *credentialRecord) toDomain() core.StoredCredential {
	if r == nil {
		return core.StoredCredential{}
	}
	return core.StoredCredential{
		ConnectionID: r.ConnectionID,
		Kind:         core.CredentialKind(r.Kind),
		Payload:      r.Payload,
		ExpiresAt:    cloneTimePointer(r.ExpiresAt),
		Refreshable:  r.Refreshable,
		UpdatedAt:    r.UpdatedAt,
	}
}

func newEventLogRecord(in core.EventLog, now time.Time) *eventLogRecord {
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &eventLogRecord{
		ID:           in.ID,
		PluginID:     in.PluginID,
		ConnectionID: in.ConnectionID,
		EventType:    in.EventType,
		ExternalID:   in.ExternalID,
		Payload:      append([]byte(nil), in.Payload...),
		Status:       string(in.Status),
		ErrorMessage: in.ErrorMessage,
		ProcessedAt:  cloneTimePointer(in.ProcessedAt),
		CreatedAt:    createdAt,
	}
}

func (r *eventLogRecord) toDomain() core.EventLog {
	if r == nil {
		return core.EventLog{}
	}
	return core.EventLog{
		ID:           r.ID,
		PluginID:     r.PluginID,
		ConnectionID: r.ConnectionID,
		EventType:    r.EventType,
		ExternalID:   r.ExternalID,
		Payload:      append([]byte(nil), r.Payload...),
		Status:       core.EventLogStatus(r.Status),
		ErrorMessage: r.ErrorMessage,
		ProcessedAt:  cloneTimePointer(r.ProcessedAt),
		CreatedAt:    r.CreatedAt,
	}
}

func newSubscriptionRecord(in core.Subscription, now time.Time) *subscriptionRecord {
	return &subscriptionRecord{
		ID:           in.ID,
		PluginID:     in.PluginID,
		EventType:    in.EventType,
		ConnectionID: in.ConnectionID,
		TargetType:   string(in.TargetType),
		TargetURL:    in.TargetURL,
		TargetMethod: in.TargetMethod,
		HandlerName:  in.HandlerName,
		FilterExpr:   in.FilterExpr,
		RetryPolicy:  in.RetryPolicy,
		Enabled:      in.Enabled,
		Metadata:     copyAnyMap(in.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *subscriptionRecord) toDomain() core.Subscription {
	if r == nil {
		return core.Subscription{}
	}
	return core.Subscription{
		ID:           r.ID,
		PluginID:     r.PluginID,
		EventType:    r.EventType,
		ConnectionID: r.ConnectionID,
		TargetType:   core.TargetType(r.TargetType),
		TargetURL:    r.TargetURL,
		TargetMethod: r.TargetMethod,
		HandlerName:  r.HandlerName,
		FilterExpr:   r.FilterExpr,
		RetryPolicy:  r.RetryPolicy,
		Enabled:      r.Enabled,
		Metadata:     copyAnyMap(r.Metadata),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func copyAnyMap(source map[string]any) map[string]any {
	if len(source) == 0 {
		return map[string]any{}
	}
	target := make(map[string]any, len(source))
	for key, value := range source {
		target[key] = value
	}
	return target
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
