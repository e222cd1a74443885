package sqlstore

import "github.com/goliatone/go-gateway/core"

var (
	_ core.ConnectionStore    = (*ConnectionStore)(nil)
	_ core.CredentialStore    = (*CredentialStore)(nil)
	_ core.EventLogStore      = (*EventLogStore)(nil)
	_ core.SubscriptionSource = (*SubscriptionStore)(nil)
	_ SubscriptionBackend     = (*SubscriptionStore)(nil)
	_ core.SubscriptionSource = (*CachedSubscriptionStore)(nil)
	_ core.StateStore         = (*SQLStateStore)(nil)
	_ core.PKCEStore          = (*SQLPKCEStore)(nil)
)
