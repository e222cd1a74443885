package core

var (
	_ StateStore      = (*MemoryStateStore)(nil)
	_ PKCEStore       = (*MemoryPKCEStore)(nil)
	_ Registry        = (*CapabilityRegistry)(nil)
	_ ConfigSource    = (*StaticConfigSource)(nil)
	_ CredentialCodec = JSONCredentialCodec{}
	_ MetricsRecorder = NopMetricsRecorder{}
)
