// Package gateway wires plugin capability registration, the OAuth install
// lifecycle, encrypted credential storage, and the inbound webhook pipeline
// into one composable unit.
package gateway

import (
	"context"
	"fmt"

	"github.com/goliatone/go-gateway/adapters/gologger"
	"github.com/goliatone/go-gateway/core"
	"github.com/goliatone/go-gateway/httpapi"
	sqlstore "github.com/goliatone/go-gateway/store/sql"
	"github.com/goliatone/go-gateway/webhooks"
	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/julienschmidt/httprouter"
)

type Config = core.Config

type PluginConfig = core.PluginConfig

type Capabilities = core.Capabilities

func DefaultConfig() Config {
	return core.DefaultConfig()
}

type settings struct {
	logger          glog.Logger
	loggerProvider  glog.LoggerProvider
	metrics         core.MetricsRecorder
	secrets         core.SecretProvider
	registry        core.Registry
	configSource    core.ConfigSource
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver

	persistenceClient any
	subscriptionCache repositorycache.CacheService

	connections   core.ConnectionStore
	credentials   core.CredentialStore
	eventLogs     core.EventLogStore
	subscriptions core.SubscriptionSource
	states        core.StateStore
	pkce          core.PKCEStore

	handlers   *webhooks.HandlerRegistry
	httpClient webhooks.HTTPDoer
	filter     webhooks.FilterEvaluator
}

type Option func(*settings)

func WithLogger(logger glog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(s *settings) {
		s.loggerProvider = provider
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(s *settings) {
		s.metrics = metrics
	}
}

func WithSecretProvider(secrets core.SecretProvider) Option {
	return func(s *settings) {
		s.secrets = secrets
	}
}

// WithRegistry replaces the built-in capability registry. RegisterPlugin is
// unavailable on a custom registry.
func WithRegistry(registry core.Registry) Option {
	return func(s *settings) {
		s.registry = registry
	}
}

func WithConfigSource(source core.ConfigSource) Option {
	return func(s *settings) {
		s.configSource = source
	}
}

// WithPluginConfigs seeds a static config source from the given plugin
// configurations.
func WithPluginConfigs(configs ...core.PluginConfig) Option {
	return func(s *settings) {
		s.configSource = core.NewStaticConfigSource(configs...)
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(s *settings) {
		s.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(s *settings) {
		s.optionsResolver = resolver
	}
}

// WithPersistenceClient builds the SQL stores from a go-persistence-bun
// client or a *bun.DB. Explicit store options take precedence over the
// factory-built ones.
func WithPersistenceClient(client any) Option {
	return func(s *settings) {
		s.persistenceClient = client
	}
}

// WithSubscriptionCache fronts the SQL subscription store with a per-plugin
// read cache. Only effective together with WithPersistenceClient.
func WithSubscriptionCache(cache repositorycache.CacheService) Option {
	return func(s *settings) {
		s.subscriptionCache = cache
	}
}

func WithConnectionStore(store core.ConnectionStore) Option {
	return func(s *settings) {
		s.connections = store
	}
}

func WithCredentialStore(store core.CredentialStore) Option {
	return func(s *settings) {
		s.credentials = store
	}
}

func WithEventLogStore(store core.EventLogStore) Option {
	return func(s *settings) {
		s.eventLogs = store
	}
}

func WithSubscriptionSource(source core.SubscriptionSource) Option {
	return func(s *settings) {
		s.subscriptions = source
	}
}

func WithStateStore(store core.StateStore) Option {
	return func(s *settings) {
		s.states = store
	}
}

func WithPKCEStore(store core.PKCEStore) Option {
	return func(s *settings) {
		s.pkce = store
	}
}

func WithHandlerRegistry(handlers *webhooks.HandlerRegistry) Option {
	return func(s *settings) {
		s.handlers = handlers
	}
}

func WithWebhookHTTPClient(client webhooks.HTTPDoer) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

func WithFilterEvaluator(filter webhooks.FilterEvaluator) Option {
	return func(s *settings) {
		s.filter = filter
	}
}

// Gateway is the assembled integration gateway.
type Gateway struct {
	config       core.Config
	obs          core.Observer
	registry     core.Registry
	capabilities *core.CapabilityRegistry
	configs      core.ConfigSource

	vault        *core.CredentialVault
	orchestrator *core.InstallOrchestrator
	resolver     *core.CredentialResolver
	handlers     *webhooks.HandlerRegistry
	dispatcher   *webhooks.Dispatcher
	pipeline     *webhooks.Pipeline
	httpHandler  *httpapi.Handler
}

// Setup resolves configuration and assembles the gateway. The runtime config
// is layered over provider-loaded values and compiled-in defaults.
func Setup(ctx context.Context, runtime Config, options ...Option) (*Gateway, error) {
	s := settings{}
	for _, opt := range options {
		if opt != nil {
			opt(&s)
		}
	}

	defaults := core.DefaultConfig()
	loaded := defaults
	if s.configProvider != nil {
		var err error
		loaded, err = s.configProvider.Load(ctx, defaults)
		if err != nil {
			return nil, fmt.Errorf("gateway: load config: %w", err)
		}
	}
	optionsResolver := s.optionsResolver
	if optionsResolver == nil {
		optionsResolver = core.GoOptionsResolver{}
	}
	cfg, err := optionsResolver.Resolve(defaults, loaded, runtime)
	if err != nil {
		return nil, fmt.Errorf("gateway: resolve config: %w", err)
	}

	obs := gologger.NewObserver(cfg.ServiceName, s.loggerProvider, s.logger, s.metrics)

	if s.secrets == nil {
		return nil, fmt.Errorf("gateway: secret provider is required")
	}

	registry := s.registry
	var capabilities *core.CapabilityRegistry
	if registry == nil {
		capabilities = core.NewCapabilityRegistry()
		registry = capabilities
	}

	configs := s.configSource
	if configs == nil {
		configs = core.NewStaticConfigSource()
	}

	if err := s.buildStores(cfg); err != nil {
		return nil, err
	}

	vault, err := core.NewCredentialVault(
		s.connections,
		s.credentials,
		registry,
		configs,
		s.secrets,
		core.WithVaultObserver(obs),
	)
	if err != nil {
		return nil, err
	}

	orchestrator, err := core.NewInstallOrchestrator(
		registry,
		configs,
		s.states,
		s.pkce,
		vault,
		core.WithStateTTL(cfg.OAuth.StateTTL()),
		core.WithOrchestratorObserver(obs),
	)
	if err != nil {
		return nil, err
	}

	resolver, err := core.NewCredentialResolver(vault, obs)
	if err != nil {
		return nil, err
	}

	handlers := s.handlers
	if handlers == nil {
		handlers = webhooks.NewHandlerRegistry()
	}

	matcher, err := webhooks.NewMatcher(s.subscriptions)
	if err != nil {
		return nil, err
	}

	dispatcherOpts := []webhooks.DispatcherOption{
		webhooks.WithWorkers(cfg.Dispatch.Workers),
		webhooks.WithDispatchTimeout(cfg.Dispatch.Timeout()),
		webhooks.WithDispatcherObserver(obs),
	}
	if s.httpClient != nil {
		dispatcherOpts = append(dispatcherOpts, webhooks.WithHTTPClient(s.httpClient))
	}
	if s.filter != nil {
		dispatcherOpts = append(dispatcherOpts, webhooks.WithFilterEvaluator(s.filter))
	}
	dispatcher, err := webhooks.NewDispatcher(matcher, handlers, dispatcherOpts...)
	if err != nil {
		return nil, err
	}

	pipeline, err := webhooks.NewPipeline(
		registry,
		configs,
		s.connections,
		s.eventLogs,
		dispatcher,
		webhooks.WithPipelineObserver(obs),
	)
	if err != nil {
		return nil, err
	}

	httpHandler, err := httpapi.NewHandler(
		orchestrator,
		pipeline,
		httpapi.WithObserver(obs),
		httpapi.WithBaseURL(cfg.OAuth.RedirectBaseURL),
	)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		config:       cfg,
		obs:          obs,
		registry:     registry,
		capabilities: capabilities,
		configs:      configs,
		vault:        vault,
		orchestrator: orchestrator,
		resolver:     resolver,
		handlers:     handlers,
		dispatcher:   dispatcher,
		pipeline:     pipeline,
		httpHandler:  httpHandler,
	}, nil
}

func (s *settings) buildStores(cfg core.Config) error {
	needsFactory := s.connections == nil || s.credentials == nil ||
		s.eventLogs == nil || s.subscriptions == nil ||
		s.states == nil || s.pkce == nil
	if s.persistenceClient != nil && needsFactory {
		factory := sqlstore.NewRepositoryFactory()
		if err := factory.BuildStores(s.persistenceClient); err != nil {
			return err
		}
		if s.connections == nil {
			s.connections = factory.ConnectionStore()
		}
		if s.credentials == nil {
			s.credentials = factory.CredentialStore()
		}
		if s.eventLogs == nil {
			s.eventLogs = factory.EventLogStore()
		}
		if s.subscriptions == nil {
			if s.subscriptionCache != nil {
				cached, err := sqlstore.NewCachedSubscriptionStore(factory.SubscriptionStore(), s.subscriptionCache)
				if err != nil {
					return err
				}
				s.subscriptions = cached
			} else {
				s.subscriptions = factory.SubscriptionStore()
			}
		}
		if s.states == nil {
			s.states = factory.StateStore()
		}
		if s.pkce == nil {
			s.pkce = factory.PKCEStore()
		}
	}

	if s.states == nil {
		s.states = core.NewMemoryStateStore(cfg.OAuth.StateTTL())
	}
	if s.pkce == nil {
		s.pkce = core.NewMemoryPKCEStore(cfg.OAuth.StateTTL())
	}

	if s.connections == nil {
		return fmt.Errorf("gateway: connection store is required, set WithPersistenceClient or WithConnectionStore")
	}
	if s.credentials == nil {
		return fmt.Errorf("gateway: credential store is required, set WithPersistenceClient or WithCredentialStore")
	}
	if s.eventLogs == nil {
		return fmt.Errorf("gateway: event log store is required, set WithPersistenceClient or WithEventLogStore")
	}
	if s.subscriptions == nil {
		return fmt.Errorf("gateway: subscription source is required, set WithPersistenceClient or WithSubscriptionSource")
	}
	return nil
}

// RegisterPlugin adds a plugin's capabilities to the built-in registry.
func (g *Gateway) RegisterPlugin(pluginID string, caps Capabilities) error {
	if g == nil {
		return fmt.Errorf("gateway: gateway is not configured")
	}
	if g.capabilities == nil {
		return fmt.Errorf("gateway: custom registries manage their own plugins")
	}
	return g.capabilities.Register(pluginID, caps)
}

// RegisterHandler names an internal dispatch target.
func (g *Gateway) RegisterHandler(name string, handler webhooks.HandlerFunc) error {
	if g == nil {
		return fmt.Errorf("gateway: gateway is not configured")
	}
	return g.handlers.Register(name, handler)
}

// Router returns the HTTP surface: install, callback, and webhook routes.
func (g *Gateway) Router() *httprouter.Router {
	if g == nil {
		return nil
	}
	return g.httpHandler.Router()
}

func (g *Gateway) Config() Config {
	if g == nil {
		return Config{}
	}
	return g.config
}

func (g *Gateway) Registry() core.Registry {
	if g == nil {
		return nil
	}
	return g.registry
}

func (g *Gateway) Orchestrator() *core.InstallOrchestrator {
	if g == nil {
		return nil
	}
	return g.orchestrator
}

func (g *Gateway) Vault() *core.CredentialVault {
	if g == nil {
		return nil
	}
	return g.vault
}

func (g *Gateway) Resolver() *core.CredentialResolver {
	if g == nil {
		return nil
	}
	return g.resolver
}

func (g *Gateway) Handlers() *webhooks.HandlerRegistry {
	if g == nil {
		return nil
	}
	return g.handlers
}

func (g *Gateway) Dispatcher() *webhooks.Dispatcher {
	if g == nil {
		return nil
	}
	return g.dispatcher
}

func (g *Gateway) Pipeline() *webhooks.Pipeline {
	if g == nil {
		return nil
	}
	return g.pipeline
}

func (g *Gateway) HTTPHandler() *httpapi.Handler {
	if g == nil {
		return nil
	}
	return g.httpHandler
}
