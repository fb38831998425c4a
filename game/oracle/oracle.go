// Package oracle adapts external reasoning providers to the decisions the
// simulation needs. Every operation returns a usable value: provider
// failures, timeouts, malformed replies and the stub provider all resolve to
// a deterministic fallback.
package oracle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kasuganosora/fracturesim/config"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Result carries an operation's value and which branch produced it.
// Err is set only when a provider was tried and failed.
type Result[T any] struct {
	Value    T
	Fallback bool
	Provider string
	Err      error
}

// errStub marks a call routed to the stub provider.
var errStub = errors.New("stub provider")

type Oracle struct {
	providers       map[string]Provider
	defaultProvider string
	limiter         *rate.Limiter
	timeout         time.Duration
	maxTokens       int
	logger          *zap.Logger
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithProvider registers or replaces a provider under name.
func WithProvider(name string, p Provider) Option {
	return func(o *Oracle) { o.providers[name] = p }
}

// WithDefault sets the provider used when a call names none.
func WithDefault(name string) Option {
	return func(o *Oracle) { o.defaultProvider = name }
}

// New builds an Oracle from config. Providers whose API key is missing are
// not registered; calls naming them fall back.
func New(cfg config.OracleConfig, logger *zap.Logger, opts ...Option) *Oracle {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	o := &Oracle{
		providers:       map[string]Provider{},
		defaultProvider: cfg.DefaultProvider,
		limiter:         rate.NewLimiter(limit, burst),
		timeout:         cfg.Timeout,
		maxTokens:       cfg.MaxTokens,
		logger:          logger,
	}

	if cfg.OpenAIAPIKey != "" {
		if p, err := newOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Timeout); err == nil {
			o.providers[ProviderGPT4o] = p
		} else {
			logger.Warn("oracle: gpt-4o disabled", zap.Error(err))
		}
		if p, err := newOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.GPT5Model, cfg.Timeout); err == nil {
			o.providers[ProviderGPT5] = p
		} else {
			logger.Warn("oracle: gpt-5 disabled", zap.Error(err))
		}
	}
	if cfg.AnthropicAPIKey != "" {
		if p, err := newAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel); err == nil {
			o.providers[ProviderClaude] = p
		} else {
			logger.Warn("oracle: claude disabled", zap.Error(err))
		}
	}

	for _, opt := range opts {
		opt(o)
	}
	if o.defaultProvider == "" {
		o.defaultProvider = ProviderStub
	}
	if _, ok := o.providers[o.defaultProvider]; !ok && o.defaultProvider != ProviderStub {
		logger.Warn("oracle: default provider not configured, using stub", zap.String("provider", o.defaultProvider))
		o.defaultProvider = ProviderStub
	}
	return o
}

// Providers lists the registered provider names.
func (o *Oracle) Providers() []string {
	out := make([]string, 0, len(o.providers)+1)
	for name := range o.providers {
		out = append(out, name)
	}
	return append(out, ProviderStub)
}

// Resolve maps an empty provider name to the default.
func (o *Oracle) Resolve(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return o.defaultProvider
	}
	return name
}

// call runs one bounded, rate-limited completion. It never holds a database
// transaction.
func (o *Oracle) call(ctx context.Context, name string, req Request) (string, string, error) {
	name = o.Resolve(name)
	if name == ProviderStub {
		return "", name, errStub
	}
	p, ok := o.providers[name]
	if !ok {
		return "", name, gameerr.ErrProvider.Withf("provider %q is not configured", name)
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = o.maxTokens
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return "", name, gameerr.ErrProvider.Withf("rate limited: %v", err)
	}
	raw, err := p.Complete(ctx, req)
	if err != nil {
		return "", name, gameerr.ErrProvider.Withf("%v", err)
	}
	return raw, name, nil
}

// text runs a free-text operation.
func (o *Oracle) text(ctx context.Context, op, name string, req Request, fallback string) Result[string] {
	raw, used, err := o.call(ctx, name, req)
	reply := strings.TrimSpace(raw)
	if err == nil && reply == "" {
		err = gameerr.ErrProvider.Withf("empty reply")
	}
	if err != nil {
		return fallbackResult(o, op, used, err, func() string { return fallback })
	}
	return Result[string]{Value: reply, Provider: used}
}

// structured runs an operation whose reply must satisfy schema. accept may
// reject or normalize a schema-valid reply.
func structured[T any](ctx context.Context, o *Oracle, op, name string, req Request, schema *jsonschema.Schema, fallback func() T, accept func(*T) error) Result[T] {
	raw, used, err := o.call(ctx, name, req)
	if err != nil {
		return fallbackResult(o, op, used, err, fallback)
	}
	v, err := decode[T](raw, schema)
	if err == nil && accept != nil {
		err = accept(&v)
	}
	if err != nil {
		return fallbackResult(o, op, used, gameerr.ErrProvider.Withf("%s: %v", op, err), fallback)
	}
	return Result[T]{Value: v, Provider: used}
}

func fallbackResult[T any](o *Oracle, op, used string, err error, fallback func() T) Result[T] {
	res := Result[T]{Value: fallback(), Fallback: true, Provider: used}
	if errors.Is(err, errStub) {
		return res
	}
	res.Err = err
	o.logger.Warn("oracle fallback", zap.String("op", op), zap.String("provider", used), zap.Error(err))
	return res
}
