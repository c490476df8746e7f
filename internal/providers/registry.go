package providers

/*
Файл registry.go — фабрика адаптеров по имени провайдера.
Каждый настроенный провайдер получает свой ReliableClient (свой лимитер и предохранитель),
поэтому деградация одного вендора не задевает остальных.
*/

import (
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/compliance-console/internal/domain"
	"github.com/xela07ax/compliance-console/internal/infra"
	"github.com/xela07ax/compliance-console/internal/repository"
	"go.uber.org/zap"
)

const (
	ProviderOnfido          = "onfido"
	ProviderIdenfy          = "idenfy"
	ProviderRefinitiv       = "refinitiv"
	ProviderComplyAdvantage = "complyadvantage"
	ProviderMock            = "mock"
)

type Deps struct {
	Checks  repository.CheckRepository
	Metrics *infra.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

type verificationFactory func(base verificationBase) VerificationProvider
type amlFactory func(base amlBase) AMLProvider

var verificationFactories = map[string]verificationFactory{
	ProviderOnfido: func(b verificationBase) VerificationProvider { return &onfidoProvider{verificationBase: b} },
	ProviderIdenfy: func(b verificationBase) VerificationProvider { return &idenfyProvider{verificationBase: b} },
	// mock говорит на словаре onfido
	ProviderMock: func(b verificationBase) VerificationProvider { return &onfidoProvider{verificationBase: b} },
}

var amlFactories = map[string]amlFactory{
	ProviderRefinitiv:       func(b amlBase) AMLProvider { return &refinitivProvider{amlBase: b} },
	ProviderComplyAdvantage: func(b amlBase) AMLProvider { return &complyAdvantageProvider{amlBase: b} },
	// mock говорит на словаре refinitiv
	ProviderMock: func(b amlBase) AMLProvider { return &refinitivProvider{amlBase: b} },
}

// NewVerificationProvider собирает адаптер поверх переданного транспорта.
func NewVerificationProvider(name string, caller Caller, deps Deps) (VerificationProvider, error) {
	factory, ok := verificationFactories[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown verification provider %q", name)
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return factory(verificationBase{name: strings.ToLower(name), caller: caller, checks: deps.Checks, now: now}), nil
}

func NewAMLProvider(name string, caller Caller) (AMLProvider, error) {
	factory, ok := amlFactories[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown AML provider %q", name)
	}
	return factory(amlBase{name: strings.ToLower(name), caller: caller}), nil
}

// Registry держит адаптеры, собранные из конфигурации.
type Registry struct {
	verification map[string]VerificationProvider
	aml          map[string]AMLProvider
	risk         *RiskScorer
	defaultKYC   string
	defaultAML   string
}

// NewRegistry собирает всех провайдеров, у которых задан base_url, плюс mock.
func NewRegistry(cfg infra.ProvidersConfig, deps Deps) (*Registry, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("providers")

	r := &Registry{
		verification: make(map[string]VerificationProvider),
		aml:          make(map[string]AMLProvider),
		defaultKYC:   strings.ToLower(cfg.DefaultKYC),
		defaultAML:   strings.ToLower(cfg.DefaultAML),
	}

	transport := func(name string, pc infra.ProviderConfig) Caller {
		var next Caller
		if name == ProviderMock {
			next = &MockCaller{}
		} else {
			next = NewHTTPCaller(name, pc)
		}
		return NewReliableClient(name, next, cfg, pc.Timeout, deps.Metrics)
	}

	kyc := map[string]infra.ProviderConfig{ProviderOnfido: cfg.Onfido, ProviderIdenfy: cfg.Idenfy, ProviderMock: {}}
	for name, pc := range kyc {
		if name != ProviderMock && pc.BaseURL == "" {
			continue
		}
		p, err := NewVerificationProvider(name, transport(name, pc), deps)
		if err != nil {
			return nil, err
		}
		r.verification[name] = p
	}

	aml := map[string]infra.ProviderConfig{ProviderRefinitiv: cfg.Refinitiv, ProviderComplyAdvantage: cfg.ComplyAdvantage, ProviderMock: {}}
	for name, pc := range aml {
		if name != ProviderMock && pc.BaseURL == "" {
			continue
		}
		p, err := NewAMLProvider(name, transport(name, pc))
		if err != nil {
			return nil, err
		}
		r.aml[name] = p
	}

	if cfg.Risk.BaseURL != "" {
		r.risk = NewRiskScorer("risk", transport("risk", cfg.Risk))
	} else {
		r.risk = NewRiskScorer(ProviderMock, transport(ProviderMock, infra.ProviderConfig{}))
	}

	if _, ok := r.verification[r.defaultKYC]; !ok {
		logger.Warn("default KYC provider is not configured, falling back to mock", zap.String("provider", r.defaultKYC))
		r.defaultKYC = ProviderMock
	}
	if _, ok := r.aml[r.defaultAML]; !ok {
		logger.Warn("default AML provider is not configured, falling back to mock", zap.String("provider", r.defaultAML))
		r.defaultAML = ProviderMock
	}

	logger.Info("providers ready",
		zap.String("default_kyc", r.defaultKYC),
		zap.String("default_aml", r.defaultAML),
		zap.String("risk", r.risk.Name()),
	)
	return r, nil
}

// Verification — пустое имя означает провайдера по умолчанию.
func (r *Registry) Verification(name string) (VerificationProvider, error) {
	if name == "" {
		name = r.defaultKYC
	}
	p, ok := r.verification[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: verification provider %q is not configured", domain.ErrValidation, name)
	}
	return p, nil
}

func (r *Registry) AML(name string) (AMLProvider, error) {
	if name == "" {
		name = r.defaultAML
	}
	p, ok := r.aml[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: AML provider %q is not configured", domain.ErrValidation, name)
	}
	return p, nil
}

func (r *Registry) Risk() *RiskScorer { return r.risk }
