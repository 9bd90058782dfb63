package app

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/classy-portal/classy/internal/course"
	"github.com/classy-portal/classy/internal/github"
	"github.com/classy-portal/classy/internal/grades"
	"github.com/classy-portal/classy/internal/sdmm"
	"github.com/classy-portal/classy/internal/store"
)

type Service struct {
	Config       *Config
	Store        store.EntityStore
	Auth         *Auth
	Tokens       *TokenManager
	Policy       course.Policy
	Engine       *sdmm.Engine
	Orchestrator *sdmm.Orchestrator
	Grades       *grades.Controller
}

func NewService(configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	entityStore, err := NewStore(config.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	auth, err := NewAuth(config)
	if err != nil {
		return nil, fmt.Errorf("failed to init auth: %w", err)
	}

	var tokens *TokenManager
	if auth.Redis() != nil {
		tokens = NewTokenManager(auth.Redis())
	}

	gateway := github.NewController(
		config.GitHub.APIURL,
		config.GitHub.WebURL,
		config.GitHub.Org,
		config.GitHub.Token,
	)

	engine := sdmm.NewEngine(entityStore)

	var policy course.Policy
	if config.Course.Name == "sdmm" {
		policy = sdmm.NewPolicy(entityStore)
	} else {
		policy = course.NewDefaultPolicy()
	}

	gradesCtrl := grades.New(entityStore, policy)
	orchestrator := sdmm.NewOrchestrator(
		entityStore,
		gateway,
		policy,
		engine,
		gradesCtrl,
		config.Course.WebhookURL,
	)

	return &Service{
		Config:       config,
		Store:        entityStore,
		Auth:         auth,
		Tokens:       tokens,
		Policy:       policy,
		Engine:       engine,
		Orchestrator: orchestrator,
		Grades:       gradesCtrl,
	}, nil
}

func (s *Service) ValidateAuthAndPerson(r *http.Request, personID string) error {
	if !s.Config.Server.EnableAuth {
		return nil
	}

	authHeader := r.Header.Get(s.Auth.tokenHeader)
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return fmt.Errorf("Invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")

	return s.Auth.ValidateToken(r.Context(), s.Config.Course.Name, personID, token)
}

func (s *Service) ValidateHeaders(headers map[string][]string) bool {
	for _, required := range s.Config.API.RequiredHeaders {
		value := headers[http.CanonicalHeaderKey(required.Name)]
		if len(value) == 0 || !strings.EqualFold(value[0], required.Value) {
			return false
		}
	}
	return true
}

func (s *Service) Close() error {
	var errs []error

	if err := s.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if err := s.Auth.Close(); err != nil {
		errs = append(errs, fmt.Errorf("auth: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors while closing: %v", errs)
	}
	return nil
}
