package reformat

import (
	"context"

	"go.uber.org/zap"

	"github.com/tyemirov/branchfmt/internal/preflight"
)

// MigrationRepository is the full repository surface needed to validate and perform a migration.
type MigrationRepository interface {
	preflight.Repository
	Repository
}

// ServiceDependencies describes the collaborators of Service.
type ServiceDependencies struct {
	Logger     *zap.Logger
	Repository MigrationRepository
	Formatter  Formatter
}

// Service gates a migration behind the preflight checks and then runs the engine.
type Service struct {
	validator *preflight.Validator
	engine    *Engine
}

// NewService wires the validator and the engine over one repository.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Repository == nil {
		return nil, ErrRepositoryNotConfigured
	}

	validator, validatorError := preflight.NewValidator(dependencies.Repository, dependencies.Logger)
	if validatorError != nil {
		return nil, validatorError
	}

	engine, engineError := NewEngine(dependencies.Repository, dependencies.Formatter, dependencies.Logger)
	if engineError != nil {
		return nil, engineError
	}

	return &Service{validator: validator, engine: engine}, nil
}

// Reformat validates the request and migrates the branch. Nothing is modified when validation fails.
func (service *Service) Reformat(executionContext context.Context, request preflight.Request) (MigrationResult, error) {
	plan, planError := service.validator.Validate(executionContext, request)
	if planError != nil {
		return MigrationResult{}, planError
	}
	return service.engine.Run(executionContext, plan)
}

// Preview validates the request and reports what a migration would touch.
func (service *Service) Preview(executionContext context.Context, request preflight.Request) (DryRunReport, error) {
	plan, planError := service.validator.Validate(executionContext, request)
	if planError != nil {
		return DryRunReport{}, planError
	}
	return service.engine.DryRun(executionContext, plan)
}
