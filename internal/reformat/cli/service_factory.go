package cli

import (
	"github.com/tyemirov/branchfmt/internal/execshell"
	"github.com/tyemirov/branchfmt/internal/formatter"
	"github.com/tyemirov/branchfmt/internal/gitrepo"
	"github.com/tyemirov/branchfmt/internal/reformat"
)

// NewGitServiceFactory returns a ServiceFactory that drives the git binary and the configured formatters.
func NewGitServiceFactory() ServiceFactory {
	return func(request ServiceRequest) (MigrationService, error) {
		executor, executorError := execshell.NewShellExecutor(request.Logger, execshell.NewOSCommandRunner(), request.HumanReadableLogging)
		if executorError != nil {
			return nil, executorError
		}

		manager, managerError := gitrepo.NewRepositoryManager(executor)
		if managerError != nil {
			return nil, managerError
		}
		reader, readerError := gitrepo.NewHistoryReader(request.WorkingDirectory)
		if readerError != nil {
			return nil, readerError
		}
		repository, repositoryError := gitrepo.NewRepository(request.WorkingDirectory, manager, reader, nil)
		if repositoryError != nil {
			return nil, repositoryError
		}

		suite, suiteError := formatter.NewSuite(request.WorkingDirectory, request.Configuration.Formatters, formatter.SuiteDependencies{Executor: executor})
		if suiteError != nil {
			return nil, suiteError
		}

		service, serviceError := reformat.NewService(reformat.ServiceDependencies{
			Logger:     request.Logger,
			Repository: repository,
			Formatter:  suite,
		})
		if serviceError != nil {
			return nil, serviceError
		}
		return service, nil
	}
}
