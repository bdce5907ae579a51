package migrate

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/pdsmigrate/internal/migration"
	"github.com/temirov/pdsmigrate/internal/operations"
	"github.com/temirov/pdsmigrate/internal/recoverykey"
	"github.com/temirov/pdsmigrate/internal/utils"
	"github.com/temirov/pdsmigrate/internal/utils/flags"
)

const (
	commandUseConstant                  = "migrate [mode]"
	commandAliasConstant                = "m"
	commandShortDescriptionConstant     = "Migrate an account to a new PDS"
	commandLongDescriptionConstant      = "migrate moves an account, its repository, blobs, preferences, and identity from one PDS to another. Interactive mode asks for credentials on the terminal. Pipe mode resumes a JSON migration snapshot from standard input and writes the updated snapshot to standard output."
	modeFlagNameConstant                = "mode"
	modeFlagUsageConstant               = "Migration mode"
	assumeYesFlagNameConstant           = "yes"
	assumeYesFlagShorthandConstant      = "y"
	assumeYesFlagUsageConstant          = "Start the migration without confirming the credentials summary"
	operationsCreationTemplateConstant  = "unable to construct migration operations: %w"
	modeResolutionTemplateConstant      = "invalid migration mode: %w"
	interactiveLogLevelTemplateConstant = "invalid interactive log level: %w"
	logMessageMigrationStartedConstant  = "Migration command started"
	logMessageMigrationFailedConstant   = "Migration command failed"
	logMessageMigrationFinishedConstant = "Migration command finished"
	logFieldModeConstant                = "mode"
	logFieldMigrationRunIDConstant      = "migration_run_id"
	logFieldConfigurationFileConstant   = "config_file"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// OperationsProvider constructs the operations a migration runs against.
type OperationsProvider func(configuration CommandConfiguration, logger *zap.Logger) (migration.Operations, error)

// CommandBuilder assembles the migrate Cobra command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	OperationsProvider    OperationsProvider
	RunIDGenerator        func() string
}

type commandOptions struct {
	mode      Mode
	assumeYes bool
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Aliases:       []string{commandAliasConstant},
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MaximumNArgs(1),
		RunE:          builder.run,
	}

	modeChoice := newModeChoice(ModeInteractive)
	modeUsage := flags.FormatChoiceUsage(string(ModeInteractive), []string{string(ModeInteractive), string(ModePipe)}, modeFlagUsageConstant)
	command.Flags().Var(modeChoice, modeFlagNameConstant, modeUsage)

	var assumeYes bool
	flags.AddToggleFlag(command.Flags(), &assumeYes, assumeYesFlagNameConstant, assumeYesFlagShorthandConstant, false, assumeYesFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration := builder.resolveConfiguration()
	options, optionsError := builder.parseOptions(command, arguments, configuration)
	if optionsError != nil {
		return optionsError
	}

	contextAccessor := utils.NewCommandContextAccessor()
	runID, runIDKnown := contextAccessor.MigrationRunID(command.Context())
	if !runIDKnown {
		runID = builder.resolveRunID()
		command.SetContext(contextAccessor.WithMigrationRunID(command.Context(), runID))
	}
	configurationFilePath, _ := contextAccessor.ConfigurationFilePath(command.Context())
	logger := builder.resolveLogger().With(zap.String(logFieldMigrationRunIDConstant, runID))
	if options.mode == ModeInteractive {
		quietLogger, levelError := raiseLogLevel(logger, configuration.InteractiveLogLevel)
		if levelError != nil {
			return levelError
		}
		logger = quietLogger
	}

	migrationOperations, operationsError := builder.resolveOperations(configuration, logger)
	if operationsError != nil {
		return fmt.Errorf(operationsCreationTemplateConstant, operationsError)
	}
	dependencies := migration.Dependencies{Operations: migrationOperations, Logger: logger}

	logger.Info(
		logMessageMigrationStartedConstant,
		zap.String(logFieldModeConstant, string(options.mode)),
		zap.String(logFieldConfigurationFileConstant, configurationFilePath),
	)

	var runError error
	switch options.mode {
	case ModePipe:
		runError = PipeRunner{
			Dependencies: dependencies,
			Input:        command.InOrStdin(),
			Output:       utils.NewFlushingWriter(command.OutOrStdout()),
		}.Run(command.Context())
	default:
		runError = builder.interactiveRunner(command, configuration, options, dependencies).Run(command.Context())
	}

	if runError != nil {
		logger.Error(logMessageMigrationFailedConstant, zap.String(logFieldModeConstant, string(options.mode)), zap.Error(runError))
		return runError
	}
	logger.Info(logMessageMigrationFinishedConstant, zap.String(logFieldModeConstant, string(options.mode)))
	return nil
}

// raiseLogLevel drops entries below configuredLevel. It never lowers the
// level the logger was built with.
func raiseLogLevel(logger *zap.Logger, configuredLevel string) (*zap.Logger, error) {
	level, parseError := zapcore.ParseLevel(configuredLevel)
	if parseError != nil {
		return nil, fmt.Errorf(interactiveLogLevelTemplateConstant, parseError)
	}
	if level <= logger.Level() {
		return logger, nil
	}
	return logger.WithOptions(zap.IncreaseLevel(level)), nil
}

func (builder *CommandBuilder) interactiveRunner(command *cobra.Command, configuration CommandConfiguration, options commandOptions, dependencies migration.Dependencies) InteractiveRunner {
	output := utils.NewFlushingWriter(command.OutOrStdout())
	prompter := NewIOPrompter(command.InOrStdin(), output)
	presenter := NewPresenter(output, colorEnabledFor(command.OutOrStdout()))
	return InteractiveRunner{
		Dependencies: dependencies,
		Presenter:    presenter,
		Prompter:     prompter,
		CredentialsSupplier: PromptCredentials(prompter, presenter, CredentialsPromptOptions{
			DefaultOldPDSURL: configuration.DefaultOldPDSURL,
			SkipConfirmation: options.assumeYes,
		}),
		ConfirmationTokenSupplier: PromptConfirmationToken(prompter),
	}
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command, arguments []string, configuration CommandConfiguration) (commandOptions, error) {
	rawMode := configuration.Mode
	if modeFlag := command.Flags().Lookup(modeFlagNameConstant); modeFlag != nil && modeFlag.Changed {
		rawMode = modeFlag.Value.String()
	}
	if len(arguments) > 0 {
		rawMode = arguments[0]
	}

	mode, modeError := ParseMode(rawMode)
	if modeError != nil {
		return commandOptions{}, fmt.Errorf(modeResolutionTemplateConstant, modeError)
	}

	assumeYes := false
	if assumeYesFlag := command.Flags().Lookup(assumeYesFlagNameConstant); assumeYesFlag != nil {
		parsedToggle, toggleError := flags.ParseToggle(assumeYesFlag.Value.String())
		if toggleError != nil {
			return commandOptions{}, toggleError
		}
		assumeYes = parsedToggle
	}

	return commandOptions{mode: mode, assumeYes: assumeYes}, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}

	provided := builder.ConfigurationProvider()
	return provided.Sanitize()
}

func (builder *CommandBuilder) resolveRunID() string {
	if builder.RunIDGenerator != nil {
		return builder.RunIDGenerator()
	}
	return uuid.NewString()
}

func (builder *CommandBuilder) resolveOperations(configuration CommandConfiguration, logger *zap.Logger) (migration.Operations, error) {
	if builder.OperationsProvider != nil {
		return builder.OperationsProvider(configuration, logger)
	}
	return operations.NewService(operations.ServiceDependencies{
		AgentFactory: operations.NewXRPCAgentFactory(configuration.RequestTimeout, configuration.UserAgent, logger),
		KeyGenerator: recoverykey.Secp256k1Generator{},
		Logger:       logger,
	})
}

func colorEnabledFor(output io.Writer) bool {
	return output == os.Stdout && !color.NoColor
}
