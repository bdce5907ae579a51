// Package utils exposes helpers shared by the pdsmigrate commands.
//
// ConfigurationLoader layers embedded defaults, configuration files, and
// PDSMIGRATE_* environment variables through Viper. LoggerFactory builds zap
// loggers that write to standard error. CommandContextAccessor carries the
// configuration file path and migration run identifier through command
// contexts, and FlushingWriter keeps pipe-mode output unbuffered.
package utils
