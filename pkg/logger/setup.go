package logger

// SetupLogger replaces the default logger from command line settings.
func SetupLogger(logLevel string, logJSON, logSource bool) Logger {
	Init(&Config{
		Level:      ParseLevel(logLevel),
		JSON:       logJSON,
		AddSource:  logSource,
		TimeFormat: defaultTimeFormat,
	})
	return GetDefault()
}
