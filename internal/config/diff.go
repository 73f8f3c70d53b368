package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded are tracked; classifier and server changes need
// a restart.
type ConfigDiff struct {
	LogLevelChanged  bool
	NewLogLevel      LogLevel
	ExportDirChanged bool
	NewExportDir     string

	// RestartRequired is set when a non-reloadable section changed.
	RestartRequired bool
}

// Diff compares old and next configs and returns what changed.
func Diff(old, next *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != next.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = next.Server.LogLevel
	}
	if old.Export.Dir != next.Export.Dir {
		d.ExportDirChanged = true
		d.NewExportDir = next.Export.Dir
	}

	if old.Server.ListenAddr != next.Server.ListenAddr ||
		old.Classifier != next.Classifier ||
		old.Archive != next.Archive {
		d.RestartRequired = true
	}
	return d
}
