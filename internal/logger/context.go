package logger

// Component-specific logger functions

// CLI returns a logger for CLI operations
func CLI() Logger {
	return WithField("component", "cli")
}

// DB returns a logger for database operations
func DB() Logger {
	return WithField("component", "db")
}

// ORM returns a logger for model and repository operations
func ORM() Logger {
	return WithField("component", "orm")
}

// Composite returns a logger for composite key definition and expansion
func Composite() Logger {
	return WithField("component", "composite")
}
