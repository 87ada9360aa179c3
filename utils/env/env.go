package env

import "os"

// GetEnvVar returns the value of an environment variable, or "" if unset
func GetEnvVar(name string) string {
	return os.Getenv(name)
}

// SetEnvVar sets an environment variable
func SetEnvVar(name string, value string) error {
	return os.Setenv(name, value)
}
