package config

import "fmt"

func mustNonEmpty(value, envName string) error {
	if value == "" {
		return fmt.Errorf("missing required env %s", envName)
	}
	return nil
}

func mustNonEmptyBytes(value []byte, envName string) error {
	return mustNonEmpty(string(value), envName)
}
