package config

import (
	"os"
	"strconv"
)

// Getenv helpers for the settings that bypass the CLI surface:
// DATABASE_URL and the *_LOGGING_ENABLED/LOGS_* variables. The RINGGATE_*
// variables are bound to flags in StartCmd instead. Unset variables
// yield zero values, never errors.

func GetenvStr(key string) string {
	return os.Getenv(key)
}

func GetenvInt(key string) (*int, error) {
	s := GetenvStr(key)
	if s == "" {
		var i int
		return &i, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		var i int
		return &i, err
	}
	return &v, nil
}

func GetenvBool(key string) (*bool, error) {
	s := GetenvStr(key)
	if s == "" {
		b := false
		return &b, nil
	}

	v, err := strconv.ParseBool(s)
	if err != nil {
		b := false
		return &b, err
	}
	return &v, nil
}
