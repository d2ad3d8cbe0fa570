package util

import (
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

func EnvOrDefault(key string, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func EnvOrDefaultInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("Ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return i
}

// EnvOrDefaultInts parses a comma separated list such as "2019,2024".
func EnvOrDefaultInts(key string, fallback []int) []int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	var out []int
	for _, s := range strings.Split(v, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			log.Warnf("Ignoring %s=%q: %v", key, v, err)
			return fallback
		}
		out = append(out, i)
	}
	return out
}

// LogLevelOrDie configures logrus from LOG_LEVEL, falling back to the given level.
func LogLevelOrDie(fallback log.Level) {
	lvl, err := log.ParseLevel(EnvOrDefault("LOG_LEVEL", fallback.String()))
	if err != nil {
		log.Fatalf("Bad log level configured %v", err)
	}
	log.SetLevel(lvl)
}
