package config

import (
	"github.com/joho/godotenv"
)

// envFiles are loaded in order; values already present in the process
// environment are kept.
var envFiles = []string{".env", ".env.local"}

func loadEnvFiles() []string {
	var loaded []string
	for _, f := range envFiles {
		if err := godotenv.Load(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	return loaded
}
