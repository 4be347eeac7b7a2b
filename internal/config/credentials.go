package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvSaaSHubAPIKey          = "SAASHUB_API_KEY"
	EnvProductHuntAccessToken = "PRODUCTHUNT_ACCESS_TOKEN"
	EnvOpenAIAPIKey           = "OPENAI_API_KEY"
)

// Credentials come only from the environment, never from the config file.
type Credentials struct {
	SaaSHubAPIKey          string
	ProductHuntAccessToken string
	OpenAIAPIKey           string
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return &ConfigurationError{Message: "cannot parse " + f + ": " + err.Error()}
		}
	}
	return nil
}

func CredentialsFromEnv() Credentials {
	return Credentials{
		SaaSHubAPIKey:          strings.TrimSpace(os.Getenv(EnvSaaSHubAPIKey)),
		ProductHuntAccessToken: strings.TrimSpace(os.Getenv(EnvProductHuntAccessToken)),
		OpenAIAPIKey:           strings.TrimSpace(os.Getenv(EnvOpenAIAPIKey)),
	}
}

// Need names the credentials one command requires.
type Need struct {
	SaaSHub     bool
	ProductHunt bool
	OpenAI      bool
}

// Require fails before any work starts when a needed variable
// is unset.
func (c Credentials) Require(need Need) error {
	var missing []string
	if need.SaaSHub && c.SaaSHubAPIKey == "" {
		missing = append(missing, EnvSaaSHubAPIKey)
	}
	if need.ProductHunt && c.ProductHuntAccessToken == "" {
		missing = append(missing, EnvProductHuntAccessToken)
	}
	if need.OpenAI && c.OpenAIAPIKey == "" {
		missing = append(missing, EnvOpenAIAPIKey)
	}
	if len(missing) > 0 {
		return &ConfigurationError{Message: "missing environment variables", Missing: missing}
	}
	return nil
}
