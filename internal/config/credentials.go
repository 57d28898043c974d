package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Credentials holds the secrets of the cloud providers. They are read from
// the environment only, optionally seeded from a .env file.
type Credentials struct {
	AzureSpeechKey    string `envconfig:"AZURE_SPEECH_KEY"`
	AzureSpeechRegion string `envconfig:"AZURE_SPEECH_REGION"`

	AWSAccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	AWSSessionToken    string `envconfig:"AWS_SESSION_TOKEN"`
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`

	WatsonAPIKey string `envconfig:"IBM_WATSON_APIKEY"`
	WatsonURL    string `envconfig:"IBM_WATSON_URL"`

	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	ElevenLabsAPIKey string `envconfig:"ELEVENLABS_API_KEY"`
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment. Variables already set win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// LoadCredentials decodes [Credentials] from the process environment.
func LoadCredentials() (Credentials, error) {
	var c Credentials
	if err := envconfig.Process("", &c); err != nil {
		return Credentials{}, fmt.Errorf("config: credentials: %w", err)
	}
	return c, nil
}
