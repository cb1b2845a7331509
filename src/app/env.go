package app

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const EnvDev = "dev"

type envVars struct {
	Environment string `envconfig:"ENVIRONMENT" default:"prod"`

	AirtableAPIKey   string `envconfig:"AIRTABLE_API_KEY" required:"true"`
	AirtableBaseID   string `envconfig:"AIRTABLE_BASE_ID" required:"true"`
	AirtableRefTable string `envconfig:"AIRTABLE_REF_TABLE" default:"Tables"`

	Neo4jURI      string `envconfig:"NEO4J_URI" required:"true"`
	Neo4jUser     string `envconfig:"NEO4J_USERNAME" required:"true"`
	Neo4jPassword string `envconfig:"NEO4J_PASSWORD" required:"true"`

	FetchWorkers int `envconfig:"FETCH_WORKERS" default:"4"`
}

// loadEnv reads configuration once, at the process boundary. Nothing
// below the app package touches the environment.
func loadEnv() (envVars, error) {
	_ = godotenv.Load()

	var env envVars
	if err := envconfig.Process("", &env); err != nil {
		return envVars{}, fmt.Errorf("reading environment: %w", err)
	}

	return env, nil
}
