package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Blackdeer1524/airgraph/src"
	"github.com/Blackdeer1524/airgraph/src/ingest"
	"github.com/Blackdeer1524/airgraph/src/pkg/utils"
	"github.com/Blackdeer1524/airgraph/src/source/airtable"
	"github.com/Blackdeer1524/airgraph/src/store/cypher"
)

const CloseTimeout = 15 * time.Second

// IngestEntrypoint wires the environment, the Airtable provider and the
// Neo4j store into one runnable ingest job.
type IngestEntrypoint struct {
	Nuke bool
	Env  envVars

	job   *ingest.Job
	store *cypher.Store
	log   src.Logger
}

func (e *IngestEntrypoint) Init(ctx context.Context) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	e.Env = env

	var log src.Logger
	if e.Env.Environment == EnvDev {
		log = utils.Must(zap.NewDevelopment()).Sugar()
	} else {
		log = utils.Must(zap.NewProduction()).Sugar()
	}

	e.log = log

	provider := airtable.New(
		e.Env.AirtableAPIKey,
		e.Env.AirtableBaseID,
		airtable.WithReferenceTable(e.Env.AirtableRefTable),
	)

	store, err := cypher.New(ctx, e.Env.Neo4jURI, e.Env.Neo4jUser, e.Env.Neo4jPassword)
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}

	e.store = store
	e.job = ingest.NewJob(
		provider,
		store,
		log,
		ingest.WithWorkers(e.Env.FetchWorkers),
	)

	return nil
}

func (e *IngestEntrypoint) Run(ctx context.Context) error {
	return e.job.Run(ctx, e.Nuke)
}

func (e *IngestEntrypoint) Close() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), CloseTimeout)
	defer cancel()

	if e.store != nil {
		err = e.store.Close(ctx)
	}

	if e.log != nil {
		if err != nil {
			e.log.Errorf("failed to close store: %v", err)
		}

		logErr := e.log.Sync()
		if logErr != nil && err != nil {
			err = fmt.Errorf("%w, %w", err, logErr)
		} else if logErr != nil {
			err = logErr
		}
	}

	return
}
