package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/config"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/coordinator"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/crypt"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/dbencryption"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/metrics"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/schema"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/store"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/types"
)

const shutdownTimeout = 30 * time.Second

// BatchOptions selects what RunBatch does
type BatchOptions struct {
	Verify  bool
	DryRun  bool
	KeyName string
	TaskID  string
}

// RunBatch encrypts, or with Verify checks, every stored document of the model's
// collection and prints the task result.
func RunBatch(ctx context.Context, cfg *config.Config, m *schema.Model, opts BatchOptions, out io.Writer) error {
	if m.Collection == "" {
		return fmt.Errorf("model %s has no collection", m.Name)
	}

	client, db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer disconnect(client)

	prim, err := batchPrimitive(ctx, cfg, db, opts.KeyName)
	if err != nil {
		return err
	}

	rec, err := metrics.New(cfg.MetricsNamespace, nil)
	if err != nil {
		return err
	}

	batchCfg := cfg.BatchConfig()
	batchCfg.DryRun = opts.DryRun

	coord := coordinator.NewCoordinator()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := coord.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("Batch processes did not stop in time")
		}
	}()

	procOpts := []dbencryption.Option{dbencryption.WithBatchRecorder(rec)}
	if l := auditLogger(cfg); l != nil {
		procOpts = append(procOpts, dbencryption.WithAuditLogger(l))
	}
	proc, err := dbencryption.NewProcessor(db.Collection(m.Collection), m, prim, coord, batchCfg, procOpts...)
	if err != nil {
		return err
	}

	var res *types.TaskResult
	if opts.Verify {
		res, err = proc.Verify(ctx, opts.TaskID)
	} else {
		res, err = proc.Run(ctx, opts.TaskID)
	}
	if res != nil {
		if werr := writeJSON(out, res); werr != nil {
			return werr
		}
	}
	return err
}

// batchPrimitive resolves the cipher, reading the wrapped data key from the key
// collection when it is not configured directly.
func batchPrimitive(ctx context.Context, cfg *config.Config, db *mongo.Database, keyName string) (*crypt.Primitive, error) {
	if cfg.KMSProvider != "" && cfg.WrappedDataKey == "" && keyName != "" {
		ks, err := store.NewKeyStore(db.Collection(cfg.KeyCollection), 0)
		if err != nil {
			return nil, err
		}
		info, err := ks.GetDataKey(ctx, keyName)
		if err != nil {
			return nil, err
		}
		withKey := *cfg
		withKey.WrappedDataKey = info.Wrapped
		cfg = &withKey
	}
	return NewPrimitive(ctx, cfg)
}

func connect(ctx context.Context, cfg *config.Config) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		disconnect(client)
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	log.Debug().Str("database", cfg.MongoDatabase).Msg("Connected to MongoDB")
	return client, client.Database(cfg.MongoDatabase), nil
}

func disconnect(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to disconnect from MongoDB")
	}
}
