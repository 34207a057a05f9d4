package cmd

import (
	"context"
	"fmt"

	"smileslot/config"
	"smileslot/core/audio"
	"smileslot/core/extractor"
	"smileslot/core/notify"
	"smileslot/core/pipeline"
	"smileslot/db"
	"smileslot/logger"
	"smileslot/repository"
	"smileslot/storage"

	"gorm.io/gorm"
)

// app holds the collaborators shared by the server, process and watch commands.
type app struct {
	cfg    *config.Config
	gdb    *gorm.DB
	store  storage.Store
	slots  repository.SlotRepository
	status repository.StatusRepository
	orch   *pipeline.Orchestrator

	closers []func()
}

func initLogger(cfg *config.Config) error {
	return logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
	})
}

func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.AudioSource {
	case "minio":
		return storage.NewMinioStore(ctx, cfg)
	case "local":
		return storage.NewLocalStore(cfg.LocalAudioRoot)
	default:
		return nil, fmt.Errorf("unknown AUDIO_SOURCE %q (want minio or local)", cfg.AudioSource)
	}
}

func newExtractor(cfg *config.Config) (extractor.Extractor, error) {
	switch cfg.ExtractorMode {
	case "http":
		return extractor.NewHTTPExtractor(cfg.ExtractorURL, cfg.ExtractorTimeout), nil
	case "smilextract":
		return extractor.NewSMILExtract(cfg.SMILExtractPath, cfg.SMILExtractConf), nil
	default:
		return nil, fmt.Errorf("unknown EXTRACTOR_MODE %q (want http or smilextract)", cfg.ExtractorMode)
	}
}

// newApp opens the slot store and builds the orchestrator. store overrides
// the configured audio source when non-nil.
func newApp(ctx context.Context, cfg *config.Config, store storage.Store) (*app, error) {
	if err := repository.ValidateStatusField(cfg.StatusField); err != nil {
		return nil, err
	}
	ext, err := newExtractor(cfg)
	if err != nil {
		return nil, err
	}
	if store == nil {
		if store, err = newStore(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to open audio source: %w", err)
		}
	}

	gdb, err := db.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		db.Close(gdb)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := repository.CheckStatusField(gdb, cfg.StatusField); err != nil {
		db.Close(gdb)
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		gdb:    gdb,
		store:  store,
		slots:  repository.NewGormSlotRepository(gdb),
		status: repository.NewGormStatusRepository(gdb),
	}
	a.closers = append(a.closers, func() { db.Close(gdb) })

	a.orch = pipeline.New(pipeline.Deps{
		Fetcher:   store,
		Extractor: ext,
		Prober:    audio.NewProber(cfg.FFprobePath),
		Slots:     a.slots,
		Status:    a.status,
	}, pipeline.Options{
		Workers:         cfg.Workers,
		StoreRetries:    cfg.StoreRetries,
		StoreBackoff:    cfg.StoreBackoff,
		SampleTolerance: cfg.SampleTolerance,
		StatusField:     cfg.StatusField,
	})

	if cfg.MQTTBroker != "" {
		client, err := notify.Connect(notify.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			// slot events are optional
			logger.Warn("MQTT disabled", logger.ErrorField(err))
		} else {
			pub := notify.NewPublisher(client, cfg.MQTTTopic)
			a.orch.AddObserver(pub)
			a.closers = append(a.closers, pub.Close)
		}
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	logger.Sync()
}
