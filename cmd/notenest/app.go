package main

import (
	"context"
	"net/http"

	"github.com/MarcoPoloResearchLab/notenest/internal/cache"
	"github.com/MarcoPoloResearchLab/notenest/internal/config"
	"github.com/MarcoPoloResearchLab/notenest/internal/localstore"
	"github.com/MarcoPoloResearchLab/notenest/internal/logging"
	"github.com/MarcoPoloResearchLab/notenest/internal/notebook"
	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"github.com/MarcoPoloResearchLab/notenest/internal/remote"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// application bundles the notebook service with the resources it owns.
type application struct {
	config   config.AppConfig
	logger   *zap.Logger
	notebook *notebook.Service
	store    localstore.Store
}

func openApplication(ctx context.Context) (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, logging.FormatConsole)
	if err != nil {
		return nil, err
	}

	localCache, err := cache.OpenDir(appConfig.CacheDir)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	store, err := localstore.Open(localstore.OpenConfig{
		Path:        appConfig.LocalStorePath,
		Fallback:    localCache,
		FallbackKey: cache.NotesKey,
		Logger:      logger,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	httpClient := &http.Client{Timeout: appConfig.RemoteTimeout}
	sanitizer := notes.NewSanitizer(appConfig.Chapters, nil)

	remoteClient, err := remote.NewClient(remote.ClientConfig{
		Endpoint:   appConfig.RemoteEndpoint,
		HTTPClient: httpClient,
		Sanitizer:  sanitizer,
		Logger:     logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	backup, err := newBackupTarget(ctx, appConfig, httpClient)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	service, err := notebook.NewService(notebook.ServiceConfig{
		LocalStore: store,
		Cache:      localCache,
		Remote:     remoteClient,
		Backup:     backup,
		IPResolver: remote.NewIPResolver(appConfig.IPLookupURL, httpClient),
		Changes:    remoteClient,
		Sanitizer:  sanitizer,
		Logger:     logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if appConfig.RemoteEndpoint == "" {
		logger.Warn("remote.endpoint is not configured; working from local data only")
	}

	return &application{
		config:   appConfig,
		logger:   logger,
		notebook: service,
		store:    store,
	}, nil
}

// newBackupTarget prefers S3 when a bucket is configured and returns nil when no target is set.
func newBackupTarget(ctx context.Context, appConfig config.AppConfig, httpClient *http.Client) (remote.BackupTarget, error) {
	if appConfig.BackupS3.Enabled() {
		target, err := remote.NewS3BackupTarget(ctx, remote.S3TargetConfig{
			Bucket:          appConfig.BackupS3.Bucket,
			Key:             appConfig.BackupS3.Key,
			Region:          appConfig.BackupS3.Region,
			Endpoint:        appConfig.BackupS3.Endpoint,
			AccessKeyID:     appConfig.BackupS3.AccessKeyID,
			SecretAccessKey: appConfig.BackupS3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return target, nil
	}
	if appConfig.BackupEndpoint != "" {
		return remote.NewHTTPBackupTarget(appConfig.BackupEndpoint, httpClient), nil
	}
	return nil, nil
}

func (a *application) Close() error {
	err := a.store.Close()
	_ = a.logger.Sync()
	return err
}
