package notebook

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/notenest/internal/remote"
	"go.uber.org/zap"
)

// ErrWatchNotConfigured indicates that no change stream was configured.
var ErrWatchNotConfigured = errors.New("notebook: change stream not configured")

// Watch refreshes the merged notes and the cache whenever the shared document changes and hands
// every refreshed snapshot to onRefresh. It blocks until ctx is done, which returns nil, or until
// the stream or a local refresh fails.
func (s *Service) Watch(ctx context.Context, onRefresh func(remote.ChangeEvent, Snapshot)) error {
	if s.changes == nil {
		return newServiceError(opWatch, reasonMissingChanges, ErrWatchNotConfigured)
	}

	var refreshErr error
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := s.changes.Watch(watchCtx, func(event remote.ChangeEvent) {
		if watchCtx.Err() != nil {
			return
		}
		snapshot, err := s.GetPdfMap(watchCtx)
		if err != nil {
			refreshErr = err
			cancel()
			return
		}
		s.logger.Debug(
			"notes refreshed from change stream",
			zap.String("operation", opWatch),
			zap.Int64("revision", event.Revision),
		)
		if onRefresh != nil {
			onRefresh(event, snapshot)
		}
	})
	if ctx.Err() != nil {
		return nil
	}
	if refreshErr != nil {
		return refreshErr
	}
	if err != nil {
		s.logError(opWatch, reasonStreamFailed, err)
		return newServiceError(opWatch, reasonStreamFailed, err)
	}
	return nil
}
