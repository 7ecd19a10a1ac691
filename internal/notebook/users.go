package notebook

import (
	"context"
	"strings"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
)

const unknownUserName = "Unknown"

// RegisterUserLogin records a login in the cached usage log and, independently, in the cloud
// document. When the cloud write succeeds the cache adopts the cloud list.
func (s *Service) RegisterUserLogin(ctx context.Context, login Login) (SyncResult, error) {
	name := strings.TrimSpace(login.Name)
	if name == "" {
		name = unknownUserName
	}
	entry := notes.UserLogin{
		Name:        name,
		Email:       strings.TrimSpace(login.Email),
		IP:          s.publicIP(ctx),
		LastLoginAt: s.now(),
		LoginCount:  1,
	}

	cached, err := s.cache.Users()
	if err != nil {
		s.logError(opRegisterLogin, reasonCacheReadFailed, err)
		return SyncResult{}, newServiceError(opRegisterLogin, reasonCacheReadFailed, err)
	}
	if err := s.cache.SetUsers(notes.RecordLogin(s.sanitizer.Users(cached), entry)); err != nil {
		s.logError(opRegisterLogin, reasonCacheWriteFailed, err)
		return SyncResult{}, newServiceError(opRegisterLogin, reasonCacheWriteFailed, err)
	}

	var cloudUsers []notes.UserLogin
	result := s.updateCloud(ctx, opRegisterLogin, func(state *notes.CloudState) {
		cloudUsers = notes.RecordLogin(s.sanitizer.Users(state.Users), entry)
		state.Users = cloudUsers
	})
	if !result.CloudSynced {
		return result, nil
	}
	if err := s.cache.SetUsers(cloudUsers); err != nil {
		s.logError(opRegisterLogin, reasonCacheWriteFailed, err)
		return result, newServiceError(opRegisterLogin, reasonCacheWriteFailed, err)
	}
	return result, nil
}

// ListUsers returns the cloud usage log, caching it, or the cached log when the cloud is
// unreachable.
func (s *Service) ListUsers(ctx context.Context) (UserSnapshot, error) {
	state, syncErr := s.remote.Read(ctx)
	if syncErr == nil {
		if err := s.cache.SetUsers(state.Users); err != nil {
			s.logError(opListUsers, reasonCacheWriteFailed, err)
			return UserSnapshot{}, newServiceError(opListUsers, reasonCacheWriteFailed, err)
		}
		return UserSnapshot{Users: state.Users}, nil
	}

	s.logSyncFailure(opListUsers, reasonCloudLoadFailed, syncErr)
	cached, err := s.cache.Users()
	if err != nil {
		s.logError(opListUsers, reasonCacheReadFailed, err)
		return UserSnapshot{}, newServiceError(opListUsers, reasonCacheReadFailed, err)
	}
	return UserSnapshot{Users: s.sanitizer.Users(cached), Degraded: true, SyncErr: syncErr}, nil
}

func (s *Service) publicIP(ctx context.Context) string {
	if s.ipResolver == nil {
		return notes.IPNotAvailable
	}
	address := strings.TrimSpace(s.ipResolver.PublicIP(ctx))
	if address == "" {
		return notes.IPNotAvailable
	}
	return address
}
