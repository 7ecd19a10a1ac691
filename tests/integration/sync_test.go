package integration_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notenest/internal/cache"
	"github.com/MarcoPoloResearchLab/notenest/internal/database"
	"github.com/MarcoPoloResearchLab/notenest/internal/documents"
	"github.com/MarcoPoloResearchLab/notenest/internal/localstore"
	"github.com/MarcoPoloResearchLab/notenest/internal/notebook"
	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"github.com/MarcoPoloResearchLab/notenest/internal/remote"
	"github.com/MarcoPoloResearchLab/notenest/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/hack-pad/hackpadfs/mem"
	"go.uber.org/zap"
)

const sharedDocumentPath = "/api/jsonBlob/shared"

var fixedTime = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time {
	return fixedTime
}

func newDocumentServer(testContext *testing.T) *httptest.Server {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "documents.db"), zap.NewNop(), documents.Schema())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	testContext.Cleanup(func() { _ = database.Close(db) })

	documentService, err := documents.NewService(documents.ServiceConfig{
		Database:   db,
		IDProvider: documents.NewUUIDProvider(),
		Clock:      fixedClock,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build document service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Documents: documentService,
		Realtime:  server.NewRealtimeDispatcher(),
		Logger:    zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	testContext.Cleanup(testServer.Close)

	seed, err := http.NewRequest(http.MethodPut, testServer.URL+sharedDocumentPath, bytes.NewBufferString(`{"notes":{},"users":[]}`))
	if err != nil {
		testContext.Fatalf("failed to build seed request: %v", err)
	}
	seed.Header.Set("Content-Type", "application/json")
	response, err := testServer.Client().Do(seed)
	if err != nil {
		testContext.Fatalf("failed to seed shared document: %v", err)
	}
	_ = response.Body.Close()
	return testServer
}

// device is one installation with its own local store and cache.
type device struct {
	service *notebook.Service
}

func newDevice(testContext *testing.T, endpoint string) device {
	testContext.Helper()

	fileSystem, err := mem.NewFS()
	if err != nil {
		testContext.Fatalf("failed to create memory fs: %v", err)
	}
	localCache, err := cache.New(fileSystem, "cache")
	if err != nil {
		testContext.Fatalf("failed to create cache: %v", err)
	}
	store, err := localstore.Open(localstore.OpenConfig{
		Path:        filepath.Join(testContext.TempDir(), "notes.db"),
		Fallback:    localCache,
		FallbackKey: cache.NotesKey,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to open local store: %v", err)
	}
	testContext.Cleanup(func() { _ = store.Close() })

	sanitizer := notes.NewSanitizer(notes.DefaultChapterSet(), fixedClock)
	client, err := remote.NewClient(remote.ClientConfig{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Sanitizer:  sanitizer,
		Clock:      fixedClock,
	})
	if err != nil {
		testContext.Fatalf("failed to build remote client: %v", err)
	}

	service, err := notebook.NewService(notebook.ServiceConfig{
		LocalStore: store,
		Cache:      localCache,
		Remote:     client,
		Changes:    client,
		Sanitizer:  sanitizer,
		Clock:      fixedClock,
	})
	if err != nil {
		testContext.Fatalf("failed to build notebook service: %v", err)
	}
	return device{service: service}
}

func TestNotesPropagateBetweenDevices(testContext *testing.T) {
	documentServer := newDocumentServer(testContext)
	endpoint := documentServer.URL + sharedDocumentPath
	ctx := context.Background()
	chapter := notes.DefaultChapters[0]

	first := newDevice(testContext, endpoint)
	second := newDevice(testContext, endpoint)

	result, err := first.service.SavePdf(ctx, chapter, notebook.Upload{Filename: "matter.pdf", Base64: "QUJD", Size: 3})
	if err != nil {
		testContext.Fatalf("save failed: %v", err)
	}
	if !result.CloudSynced {
		testContext.Fatalf("expected cloud sync, got %v", result.Err)
	}

	snapshot, err := second.service.GetPdfMap(ctx)
	if err != nil {
		testContext.Fatalf("get failed: %v", err)
	}
	if snapshot.Degraded {
		testContext.Fatalf("unexpected degraded snapshot: %v", snapshot.SyncErr)
	}
	note, ok := snapshot.Notes[chapter]
	if !ok || note.Base64 != "QUJD" || note.Source != notes.SourceCloud {
		testContext.Fatalf("expected cloud note on second device, got %+v", snapshot.Notes)
	}

	if _, err := second.service.DeletePdf(ctx, chapter); err != nil {
		testContext.Fatalf("delete failed: %v", err)
	}
	afterDelete, err := second.service.GetPdfMap(ctx)
	if err != nil {
		testContext.Fatalf("get after delete failed: %v", err)
	}
	if _, ok := afterDelete.Notes[chapter]; ok {
		testContext.Fatalf("expected chapter removed from the shared document")
	}
}

func TestLoginsAccumulateInSharedDocument(testContext *testing.T) {
	documentServer := newDocumentServer(testContext)
	endpoint := documentServer.URL + sharedDocumentPath
	ctx := context.Background()

	first := newDevice(testContext, endpoint)
	second := newDevice(testContext, endpoint)

	login := notebook.Login{Name: "Ada", Email: "ada@example.com"}
	for _, current := range []device{first, second} {
		result, err := current.service.RegisterUserLogin(ctx, login)
		if err != nil {
			testContext.Fatalf("login failed: %v", err)
		}
		if !result.CloudSynced {
			testContext.Fatalf("expected login to sync: %v", result.Err)
		}
	}

	users, err := first.service.ListUsers(ctx)
	if err != nil {
		testContext.Fatalf("list failed: %v", err)
	}
	if len(users.Users) != 1 || users.Users[0].LoginCount != 2 {
		testContext.Fatalf("expected one user with two logins, got %+v", users.Users)
	}
	if users.Users[0].IP != notes.IPNotAvailable {
		testContext.Fatalf("expected unresolved ip, got %q", users.Users[0].IP)
	}
}

func TestDeviceKeepsWorkingWhenServerIsDown(testContext *testing.T) {
	documentServer := newDocumentServer(testContext)
	endpoint := documentServer.URL + sharedDocumentPath
	ctx := context.Background()
	chapter := notes.DefaultChapters[1]

	offline := newDevice(testContext, endpoint)
	if _, err := offline.service.GetPdfMap(ctx); err != nil {
		testContext.Fatalf("initial get failed: %v", err)
	}
	documentServer.Close()

	result, err := offline.service.SavePdf(ctx, chapter, notebook.Upload{Base64: "REVG"})
	if err != nil {
		testContext.Fatalf("save failed while offline: %v", err)
	}
	if result.CloudSynced || !errors.Is(result.Err, remote.ErrLoad) {
		testContext.Fatalf("expected load failure to be reported, got %+v", result)
	}

	snapshot, err := offline.service.GetPdfMap(ctx)
	if err != nil {
		testContext.Fatalf("get failed while offline: %v", err)
	}
	if !snapshot.Degraded {
		testContext.Fatalf("expected degraded snapshot while offline")
	}
	note, ok := snapshot.Notes[chapter]
	if !ok || note.Source != notes.SourceLocal || note.Filename != chapter+".pdf" {
		testContext.Fatalf("expected local note to survive, got %+v", snapshot.Notes)
	}
}

func TestWatchingDeviceReceivesChanges(testContext *testing.T) {
	documentServer := newDocumentServer(testContext)
	endpoint := documentServer.URL + sharedDocumentPath
	chapter := notes.DefaultChapters[2]

	writer := newDevice(testContext, endpoint)
	watcher := newDevice(testContext, endpoint)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	refreshed := make(chan notebook.Snapshot, 16)
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- watcher.service.Watch(ctx, func(_ remote.ChangeEvent, snapshot notebook.Snapshot) {
			select {
			case refreshed <- snapshot:
			case <-ctx.Done():
			}
		})
	}()

	// Writes repeat until the watcher has subscribed and seen one of them.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, err := writer.service.SavePdf(ctx, chapter, notebook.Upload{Base64: "R0hJ"}); err != nil {
			testContext.Fatalf("save failed: %v", err)
		}
		select {
		case snapshot := <-refreshed:
			if snapshot.Notes[chapter].Base64 != "R0hJ" {
				testContext.Fatalf("expected refreshed snapshot to carry the saved note, got %+v", snapshot.Notes)
			}
			cancel()
			if err := <-watchDone; err != nil {
				testContext.Fatalf("expected watch to stop cleanly, got %v", err)
			}
			return
		case err := <-watchDone:
			testContext.Fatalf("watch ended early: %v", err)
		case <-ctx.Done():
			testContext.Fatal("timed out waiting for change notification")
		case <-ticker.C:
		}
	}
}
