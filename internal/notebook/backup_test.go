package notebook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/notenest/internal/notes"
	"github.com/MarcoPoloResearchLab/notenest/internal/remote"
)

func TestExportBackupWritesMergedNotesAndCachedUsers(testContext *testing.T) {
	h := newHarness(testContext)
	ctx := context.Background()

	if _, err := h.service.SavePdf(ctx, "Gravitation", sampleUpload("Zw==")); err != nil {
		testContext.Fatalf("unexpected save error: %v", err)
	}
	if _, err := h.service.RegisterUserLogin(ctx, Login{Name: "Ada", Email: "ada@example.com"}); err != nil {
		testContext.Fatalf("unexpected login error: %v", err)
	}

	var buffer bytes.Buffer
	if err := h.service.ExportBackup(ctx, &buffer); err != nil {
		testContext.Fatalf("unexpected export error: %v", err)
	}

	var exported map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &exported); err != nil {
		testContext.Fatalf("export is not JSON: %v", err)
	}
	if exported["app"] != "NoteNest" || exported["exportedAt"] != fixedTimestamp {
		testContext.Fatalf("unexpected envelope %v", exported)
	}
	if _, present := exported["backupAt"]; present {
		testContext.Fatalf("export must not carry backupAt")
	}
	if _, ok := exported["notes"].(map[string]any)["Gravitation"]; !ok {
		testContext.Fatalf("expected exported note, got %v", exported["notes"])
	}
	if users, ok := exported["users"].([]any); !ok || len(users) != 1 {
		testContext.Fatalf("expected one exported user, got %v", exported["users"])
	}
}

func TestImportBackupRestoresLocallyEvenWhenRemoteFails(testContext *testing.T) {
	h := newHarness(testContext)
	ctx := context.Background()
	h.remote.readFail = true

	payload := `{"app":"NoteNest","notes":{"Sound":{"base64":"c291bmQ=","filename":"sound.pdf"},"Unknown Chapter":{"base64":"x"}},"users":[{"name":"Grace","loginCount":"2"}]}`
	result, err := h.service.ImportBackup(ctx, strings.NewReader(payload))
	if err != nil {
		testContext.Fatalf("unexpected import error: %v", err)
	}
	if result.CloudSynced || !errors.Is(result.Err, remote.ErrLoad) {
		testContext.Fatalf("expected unsynced import, got %+v", result)
	}

	stored, err := h.store.GetAll(ctx)
	if err != nil {
		testContext.Fatalf("unexpected store error: %v", err)
	}
	if len(stored) != 1 || stored["Sound"].Filename != "sound.pdf" {
		testContext.Fatalf("expected imported note in local store, got %+v", stored)
	}
	cachedUsers, _ := h.cache.Users()
	if len(cachedUsers) != 1 || cachedUsers[0].Name != "Grace" || cachedUsers[0].LoginCount != 2 {
		testContext.Fatalf("expected imported users cached, got %+v", cachedUsers)
	}
}

func TestImportBackupMergesIntoRemote(testContext *testing.T) {
	h := newHarness(testContext)
	ctx := context.Background()
	h.remote.state.Notes["Tissues"] = notes.Note{Filename: "t.pdf", Base64: "remote", UploadedAt: fixedTimestamp, Source: notes.SourceCloud}
	h.remote.state.Notes["Sound"] = notes.Note{Filename: "old.pdf", Base64: "old", UploadedAt: fixedTimestamp, Source: notes.SourceCloud}
	h.remote.state.Users = []notes.UserLogin{{Name: "Ada", LoginCount: 1, IP: notes.IPNotAvailable, LastLoginAt: fixedTimestamp}}

	result, err := h.service.ImportBackup(ctx, strings.NewReader(`{"chapters":{"Sound":{"base64":"new"}}}`))
	if err != nil {
		testContext.Fatalf("legacy chapters section must be accepted: %v", err)
	}
	if !result.CloudSynced {
		testContext.Fatalf("expected synced import, got %+v", result)
	}

	state := h.remote.snapshot()
	if state.Notes["Sound"].Base64 != "new" || state.Notes["Tissues"].Base64 != "remote" {
		testContext.Fatalf("expected imported notes merged over remote, got %+v", state.Notes)
	}
	if len(state.Users) != 1 || state.Users[0].Name != "Ada" {
		testContext.Fatalf("remote users must be kept when the import has none, got %+v", state.Users)
	}
}

func TestImportBackupRejectsInvalidFiles(testContext *testing.T) {
	testCases := map[string]string{
		"malformed-json": `{"notes":`,
		"no-notes":       `{"app":"NoteNest","users":[]}`,
		"unrecognized":   `{"chapterz":{"Motion":{"base64":"x"}}}`,
		"not-an-object":  `["Motion"]`,
		"null-notes":     `{"notes":null}`,
		"empty-document": ``,
	}

	for name, payload := range testCases {
		testContext.Run(name, func(testContext *testing.T) {
			h := newHarness(testContext)
			_, err := h.service.ImportBackup(context.Background(), strings.NewReader(payload))
			if !errors.Is(err, ErrFormat) {
				testContext.Fatalf("expected ErrFormat, got %v", err)
			}
			if h.remote.reads != 0 {
				testContext.Fatalf("rejected import must not touch the remote")
			}
		})
	}
}

func TestCreateAndRestoreCloudBackup(testContext *testing.T) {
	h := newHarness(testContext)
	ctx := context.Background()

	if _, err := h.service.SavePdf(ctx, "Work and Energy", sampleUpload("d29yaw==")); err != nil {
		testContext.Fatalf("unexpected save error: %v", err)
	}
	if err := h.service.CreateCloudBackup(ctx); err != nil {
		testContext.Fatalf("unexpected backup error: %v", err)
	}
	if h.backup.stored == nil || h.backup.stored.BackupAt != fixedTimestamp || h.backup.stored.App != remote.BackupApp {
		testContext.Fatalf("unexpected stored backup %+v", h.backup.stored)
	}

	encoded, err := json.Marshal(h.backup.stored)
	if err != nil {
		testContext.Fatalf("failed to encode backup: %v", err)
	}
	var raw any
	if err := json.Unmarshal(encoded, &raw); err != nil {
		testContext.Fatalf("failed to decode backup: %v", err)
	}

	restoreTarget := newHarness(testContext)
	restoreTarget.backup.raw = raw
	result, err := restoreTarget.service.RestoreCloudBackup(ctx)
	if err != nil {
		testContext.Fatalf("unexpected restore error: %v", err)
	}
	if !result.CloudSynced {
		testContext.Fatalf("expected synced restore, got %+v", result)
	}
	stored, _ := restoreTarget.store.GetAll(ctx)
	if stored["Work and Energy"].Base64 != "d29yaw==" {
		testContext.Fatalf("expected restored note locally, got %+v", stored)
	}
	if restoreTarget.remote.snapshot().Notes["Work and Energy"].Base64 != "d29yaw==" {
		testContext.Fatalf("expected restored note merged remotely")
	}
}

func TestCloudBackupFailures(testContext *testing.T) {
	h := newHarness(testContext)
	ctx := context.Background()
	h.backup.failure = &remote.Error{Op: remote.OpBackupSave, StatusCode: 502}

	if err := h.service.CreateCloudBackup(ctx); !errors.Is(err, remote.ErrBackupSave) {
		testContext.Fatalf("expected backup save error, got %v", err)
	}

	h.backup.failure = &remote.Error{Op: remote.OpBackupLoad, StatusCode: 404}
	if _, err := h.service.RestoreCloudBackup(ctx); !errors.Is(err, remote.ErrBackupLoad) {
		testContext.Fatalf("expected backup load error, got %v", err)
	}

	h.service.backup = nil
	if err := h.service.CreateCloudBackup(ctx); !errors.Is(err, ErrBackupNotConfigured) {
		testContext.Fatalf("expected ErrBackupNotConfigured, got %v", err)
	}
}
