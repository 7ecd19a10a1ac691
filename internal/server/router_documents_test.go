package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notenest/internal/database"
	"github.com/MarcoPoloResearchLab/notenest/internal/documents"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (documents.DocumentID, error) {
	p.next++
	return documents.DocumentID(fmt.Sprintf("doc-%d", p.next)), nil
}

func newTestHandler(testContext *testing.T) (http.Handler, *RealtimeDispatcher) {
	testContext.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "documents.db"), zap.NewNop(), documents.Schema())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	testContext.Cleanup(func() { _ = database.Close(db) })

	service, err := documents.NewService(documents.ServiceConfig{
		Database:   db,
		IDProvider: &sequenceIDProvider{},
		Clock: func() time.Time {
			return time.Unix(1700000000, 0)
		},
	})
	if err != nil {
		testContext.Fatalf("failed to build document service: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Documents: service,
		Realtime:  dispatcher,
		Logger:    zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to construct handler: %v", err)
	}
	return handler, dispatcher
}

func serve(handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestNewHTTPHandlerRequiresDependencies(testContext *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{Realtime: NewRealtimeDispatcher()}); err == nil {
		testContext.Fatalf("expected missing document service to fail")
	}
	if _, err := NewHTTPHandler(Dependencies{Documents: &documents.Service{}}); err == nil {
		testContext.Fatalf("expected missing dispatcher to fail")
	}
}

func TestCreateDocumentReturnsLocation(testContext *testing.T) {
	handler, _ := newTestHandler(testContext)

	recorder := serve(handler, http.MethodPost, "/api/jsonBlob", `{"notes":{}}`)
	if recorder.Code != http.StatusCreated {
		testContext.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if location := recorder.Header().Get("Location"); location != "/api/jsonBlob/doc-1" {
		testContext.Fatalf("unexpected location %q", location)
	}
	if recorder.Body.String() != `{"notes":{}}` {
		testContext.Fatalf("unexpected body %s", recorder.Body.String())
	}
}

func TestPutThenGetRoundTrips(testContext *testing.T) {
	handler, _ := newTestHandler(testContext)
	document := `{"notes":{"Motion":{"base64":"QUJD"}},"users":[],"updatedAt":"2024-03-01T10:00:00.000Z"}`

	created := serve(handler, http.MethodPut, "/api/jsonBlob/shared", document)
	if created.Code != http.StatusCreated {
		testContext.Fatalf("expected first PUT to create, got %d", created.Code)
	}
	replaced := serve(handler, http.MethodPut, "/api/jsonBlob/shared", document)
	if replaced.Code != http.StatusOK {
		testContext.Fatalf("expected second PUT to replace, got %d", replaced.Code)
	}
	if replaced.Header().Get(headerDocumentRevision) != "2" {
		testContext.Fatalf("expected revision 2, got %q", replaced.Header().Get(headerDocumentRevision))
	}

	fetched := serve(handler, http.MethodGet, "/api/jsonBlob/shared", "")
	if fetched.Code != http.StatusOK {
		testContext.Fatalf("expected 200, got %d", fetched.Code)
	}
	if fetched.Body.String() != document {
		testContext.Fatalf("unexpected body %s", fetched.Body.String())
	}
	if !strings.HasPrefix(fetched.Header().Get("Content-Type"), "application/json") {
		testContext.Fatalf("unexpected content type %q", fetched.Header().Get("Content-Type"))
	}
}

func TestDocumentErrors(testContext *testing.T) {
	handler, _ := newTestHandler(testContext)

	testCases := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "invalid-json", method: http.MethodPut, target: "/api/jsonBlob/shared", body: `{"notes":`, wantStatus: http.StatusBadRequest, wantBody: `{"error":"invalid_json"}`},
		{name: "empty-body", method: http.MethodPost, target: "/api/jsonBlob", body: "", wantStatus: http.StatusBadRequest, wantBody: `{"error":"invalid_json"}`},
		{name: "unknown-get", method: http.MethodGet, target: "/api/jsonBlob/missing", wantStatus: http.StatusNotFound, wantBody: `{"code":"documents.get.not_found","error":"not_found"}`},
		{name: "unknown-delete", method: http.MethodDelete, target: "/api/jsonBlob/missing", wantStatus: http.StatusNotFound, wantBody: `{"code":"documents.delete.not_found","error":"not_found"}`},
	}

	for _, testCase := range testCases {
		testContext.Run(testCase.name, func(testContext *testing.T) {
			recorder := serve(handler, testCase.method, testCase.target, testCase.body)
			if recorder.Code != testCase.wantStatus {
				testContext.Fatalf("expected status %d, got %d", testCase.wantStatus, recorder.Code)
			}
			if recorder.Body.String() != testCase.wantBody {
				testContext.Fatalf("unexpected body %s", recorder.Body.String())
			}
		})
	}
}

func TestDeleteDocument(testContext *testing.T) {
	handler, _ := newTestHandler(testContext)
	serve(handler, http.MethodPut, "/api/jsonBlob/shared", `{"notes":{}}`)

	deleted := serve(handler, http.MethodDelete, "/api/jsonBlob/shared", "")
	if deleted.Code != http.StatusNoContent {
		testContext.Fatalf("expected 204, got %d", deleted.Code)
	}
	if fetched := serve(handler, http.MethodGet, "/api/jsonBlob/shared", ""); fetched.Code != http.StatusNotFound {
		testContext.Fatalf("expected 404 after delete, got %d", fetched.Code)
	}
}

func TestReplacePublishesChange(testContext *testing.T) {
	handler, dispatcher := newTestHandler(testContext)
	subscribeContext, cancelSubscribe := context.WithCancel(context.Background())
	testContext.Cleanup(cancelSubscribe)
	stream, cleanup := dispatcher.Subscribe(subscribeContext, "shared")
	defer cleanup()

	serve(handler, http.MethodPut, "/api/jsonBlob/shared", `{"notes":{}}`)

	select {
	case message := <-stream:
		if message.EventType != RealtimeEventDocumentChanged || message.Revision != 1 || message.Deleted {
			testContext.Fatalf("unexpected message %+v", message)
		}
	case <-time.After(500 * time.Millisecond):
		testContext.Fatal("expected change message after PUT")
	}

	serve(handler, http.MethodDelete, "/api/jsonBlob/shared", "")
	select {
	case message := <-stream:
		if !message.Deleted {
			testContext.Fatalf("expected deletion message, got %+v", message)
		}
	case <-time.After(500 * time.Millisecond):
		testContext.Fatal("expected change message after DELETE")
	}
}

func TestServiceErrorPayloadIncludesCode(testContext *testing.T) {
	handler, _ := newTestHandler(testContext)
	recorder := serve(handler, http.MethodGet, "/api/jsonBlob/missing", "")

	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		testContext.Fatalf("invalid error payload: %v", err)
	}
	if payload["code"] == "" {
		testContext.Fatalf("expected service error code in %v", payload)
	}
}
