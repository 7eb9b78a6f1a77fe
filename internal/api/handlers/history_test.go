package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ssabihuddin/modelgate/internal/domain/history"
)

type fakeTranscript struct {
	turns    []history.Turn
	clearErr error
	cleared  bool
}

func (f *fakeTranscript) Turns() []history.Turn { return f.turns }

func (f *fakeTranscript) ClearHistory(ctx context.Context) error {
	f.cleared = true
	return f.clearErr
}

func TestHistoryList(t *testing.T) {
	t.Parallel()

	f := &fakeTranscript{turns: []history.Turn{
		{Role: history.RoleUser, Content: "hello"},
		{Role: history.RoleSystem, Content: "hi"},
	}}

	rec := httptest.NewRecorder()
	NewHistoryHandler(f).List(rec, httptest.NewRequest(http.MethodGet, "/history/list", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	var turns []history.Turn
	if err := json.Unmarshal(rec.Body.Bytes(), &turns); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(turns) != 2 || turns[0].Content != "hello" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestHistoryList_Empty_ReturnsArrayNotNull(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewHistoryHandler(&fakeTranscript{}).List(rec, httptest.NewRequest(http.MethodGet, "/history/list", nil))

	if got := rec.Body.String(); got != "[]\n" {
		t.Errorf("body = %q; want empty JSON array", got)
	}
}

func TestHistoryClear(t *testing.T) {
	t.Parallel()

	f := &fakeTranscript{}
	rec := httptest.NewRecorder()
	NewHistoryHandler(f).Clear(rec, httptest.NewRequest(http.MethodGet, "/history/clear", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d; want 200", rec.Code)
	}
	if !f.cleared {
		t.Error("ClearHistory was not called")
	}
	if rec.Body.String() != "true\n" {
		t.Errorf("body = %q; want JSON true", rec.Body.String())
	}
}

func TestHistoryClear_StorageFailure(t *testing.T) {
	t.Parallel()

	f := &fakeTranscript{clearErr: errors.New("disk full")}
	rec := httptest.NewRecorder()
	NewHistoryHandler(f).Clear(rec, httptest.NewRequest(http.MethodGet, "/history/clear", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d; want 500", rec.Code)
	}
}
