package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/mock/gomock"

	"kortex/internal/service"
	"kortex/internal/service/mocks"
)

func TestConversationHandler_Create(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		body       string
		mockSetup  func(*mocks.MockConversationService)
		wantStatus int
		wantTitle  string
	}{
		{
			name: "with title",
			body: `{"title":"Budget"}`,
			mockSetup: func(m *mocks.MockConversationService) {
				m.EXPECT().
					CreateConversation(gomock.Any(), "Budget").
					Return(&service.Conversation{ID: "c1", Title: "Budget", CreatedAt: created}, nil)
			},
			wantStatus: http.StatusCreated,
			wantTitle:  "Budget",
		},
		{
			name: "empty body",
			body: "",
			mockSetup: func(m *mocks.MockConversationService) {
				m.EXPECT().
					CreateConversation(gomock.Any(), "").
					Return(&service.Conversation{ID: "c2", Title: "New Chat", CreatedAt: created}, nil)
			},
			wantStatus: http.StatusCreated,
			wantTitle:  "New Chat",
		},
		{
			name:       "invalid JSON",
			body:       "{",
			mockSetup:  func(m *mocks.MockConversationService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "storage failure",
			body: `{}`,
			mockSetup: func(m *mocks.MockConversationService) {
				m.EXPECT().
					CreateConversation(gomock.Any(), "").
					Return(nil, fmt.Errorf("%w: disk full", service.ErrStorage))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc := mocks.NewMockConversationService(ctrl)
			tt.mockSetup(svc)

			h := NewConversationHandler(svc)
			req := httptest.NewRequest(http.MethodPost, "/api/conversations", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Create(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Create() status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				var resp ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || resp.Error == "" {
					t.Errorf("expected error body, got %q", w.Body.String())
				}
				return
			}

			var resp ConversationResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Title != tt.wantTitle || !resp.CreatedAt.Equal(created) {
				t.Errorf("Create() response = %+v", resp)
			}
		})
	}
}

func TestConversationHandler_List(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockConversationService(ctrl)
	svc.EXPECT().ListConversations(gomock.Any()).Return([]service.Conversation{
		{ID: "b", Title: "second"},
		{ID: "a", Title: "first", DocumentHash: "abc"},
	}, nil)

	w := httptest.NewRecorder()
	NewConversationHandler(svc).List(w, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("List() status = %d, want 200", w.Code)
	}
	var resp []ConversationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 || resp[0].ID != "b" || resp[1].DocumentHash != "abc" {
		t.Errorf("List() = %+v", resp)
	}
}

func TestConversationHandler_List_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockConversationService(ctrl)
	svc.EXPECT().ListConversations(gomock.Any()).Return(nil, nil)

	w := httptest.NewRecorder()
	NewConversationHandler(svc).List(w, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("List() body = %s, want []", got)
	}
}

func TestConversationHandler_Get(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		mockSetup  func(*mocks.MockConversationService)
		wantStatus int
	}{
		{
			name: "found",
			id:   "c1",
			mockSetup: func(m *mocks.MockConversationService) {
				m.EXPECT().GetConversation(gomock.Any(), "c1").Return(&service.ConversationView{
					Conversation:  service.Conversation{ID: "c1", Title: "report.pdf", DocumentHash: "abc"},
					HasCurriculum: true,
					History: []service.HistoryItem{
						{Channel: "assisted", Role: "user", Text: "Teach me"},
						{Channel: "assisted", Role: "model", Text: "Welcome"},
					},
				}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "not found",
			id:   "missing",
			mockSetup: func(m *mocks.MockConversationService) {
				m.EXPECT().GetConversation(gomock.Any(), "missing").
					Return(nil, fmt.Errorf("%w: conversation missing", service.ErrNotFound))
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc := mocks.NewMockConversationService(ctrl)
			tt.mockSetup(svc)

			r := chi.NewRouter()
			r.Get("/api/conversations/{id}", NewConversationHandler(svc).Get)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/conversations/"+tt.id, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("Get() status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp ConversationDetailResponse
			if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.ID != "c1" || !resp.HasCurriculum || len(resp.History) != 2 || resp.History[1].Role != "model" {
				t.Errorf("Get() = %+v", resp)
			}
			if !strings.Contains(w.Body.String(), `"document_hash":"abc"`) {
				t.Errorf("embedded summary fields should be flattened: %s", w.Body.String())
			}
		})
	}
}
