package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Nomu-MDS/Nomu-Back/internal/application/services"
	"github.com/Nomu-MDS/Nomu-Back/internal/auth"
	"github.com/Nomu-MDS/Nomu-Back/internal/domain"
	"github.com/Nomu-MDS/Nomu-Back/internal/observability"
	apperrors "github.com/Nomu-MDS/Nomu-Back/pkg/errors"
)

// ConversationHandler exposes the REST surface around the realtime core.
// Every route runs behind auth.Middleware and enforces the same
// AssertParticipant rule as the websocket path.
type ConversationHandler struct {
	conversations services.ConversationService
	chat          services.ChatService
}

func NewConversationHandler(convSvc services.ConversationService, chatSvc services.ChatService) *ConversationHandler {
	return &ConversationHandler{conversations: convSvc, chat: chatSvc}
}

// Register mounts the conversation routes on mux, wrapped in middleware.
func (h *ConversationHandler) Register(mux *http.ServeMux, middleware func(http.Handler) http.Handler) {
	mux.Handle("GET /conversations", middleware(http.HandlerFunc(h.List)))
	mux.Handle("POST /conversations", middleware(http.HandlerFunc(h.Create)))
	mux.Handle("GET /conversations/{id}", middleware(http.HandlerFunc(h.Get)))
	mux.Handle("GET /conversations/{id}/messages", middleware(http.HandlerFunc(h.Messages)))
	mux.Handle("PATCH /conversations/{id}/messages/{messageID}/read", middleware(http.HandlerFunc(h.MarkRead)))
}

type userDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type conversationDTO struct {
	ID             uuid.UUID `json:"id"`
	ParticipantA   userDTO   `json:"participant_a"`
	ParticipantB   userDTO   `json:"participant_b"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type messageDTO struct {
	ID             int64     `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	Content        string    `json:"content"`
	Attachment     *string   `json:"attachment"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

func toConversationDTO(c *domain.Conversation) conversationDTO {
	return conversationDTO{
		ID:             c.ID,
		ParticipantA:   userDTO{ID: c.ParticipantA.ID, Name: c.ParticipantA.Name},
		ParticipantB:   userDTO{ID: c.ParticipantB.ID, Name: c.ParticipantB.Name},
		LastActivityAt: c.LastActivityAt,
		CreatedAt:      c.CreatedAt,
	}
}

func toMessageDTO(m *domain.Message) messageDTO {
	dto := messageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.Sender.Name,
		Content:        m.Content,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	}
	if m.Attachment.Valid {
		dto.Attachment = &m.Attachment.String
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.CodeOf(err) == apperrors.CodeUnknown || apperrors.CodeOf(err) == apperrors.CodeInternal {
		observability.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, apperrors.HTTPStatus(err), map[string]string{"error": apperrors.MessageOf(err)})
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	previews, err := h.conversations.ListForUser(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type previewDTO struct {
		Conversation conversationDTO `json:"conversation"`
		LastMessage  *messageDTO     `json:"last_message,omitempty"`
	}
	out := make([]previewDTO, 0, len(previews))
	for i := range previews {
		dto := previewDTO{Conversation: toConversationDTO(&previews[i].Conversation)}
		if previews[i].LastMessage != nil {
			m := toMessageDTO(previews[i].LastMessage)
			dto.LastMessage = &m
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

type createConversationRequest struct {
	OtherUserID uuid.UUID `json:"other_user_id"`
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OtherUserID == uuid.Nil {
		writeError(w, r, apperrors.InvalidArg("other_user_id is required"))
		return
	}

	conv, existed, err := h.conversations.FindOrCreate(r.Context(), identity.UserID, req.OtherUserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"conversation": toConversationDTO(conv), "existed": existed})
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, apperrors.InvalidArg("invalid conversation id"))
		return
	}

	conv, err := h.conversations.Get(r.Context(), conversationID, identity.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": toConversationDTO(conv)})
}

// Messages serves the paginated history clients use to reconcile after a
// reconnect; broadcasts missed while disconnected are never replayed.
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, apperrors.InvalidArg("invalid conversation id"))
		return
	}

	if _, err := h.conversations.AssertParticipant(r.Context(), conversationID, identity.UserID); err != nil {
		writeError(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	messages, err := h.chat.Page(r.Context(), conversationID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]messageDTO, 0, len(messages))
	for i := range messages {
		out = append(out, toMessageDTO(&messages[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	conversationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, apperrors.InvalidArg("invalid conversation id"))
		return
	}
	messageID, err := strconv.ParseInt(r.PathValue("messageID"), 10, 64)
	if err != nil {
		writeError(w, r, apperrors.InvalidArg("invalid message id"))
		return
	}

	if _, err := h.conversations.AssertParticipant(r.Context(), conversationID, identity.UserID); err != nil {
		writeError(w, r, err)
		return
	}

	message, err := h.chat.GetMessage(r.Context(), messageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if message.ConversationID != conversationID {
		writeError(w, r, apperrors.NotFound("message not found in this conversation"))
		return
	}

	message, err = h.chat.MarkRead(r.Context(), messageID, identity.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": toMessageDTO(message)})
}
