package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rapidride/internal/domain"
	"rapidride/internal/middleware"
	"rapidride/internal/service"
)

// SupportHandler handles support chat HTTP requests.
type SupportHandler struct {
	supportService *service.SupportService
}

// NewSupportHandler creates a new SupportHandler.
func NewSupportHandler(supportService *service.SupportService) *SupportHandler {
	return &SupportHandler{supportService: supportService}
}

// ChatMessage is a message as returned to clients.
type ChatMessage struct {
	MessageID  string    `json:"messageId"`
	SenderID   string    `json:"senderId"`
	SenderType string    `json:"senderType"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
}

func newChatMessage(m domain.SupportMessage) ChatMessage {
	return ChatMessage{
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		SenderType: m.SenderType,
		Text:       m.Text,
		Timestamp:  m.SentAt,
		Read:       m.Read,
	}
}

// ChatDetail is a chat with its full transcript.
type ChatDetail struct {
	ChatID       string        `json:"chatId"`
	TicketNumber string        `json:"ticketNumber"`
	UserID       string        `json:"userId"`
	UserType     string        `json:"userType"`
	UserName     string        `json:"userName"`
	Status       string        `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Messages     []ChatMessage `json:"messages"`
}

func newChatDetail(c *domain.SupportChat) ChatDetail {
	messages := make([]ChatMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		messages = append(messages, newChatMessage(m))
	}
	return ChatDetail{
		ChatID:       c.ID,
		TicketNumber: c.TicketNumber,
		UserID:       c.AccountID,
		UserType:     c.UserType,
		UserName:     c.UserName,
		Status:       string(c.Status),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Messages:     messages,
	}
}

// ChatSummary is one row of a chat listing. Owner listings carry UnreadCount,
// staff listings carry the owner and MessageCount.
type ChatSummary struct {
	ChatID       string    `json:"chatId"`
	TicketNumber string    `json:"ticketNumber"`
	UserID       string    `json:"userId,omitempty"`
	UserName     string    `json:"userName,omitempty"`
	UserType     string    `json:"userType,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	LastMessage  string    `json:"lastMessage"`
	UnreadCount  *int      `json:"unreadCount,omitempty"`
	MessageCount *int      `json:"messageCount,omitempty"`
}

func newOwnerSummaries(chats []*domain.SupportChat) []ChatSummary {
	out := make([]ChatSummary, 0, len(chats))
	for _, c := range chats {
		unread := c.UnreadFromSupport()
		out = append(out, ChatSummary{
			ChatID:       c.ID,
			TicketNumber: c.TicketNumber,
			Status:       string(c.Status),
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
			LastMessage:  c.LastText(),
			UnreadCount:  &unread,
		})
	}
	return out
}

func newStaffSummaries(chats []*domain.SupportChat) []ChatSummary {
	out := make([]ChatSummary, 0, len(chats))
	for _, c := range chats {
		count := len(c.Messages)
		out = append(out, ChatSummary{
			ChatID:       c.ID,
			TicketNumber: c.TicketNumber,
			UserID:       c.AccountID,
			UserName:     c.UserName,
			UserType:     c.UserType,
			Status:       string(c.Status),
			CreatedAt:    c.CreatedAt,
			UpdatedAt:    c.UpdatedAt,
			LastMessage:  c.LastText(),
			MessageCount: &count,
		})
	}
	return out
}

// OpenChatRequest is the HTTP request body for opening a support chat.
type OpenChatRequest struct {
	Message  string `json:"message"`
	UserType string `json:"userType" binding:"omitempty,oneof=rider captain driver"`
}

// OpenChat handles POST /api/support/chats/create
func (h *SupportHandler) OpenChat(c *gin.Context) {
	var req OpenChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	chat, err := h.supportService.OpenChat(c.Request.Context(), middleware.CurrentAccount(c), req.Message, req.UserType)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "chat": gin.H{
		"chatId":       chat.ID,
		"ticketNumber": chat.TicketNumber,
		"status":       chat.Status,
		"createdAt":    chat.CreatedAt,
	}})
}

// MyChats handles GET /api/support/chats
func (h *SupportHandler) MyChats(c *gin.Context) {
	chats, err := h.supportService.MyChats(c.Request.Context(), middleware.CurrentAccount(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "chats": newOwnerSummaries(chats)})
}

// Chat handles GET /api/support/chats/:chatId
func (h *SupportHandler) Chat(c *gin.Context) {
	chat, err := h.supportService.Chat(c.Request.Context(), middleware.CurrentAccount(c), c.Param("chatId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "chat": newChatDetail(chat)})
}

// SendMessageRequest is the HTTP request body for a chat message.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// Send handles POST /api/support/chats/:chatId/messages
func (h *SupportHandler) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	msg, err := h.supportService.Send(c.Request.Context(), middleware.CurrentAccount(c), c.Param("chatId"), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "message": newChatMessage(*msg)})
}

// End handles POST /api/support/chats/:chatId/end
func (h *SupportHandler) End(c *gin.Context) {
	if err := h.supportService.EndChat(c.Request.Context(), middleware.CurrentAccount(c), c.Param("chatId")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "message": "Chat ended successfully"})
}

// AdminChats handles GET /api/support/admin/chats
func (h *SupportHandler) AdminChats(c *gin.Context) {
	status := domain.ChatStatus(c.Query("status"))
	chats, err := h.supportService.AllChats(c.Request.Context(), status, c.Query("userType"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "chats": newStaffSummaries(chats)})
}
