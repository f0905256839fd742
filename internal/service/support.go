package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// firstTicket is the sequence number of the first ticket a process issues.
const firstTicket = 1000

// SupportService handles support chats between accounts and staff.
type SupportService struct {
	chats   repository.SupportRepository
	logger  *slog.Logger
	now     func() time.Time
	tickets atomic.Int64
}

// NewSupportService creates a new SupportService.
func NewSupportService(chats repository.SupportRepository, logger *slog.Logger) *SupportService {
	s := &SupportService{chats: chats, logger: logger, now: time.Now}
	s.tickets.Store(firstTicket)
	return s
}

// OpenChat starts a chat whose first message is text. userType defaults to
// the caller's role.
func (s *SupportService) OpenChat(ctx context.Context, account *domain.Account, text, userType string) (*domain.SupportChat, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if userType == "" {
		userType = defaultUserType(account)
	}
	name := account.Name
	if name == "" {
		name = "User"
	}

	now := s.now()
	chat := &domain.SupportChat{
		ID:           uuid.New().String(),
		TicketNumber: domain.TicketNumber(s.tickets.Add(1) - 1),
		AccountID:    account.ID,
		UserType:     userType,
		UserName:     name,
		Status:       domain.ChatStatusActive,
		CreatedAt:    now,
	}
	chat.Append(account.ID, userType, text, now)

	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, err
	}
	s.logger.Info("support chat opened", "chat_id", chat.ID, "ticket", chat.TicketNumber, "account_id", account.ID)
	return chat, nil
}

// MyChats lists the caller's chats, most recently updated first.
func (s *SupportService) MyChats(ctx context.Context, account *domain.Account) ([]*domain.SupportChat, error) {
	return s.chats.List(ctx, repository.SupportFilter{AccountID: account.ID})
}

// Chat returns a chat to its owner or to staff. Staff messages are marked
// read when the owner opens the chat.
func (s *SupportService) Chat(ctx context.Context, account *domain.Account, chatID string) (*domain.SupportChat, error) {
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return nil, chatError(err)
	}
	if err := checkChatAccess(account, chat); err != nil {
		return nil, err
	}
	if chat.AccountID != account.ID || chat.UnreadFromSupport() == 0 {
		return chat, nil
	}

	chat, err = s.chats.Update(ctx, chatID, func(c *domain.SupportChat) error {
		c.MarkSupportRead()
		return nil
	})
	return chat, chatError(err)
}

// Send appends a message from the owner or from staff.
func (s *SupportService) Send(ctx context.Context, account *domain.Account, chatID, text string) (*domain.SupportMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	var sent domain.SupportMessage
	_, err := s.chats.Update(ctx, chatID, func(c *domain.SupportChat) error {
		if c.Status == domain.ChatStatusEnded {
			return ErrChatEnded
		}
		if err := checkChatAccess(account, c); err != nil {
			return err
		}
		senderType := c.UserType
		if account.Role == domain.RoleAdmin {
			senderType = domain.SenderSupport
		}
		sent = c.Append(account.ID, senderType, text, s.now())
		return nil
	})
	if err != nil {
		return nil, chatError(err)
	}
	return &sent, nil
}

// EndChat closes a chat. Ending an ended chat is a no-op.
func (s *SupportService) EndChat(ctx context.Context, account *domain.Account, chatID string) error {
	_, err := s.chats.Update(ctx, chatID, func(c *domain.SupportChat) error {
		if err := checkChatAccess(account, c); err != nil {
			return err
		}
		if c.Status != domain.ChatStatusEnded {
			c.Status = domain.ChatStatusEnded
			c.UpdatedAt = s.now()
		}
		return nil
	})
	if err != nil {
		return chatError(err)
	}
	s.logger.Info("support chat ended", "chat_id", chatID, "account_id", account.ID)
	return nil
}

// AllChats lists every retained chat for staff, optionally filtered.
func (s *SupportService) AllChats(ctx context.Context, status domain.ChatStatus, userType string) ([]*domain.SupportChat, error) {
	return s.chats.List(ctx, repository.SupportFilter{Status: status, UserType: userType})
}

func checkChatAccess(account *domain.Account, chat *domain.SupportChat) error {
	if chat.AccountID != account.ID && account.Role != domain.RoleAdmin {
		return ErrNotChatParticipant
	}
	return nil
}

func defaultUserType(account *domain.Account) string {
	if account.Role == "" {
		return string(domain.RoleRider)
	}
	return string(account.Role)
}

func chatError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrChatNotFound
	}
	return err
}
