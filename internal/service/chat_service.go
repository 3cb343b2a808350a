package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/unveil/internal/gate"
	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/internal/repository"
	"github.com/d60-Lab/unveil/internal/reveal"
	"github.com/d60-Lab/unveil/pkg/apperr"
	"github.com/d60-Lab/unveil/pkg/logger"
)

// EventNewMessage is the realtime event type for appended messages.
const EventNewMessage = "new_message"

// Publisher 实时推送边界（按会话房间广播）
type Publisher interface {
	Broadcast(conversationID, eventType string, payload any)
}

// ChatService 会话消息服务：写路径经过 gate 串行化，读路径直接查询
type ChatService interface {
	SendText(ctx context.Context, conversationID, senderID, content string) (*SendResult, error)
	SendVoice(ctx context.Context, conversationID, senderID, audioURL string, audioDuration int) (*model.Message, error)
	GetMessages(ctx context.Context, conversationID, requesterID string, limit int, cursor string) (*MessagePage, error)
	GetConversation(ctx context.Context, conversationID, requesterID string) (*ConversationView, error)
	ListConversations(ctx context.Context, requesterID string, page, pageSize int) ([]*ConversationView, error)
	Progression(ctx context.Context, conversationID, requesterID string) (*Progression, error)
}

type ChatOptions struct {
	MaxContentLength int
	DefaultPageSize  int
	MaxPageSize      int
	MaxVoiceDuration time.Duration
	LockTimeout      time.Duration
	Retry            RetryOptions
}

func (o ChatOptions) withDefaults() ChatOptions {
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = 1000
	}
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = 50
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = 100
	}
	if o.DefaultPageSize > o.MaxPageSize {
		o.DefaultPageSize = o.MaxPageSize
	}
	return o
}

type chatService struct {
	db       *gorm.DB
	convs    repository.ConversationRepository
	msgs     repository.MessageRepository
	profiles *ProfileCache
	gate     *gate.Gate
	policy   reveal.Policy
	pub      Publisher
	opts     ChatOptions
	tracer   trace.Tracer
	now      func() time.Time
}

// NewChatService pub may be nil when nothing listens for realtime events.
func NewChatService(
	db *gorm.DB,
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	profiles *ProfileCache,
	g *gate.Gate,
	policy reveal.Policy,
	pub Publisher,
	opts ChatOptions,
) ChatService {
	return &chatService{
		db:       db,
		convs:    convs,
		msgs:     msgs,
		profiles: profiles,
		gate:     g,
		policy:   policy,
		pub:      pub,
		opts:     opts.withDefaults(),
		tracer:   otel.Tracer("github.com/d60-Lab/unveil/internal/service"),
		now:      time.Now,
	}
}

func (s *chatService) SendText(ctx context.Context, conversationID, senderID, content string) (*SendResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > s.opts.MaxContentLength {
		return nil, apperr.ErrContentTooLong(s.opts.MaxContentLength)
	}

	ctx, span := s.tracer.Start(ctx, "chat.SendText", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	var res *SendResult
	err := s.gate.Run(ctx, conversationID, func(ctx context.Context) error {
		r, err := withTxRetry(ctx, s.opts.Retry, "append_text", func() (*SendResult, error) {
			return s.appendText(ctx, conversationID, senderID, content)
		})
		if err != nil {
			return err
		}
		res = r
		// 在 gate 内广播，保证同一会话的推送顺序与提交顺序一致
		s.publish(conversationID, res)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("conversation.text_count", res.TextMessageCount),
		attribute.Int("conversation.reveal_level", res.RevealLevel),
	)
	if res.ChapterChanged {
		logger.Info("chapter unlocked",
			zap.String("conversation_id", conversationID),
			zap.Int("level", res.RevealLevel),
			zap.Int("text_count", res.TextMessageCount),
		)
	}
	return res, nil
}

// appendText runs one attempt of the insert + progression transaction.
func (s *chatService) appendText(ctx context.Context, conversationID, senderID, content string) (*SendResult, error) {
	var out *SendResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		convs := s.convs.WithTx(tx)
		msgs := s.msgs.WithTx(tx)

		if err := convs.SetLockTimeout(ctx, s.opts.LockTimeout); err != nil {
			return err
		}
		conv, err := convs.LockForUpdate(ctx, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(senderID) {
			return apperr.ErrNotParticipant
		}

		at := repository.NextMessageTime(conv, s.now())
		msg := &model.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Type:           model.MessageTypeText,
			Content:        content,
			CreatedAt:      at,
		}
		if err := msgs.Create(ctx, msg); err != nil {
			return err
		}

		prevCount := conv.TextMessageCount
		prog := repository.ApplyTextMessage(conv, s.policy, at)

		var sys *model.Message
		if prog.ChapterChanged {
			sys = chapterMessage(msg, prog.Level)
			if err := msgs.Create(ctx, sys); err != nil {
				return err
			}
			conv.LastMessageAt = &sys.CreatedAt
		}
		if err := convs.SaveProgress(ctx, conv, prevCount); err != nil {
			return err
		}

		out = &SendResult{
			Message:       msg,
			SystemMessage: sys,
			Progression:   progressionOf(conv, s.policy, prog.ChapterChanged),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// chapterMessage builds the persisted SYSTEM message announcing a chapter.
// Its id is derived from the text message id so retries and clients agree
// on it.
func chapterMessage(trigger *model.Message, level int) *model.Message {
	ns, err := uuid.Parse(trigger.ID)
	if err != nil {
		ns = uuid.NameSpaceOID
	}
	return &model.Message{
		ID:             uuid.NewSHA1(ns, []byte(fmt.Sprintf("chapter-%d", level))).String(),
		ConversationID: trigger.ConversationID,
		SenderID:       trigger.SenderID,
		Type:           model.MessageTypeSystem,
		Content:        reveal.Label(level),
		CreatedAt:      trigger.CreatedAt.Add(time.Microsecond),
	}
}

func (s *chatService) SendVoice(ctx context.Context, conversationID, senderID, audioURL string, audioDuration int) (*model.Message, error) {
	audioURL = strings.TrimSpace(audioURL)
	if audioURL == "" {
		return nil, apperr.ErrInvalidAudio
	}
	if audioDuration <= 0 {
		return nil, apperr.ErrInvalidDuration
	}
	if maxSec := int(s.opts.MaxVoiceDuration / time.Second); maxSec > 0 && audioDuration > maxSec {
		return nil, apperr.ErrDurationTooLong(maxSec)
	}

	ctx, span := s.tracer.Start(ctx, "chat.SendVoice", trace.WithAttributes(
		attribute.String("conversation.id", conversationID),
	))
	defer span.End()

	var msg *model.Message
	err := s.gate.Run(ctx, conversationID, func(ctx context.Context) error {
		m, err := withTxRetry(ctx, s.opts.Retry, "append_voice", func() (*model.Message, error) {
			return s.appendVoice(ctx, conversationID, senderID, audioURL, audioDuration)
		})
		if err != nil {
			return err
		}
		msg = m
		s.publish(conversationID, &SendResult{Message: m})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return msg, nil
}

// appendVoice 语音消息不计入文本计数，只刷新会话活跃时间
func (s *chatService) appendVoice(ctx context.Context, conversationID, senderID, audioURL string, audioDuration int) (*model.Message, error) {
	var out *model.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		convs := s.convs.WithTx(tx)
		if err := convs.SetLockTimeout(ctx, s.opts.LockTimeout); err != nil {
			return err
		}
		conv, err := convs.LockForUpdate(ctx, conversationID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(senderID) {
			return apperr.ErrNotParticipant
		}

		at := repository.NextMessageTime(conv, s.now())
		msg := &model.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Type:           model.MessageTypeVoice,
			AudioURL:       audioURL,
			AudioDuration:  audioDuration,
			CreatedAt:      at,
		}
		if err := s.msgs.WithTx(tx).Create(ctx, msg); err != nil {
			return err
		}
		if err := convs.TouchLastMessage(ctx, conversationID, at); err != nil {
			return err
		}
		out = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *chatService) publish(conversationID string, res *SendResult) {
	if s.pub == nil {
		return
	}
	s.pub.Broadcast(conversationID, EventNewMessage, res)
}

func (s *chatService) GetMessages(ctx context.Context, conversationID, requesterID string, limit int, cursor string) (*MessagePage, error) {
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = s.clampLimit(limit)

	if _, err := s.participantConversation(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}

	// 多取一条用于判断是否还有更早的消息
	rows, err := s.msgs.ListBefore(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	page := &MessagePage{Messages: rows}
	if hasMore {
		next := rows[0].CreatedAt.UTC().Format(time.RFC3339Nano)
		page.NextCursor = &next
	}
	return page, nil
}

func (s *chatService) clampLimit(limit int) int {
	switch {
	case limit == 0:
		return s.opts.DefaultPageSize
	case limit < 1:
		return 1
	case limit > s.opts.MaxPageSize:
		return s.opts.MaxPageSize
	}
	return limit
}

func parseCursor(cursor string) (*time.Time, error) {
	if cursor == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidArgument, apperr.ErrInvalidCursor.Error(), err)
	}
	t = t.UTC()
	return &t, nil
}

func (s *chatService) participantConversation(ctx context.Context, conversationID, requesterID string) (*model.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, apperr.ErrNotParticipant
	}
	return conv, nil
}

func (s *chatService) Progression(ctx context.Context, conversationID, requesterID string) (*Progression, error) {
	conv, err := s.participantConversation(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	return progressionOf(conv, s.policy, false), nil
}

func (s *chatService) GetConversation(ctx context.Context, conversationID, requesterID string) (*ConversationView, error) {
	conv, err := s.participantConversation(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	profiles, err := s.profiles.Load(ctx, []string{conv.User1ID, conv.User2ID})
	if err != nil {
		return nil, err
	}
	return s.view(conv, requesterID, profiles), nil
}

func (s *chatService) ListConversations(ctx context.Context, requesterID string, page, pageSize int) ([]*ConversationView, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > s.opts.MaxPageSize {
		pageSize = 20
	}
	convs, err := s.convs.ListByUser(ctx, requesterID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}
	ids := []string{requesterID}
	for _, c := range convs {
		ids = append(ids, c.Counterpart(requesterID))
	}
	profiles, err := s.profiles.Load(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]*ConversationView, len(convs))
	for i, c := range convs {
		views[i] = s.view(c, requesterID, profiles)
	}
	return views, nil
}

func (s *chatService) view(conv *model.Conversation, requesterID string, profiles map[string]ProfileSnapshot) *ConversationView {
	me := profiles[requesterID]
	me.ID = requesterID
	other := profiles[conv.Counterpart(requesterID)]
	other.ID = conv.Counterpart(requesterID)

	unlocks := make([]*time.Time, reveal.MaxLevel)
	for n := 1; n <= reveal.MaxLevel; n++ {
		unlocks[n-1] = conv.ChapterUnlockedAt(n)
	}
	return &ConversationView{
		ID:             conv.ID,
		Me:             ownProfile(me),
		Counterpart:    gatedProfile(other, conv.RevealLevel),
		Progression:    *progressionOf(conv, s.policy, false),
		ChapterUnlocks: unlocks,
		LastMessageAt:  conv.LastMessageAt,
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}
}
