package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/unveil/internal/model"
	"github.com/d60-Lab/unveil/internal/repository"
	"github.com/d60-Lab/unveil/pkg/apperr"
	"github.com/d60-Lab/unveil/pkg/logger"
)

// LikeResult 喜欢操作的结果；互相喜欢时带上新会话
type LikeResult struct {
	Matched        bool   `json:"matched"`
	MatchID        string `json:"match_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// MatchView 匹配列表项，对方资料按当前揭示等级处理
type MatchView struct {
	MatchID        string      `json:"match_id"`
	ConversationID string      `json:"conversation_id"`
	Counterpart    ProfileView `json:"counterpart"`
	RevealLevel    int         `json:"reveal_level"`
}

// DiscoveryService 发现页与匹配
type DiscoveryService interface {
	Candidates(ctx context.Context, userID string, limit int) ([]ProfileView, error)
	Like(ctx context.Context, fromUserID, toUserID string) (*LikeResult, error)
	Dislike(ctx context.Context, fromUserID, toUserID string) error
	ListMatches(ctx context.Context, userID string, page, pageSize int) ([]*MatchView, error)
}

type discoveryService struct {
	db       *gorm.DB
	users    repository.UserRepository
	likes    repository.LikeRepository
	matches  repository.MatchRepository
	convs    repository.ConversationRepository
	profiles *ProfileCache
}

func NewDiscoveryService(
	db *gorm.DB,
	users repository.UserRepository,
	likes repository.LikeRepository,
	matches repository.MatchRepository,
	convs repository.ConversationRepository,
	profiles *ProfileCache,
) DiscoveryService {
	return &discoveryService{db: db, users: users, likes: likes, matches: matches, convs: convs, profiles: profiles}
}

// Candidates 未评价过的用户；照片在匹配前一律隐藏
func (s *discoveryService) Candidates(ctx context.Context, userID string, limit int) ([]ProfileView, error) {
	if limit < 1 || limit > 50 {
		limit = 20
	}
	rated, err := s.likes.RatedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	users, err := s.users.ListCandidates(ctx, userID, rated, limit)
	if err != nil {
		return nil, err
	}
	res := make([]ProfileView, len(users))
	for i, u := range users {
		res[i] = gatedProfile(snapshotOf(u), 0)
	}
	return res, nil
}

func (s *discoveryService) Like(ctx context.Context, fromUserID, toUserID string) (*LikeResult, error) {
	if fromUserID == toUserID {
		return nil, apperr.ErrSelfRating
	}
	if _, err := s.users.GetByID(ctx, toUserID); err != nil {
		return nil, err
	}

	res := &LikeResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.likes.WithTx(tx).Upsert(ctx, fromUserID, toUserID, model.LikeKindLike); err != nil {
			return err
		}
		mutual, err := s.likes.WithTx(tx).Exists(ctx, toUserID, fromUserID, model.LikeKindLike)
		if err != nil || !mutual {
			return err
		}

		convs := s.convs.WithTx(tx)
		if err := convs.Create(ctx, &model.Conversation{
			ID:      uuid.NewString(),
			User1ID: fromUserID,
			User2ID: toUserID,
		}); err != nil {
			return err
		}
		// 重复喜欢时 Create 不生效，以库中已有的会话为准
		conv, err := convs.GetByPair(ctx, fromUserID, toUserID)
		if err != nil {
			return err
		}

		matches := s.matches.WithTx(tx)
		if err := matches.Create(ctx, &model.Match{
			ID:             uuid.NewString(),
			User1ID:        fromUserID,
			User2ID:        toUserID,
			ConversationID: conv.ID,
		}); err != nil {
			return err
		}
		m, err := matches.GetByPair(ctx, fromUserID, toUserID)
		if err != nil {
			return err
		}

		res.Matched = true
		res.MatchID = m.ID
		res.ConversationID = conv.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Matched {
		logger.Info("match created",
			zap.String("match_id", res.MatchID),
			zap.String("conversation_id", res.ConversationID),
		)
	}
	return res, nil
}

// Dislike 只记录评价；已存在的匹配不受影响
func (s *discoveryService) Dislike(ctx context.Context, fromUserID, toUserID string) error {
	if fromUserID == toUserID {
		return apperr.ErrSelfRating
	}
	if _, err := s.users.GetByID(ctx, toUserID); err != nil {
		return err
	}
	return s.likes.Upsert(ctx, fromUserID, toUserID, model.LikeKindDislike)
}

func (s *discoveryService) ListMatches(ctx context.Context, userID string, page, pageSize int) ([]*MatchView, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	items, err := s.matches.ListByUser(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(items))
	for _, m := range items {
		ids = append(ids, counterpartOf(m, userID))
	}
	profiles, err := s.profiles.Load(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := make([]*MatchView, 0, len(items))
	for _, m := range items {
		level := 0
		conv, err := s.convs.GetByID(ctx, m.ConversationID)
		switch {
		case err == nil:
			level = conv.RevealLevel
		case !errors.Is(err, apperr.ErrConversationNotFound):
			return nil, err
		}
		other := counterpartOf(m, userID)
		snap := profiles[other]
		snap.ID = other
		res = append(res, &MatchView{
			MatchID:        m.ID,
			ConversationID: m.ConversationID,
			Counterpart:    gatedProfile(snap, level),
			RevealLevel:    level,
		})
	}
	return res, nil
}

func counterpartOf(m *model.Match, userID string) string {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}
