package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/anon-community/internal/event"
	"github.com/d60-Lab/anon-community/internal/identity"
	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/internal/repository"
	"github.com/d60-Lab/anon-community/pkg/apperr"
	"github.com/d60-Lab/anon-community/pkg/logger"
	"github.com/d60-Lab/anon-community/pkg/metrics"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// EdgeSummary 对外的关注边视图，双方都以匿名身份出现
type EdgeSummary struct {
	ID                        string                 `json:"id"`
	Follower                  PublicProfile          `json:"follower"`
	Following                 PublicProfile          `json:"following"`
	IsMutualFollow            bool                   `json:"isMutualFollow"`
	ChatAccessGranted         bool                   `json:"chatAccessGranted"`
	MutualFollowEstablishedAt *time.Time             `json:"mutualFollowEstablishedAt,omitempty"`
	PrivacySettings           *model.PrivacySettings `json:"privacySettings,omitempty"` // 只对关注者本人可见
	FollowSource              string                 `json:"followSource,omitempty"`
	CreatedAt                 time.Time              `json:"createdAt"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type FollowList struct {
	Items      []EdgeSummary `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

type FollowStats struct {
	FollowersCount         int64 `json:"followersCount"`
	FollowingCount         int64 `json:"followingCount"`
	MutualFollowsCount     int64 `json:"mutualFollowsCount"`
	ChatEligibleUsersCount int64 `json:"chatEligibleUsersCount"`
}

// ChatEligibility 不可聊天是正常结果，不是错误
type ChatEligibility struct {
	CanChat                   bool           `json:"canChat"`
	ChatPartner               *PublicProfile `json:"chatPartner,omitempty"`
	ChatRef                   string         `json:"chatRef,omitempty"`
	MutualFollowEstablishedAt *time.Time     `json:"mutualFollowEstablishedAt,omitempty"`
	ChatAccessGrantedAt       *time.Time     `json:"chatAccessGrantedAt,omitempty"`
	// AllowRealNameInChat 对方是否允许在聊天中展示真名
	AllowRealNameInChat bool `json:"allowRealNameInChat"`
}

type ChatPartner struct {
	Partner                   PublicProfile `json:"partner"`
	ChatRef                   string        `json:"chatRef"`
	MutualFollowEstablishedAt *time.Time    `json:"mutualFollowEstablishedAt,omitempty"`
	AllowRealNameInChat       bool          `json:"allowRealNameInChat"`
}

// SettingsPatch 部分更新，nil 字段保持原值
type SettingsPatch struct {
	AllowChatInvitation  *bool `json:"allowChatInvitation"`
	NotifyOnFollow       *bool `json:"notifyOnFollow"`
	NotifyOnMutualFollow *bool `json:"notifyOnMutualFollow"`
	AllowRealNameInChat  *bool `json:"allowRealNameInChat"`
}

func (p SettingsPatch) apply(s model.PrivacySettings) model.PrivacySettings {
	if p.AllowChatInvitation != nil {
		s.AllowChatInvitation = *p.AllowChatInvitation
	}
	if p.NotifyOnFollow != nil {
		s.NotifyOnFollow = *p.NotifyOnFollow
	}
	if p.NotifyOnMutualFollow != nil {
		s.NotifyOnMutualFollow = *p.NotifyOnMutualFollow
	}
	if p.AllowRealNameInChat != nil {
		s.AllowRealNameInChat = *p.AllowRealNameInChat
	}
	return s
}

// FollowService 关注图。全部四种状态迁移（建边、升互关、降级、删边）都在这里的事务里完成，
// 互关字段在两行上始终一致
type FollowService interface {
	Follow(ctx context.Context, followerID, followingID string, meta model.FollowMetadata) (*EdgeSummary, error)
	Unfollow(ctx context.Context, followerID, followingID string) error
	List(ctx context.Context, viewerID string, filter repository.ListFilter, page, limit int) (*FollowList, error)
	Stats(ctx context.Context, viewerID string) (*FollowStats, error)
	ChatEligibility(ctx context.Context, viewerID, counterpartAnonymousID string) (*ChatEligibility, error)
	ChatPartners(ctx context.Context, viewerID string) ([]ChatPartner, error)
	UpdateSettings(ctx context.Context, edgeID, viewerID string, patch SettingsPatch) (*EdgeSummary, error)
}

type FollowOptions struct {
	MaxTxRetries int
	RetryBackoff time.Duration
}

type followService struct {
	tx       txRunner
	follows  repository.FollowRepository
	dir      DirectoryService
	resolver *Resolver
	deriver  *identity.Deriver
	events   event.Emitter
}

func NewFollowService(db *gorm.DB, follows repository.FollowRepository, dir DirectoryService, resolver *Resolver,
	deriver *identity.Deriver, events event.Emitter, opts FollowOptions) FollowService {
	if events == nil {
		events = event.Nop{}
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 20 * time.Millisecond
	}
	return &followService{
		tx:       txRunner{db: db, maxRetries: opts.MaxTxRetries, backoff: opts.RetryBackoff},
		follows:  follows,
		dir:      dir,
		resolver: resolver,
		deriver:  deriver,
		events:   events,
	}
}

func resultOf(err error) string {
	if err == nil {
		return "ok"
	}
	switch apperr.KindOf(err) {
	case apperr.ErrInvalidInput:
		return "invalid"
	case apperr.ErrConflict:
		return "conflict"
	case apperr.ErrNotFound:
		return "not_found"
	case apperr.ErrForbidden:
		return "forbidden"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil && apperr.KindOf(err) == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *followService) Follow(ctx context.Context, followerID, followingID string, meta model.FollowMetadata) (_ *EdgeSummary, err error) {
	ctx, span := tracer.Start(ctx, "FollowService.Follow")
	defer func() {
		metrics.RecordFollowOp("follow", resultOf(err))
		endSpan(span, err)
	}()

	if followerID == "" || followingID == "" {
		return nil, apperr.InvalidInput("follower and following are required")
	}
	if followerID == followingID {
		return nil, apperr.InvalidInput("cannot follow yourself")
	}

	var (
		edge     *model.FollowEdge
		promoted bool
	)
	err = s.tx.run(ctx, "follow", func(tx *gorm.DB) error {
		repo := s.follows.WithTx(tx)
		promoted = false

		existing, err := repo.FindPair(ctx, followerID, followingID)
		if err != nil {
			return err
		}
		var edgeID string
		switch {
		case existing != nil && existing.Status == model.FollowStatusActive:
			return apperr.Conflict("already following this user")
		case existing != nil:
			if err := repo.Reactivate(ctx, existing.ID, model.DefaultPrivacySettings(), meta); err != nil {
				return err
			}
			edgeID = existing.ID
		default:
			fresh := &model.FollowEdge{
				FollowerID:      followerID,
				FollowingID:     followingID,
				PrivacySettings: model.DefaultPrivacySettings(),
				Metadata:        meta,
			}
			if err := repo.Create(ctx, fresh); err != nil {
				return err
			}
			edgeID = fresh.ID
		}

		reverse, err := repo.FindPair(ctx, followingID, followerID)
		if err != nil {
			return err
		}
		if reverse != nil && reverse.Status == model.FollowStatusActive {
			// 两行使用同一时间戳
			if err := repo.SetMutual(ctx, []string{edgeID, reverse.ID}, time.Now().UTC()); err != nil {
				return err
			}
			promoted = true
		}

		edge, err = repo.GetByID(ctx, edgeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("follow.promoted", promoted))

	if promoted {
		metrics.RecordMutualTransition("promote")
	}
	s.dir.Touch(ctx, followerID)

	s.emitFollowed(ctx, edge, promoted)

	summary := summarize(edge, followerID, s.describeCommitted(ctx, followerID, followingID))
	return &summary, nil
}

// describeCommitted 事务已提交后读取双方资料；读取失败时退化为只有匿名身份的资料，
// 边已经存在，不能再向调用方返回错误
func (s *followService) describeCommitted(ctx context.Context, ids ...string) map[string]PublicProfile {
	profiles, err := s.resolver.Describe(ctx, ids)
	if err == nil {
		return profiles
	}
	logger.Warn("describe after commit failed, returning pseudonyms only", zap.Error(err))
	out := make(map[string]PublicProfile, len(ids))
	for _, id := range ids {
		out[id] = PublicProfile{Pseudonym: s.deriver.Derive(id, identity.KindProfile)}
	}
	return out
}

// emitFollowed 只依赖派生结果，不读库
func (s *followService) emitFollowed(ctx context.Context, edge *model.FollowEdge, promoted bool) {
	follower := s.deriver.Derive(edge.FollowerID, identity.KindProfile)
	following := s.deriver.Derive(edge.FollowingID, identity.KindProfile)
	s.events.Emit(ctx, event.Event{
		Type:                 event.UserFollowed,
		FollowerID:           edge.FollowerID,
		FollowingID:          edge.FollowingID,
		FollowerAnonymousID:  follower.AnonymousID,
		FollowerName:         follower.DisplayName,
		FollowingAnonymousID: following.AnonymousID,
		FollowingName:        following.DisplayName,
		IsMutualFollow:       promoted,
		ChatAccessGranted:    promoted,
	})
	if !promoted {
		return
	}
	s.events.Emit(ctx, event.Event{
		Type:                 event.MutualFollowEstablished,
		FollowerID:           edge.FollowerID,
		FollowingID:          edge.FollowingID,
		FollowerAnonymousID:  follower.AnonymousID,
		FollowingAnonymousID: following.AnonymousID,
		IsMutualFollow:       true,
		ChatAccessGranted:    true,
		ChatRef:              s.deriver.ChatRef(edge.FollowerID, edge.FollowingID),
	})
}

func (s *followService) Unfollow(ctx context.Context, followerID, followingID string) (err error) {
	ctx, span := tracer.Start(ctx, "FollowService.Unfollow")
	defer func() {
		metrics.RecordFollowOp("unfollow", resultOf(err))
		endSpan(span, err)
	}()

	var demoted bool
	err = s.tx.run(ctx, "unfollow", func(tx *gorm.DB) error {
		repo := s.follows.WithTx(tx)
		demoted = false

		edge, err := repo.FindPair(ctx, followerID, followingID)
		if err != nil {
			return err
		}
		if edge == nil || edge.Status != model.FollowStatusActive {
			return apperr.NotFound("not following this user")
		}
		if edge.IsMutualFollow {
			reverse, err := repo.FindPair(ctx, followingID, followerID)
			if err != nil {
				return err
			}
			// 先降级对方的边，再删除自己的边
			if reverse != nil {
				if err := repo.ClearMutual(ctx, reverse.ID); err != nil {
					return err
				}
				demoted = true
			}
		}
		return repo.Remove(ctx, edge.ID)
	})
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Bool("follow.demoted", demoted))
	s.dir.Touch(ctx, followerID)

	if demoted {
		metrics.RecordMutualTransition("demote")
		s.events.Emit(ctx, event.Event{
			Type:        event.MutualFollowBroken,
			FollowerID:  followerID,
			FollowingID: followingID,
			ChatRef:     s.deriver.ChatRef(followerID, followingID),
		})
	}
	s.events.Emit(ctx, event.Event{
		Type:                 event.UserUnfollowed,
		FollowerID:           followerID,
		FollowingID:          followingID,
		FollowerAnonymousID:  s.deriver.AnonymousID(followerID),
		FollowingAnonymousID: s.deriver.AnonymousID(followingID),
	})
	return nil
}

// NormalizePage page 从 1 开始，limit 默认 20、最大 50
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func (s *followService) List(ctx context.Context, viewerID string, filter repository.ListFilter, page, limit int) (*FollowList, error) {
	page, limit = NormalizePage(page, limit)
	edges, total, err := s.follows.List(ctx, viewerID, filter, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	items, err := s.summaries(ctx, viewerID, edges)
	if err != nil {
		return nil, err
	}
	return &FollowList{
		Items: items,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}, nil
}

func (s *followService) Stats(ctx context.Context, viewerID string) (*FollowStats, error) {
	followers, err := s.follows.CountFollowers(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	following, err := s.follows.CountFollowing(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	mutualRows, err := s.follows.CountMutualRows(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	// 每段互关关系存两行
	mutual := mutualRows / 2
	return &FollowStats{
		FollowersCount:         followers,
		FollowingCount:         following,
		MutualFollowsCount:     mutual,
		ChatEligibleUsersCount: mutual,
	}, nil
}

func (s *followService) ChatEligibility(ctx context.Context, viewerID, counterpartAnonymousID string) (*ChatEligibility, error) {
	ctx, span := tracer.Start(ctx, "FollowService.ChatEligibility")
	defer span.End()

	partnerID, err := s.resolver.Resolve(ctx, counterpartAnonymousID)
	if err != nil {
		return nil, err
	}
	if partnerID == viewerID {
		return &ChatEligibility{CanChat: false}, nil
	}
	edge, err := s.follows.FindMutual(ctx, viewerID, partnerID)
	if err != nil {
		return nil, err
	}
	if edge == nil {
		return &ChatEligibility{CanChat: false}, nil
	}
	// 是否公开真名看对方那条边
	theirs := edge
	if edge.FollowerID != partnerID {
		if theirs, err = s.follows.FindPair(ctx, partnerID, viewerID); err != nil {
			return nil, err
		}
	}
	profiles, err := s.resolver.Describe(ctx, []string{partnerID})
	if err != nil {
		return nil, err
	}
	partner, ok := profiles[partnerID]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &ChatEligibility{
		CanChat:                   true,
		ChatPartner:               &partner,
		ChatRef:                   s.deriver.ChatRef(viewerID, partnerID),
		MutualFollowEstablishedAt: edge.MutualFollowEstablishedAt,
		ChatAccessGrantedAt:       edge.ChatAccessGrantedAt,
		AllowRealNameInChat:       theirs != nil && theirs.PrivacySettings.AllowRealNameInChat,
	}, nil
}

func (s *followService) ChatPartners(ctx context.Context, viewerID string) ([]ChatPartner, error) {
	edges, err := s.follows.ListMutual(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(edges)/2+1)
	byPartner := make(map[string]*ChatPartner, len(edges))
	for _, e := range edges {
		pid := e.Counterpart(viewerID)
		cp, ok := byPartner[pid]
		if !ok {
			cp = &ChatPartner{
				ChatRef:                   s.deriver.ChatRef(viewerID, pid),
				MutualFollowEstablishedAt: e.MutualFollowEstablishedAt,
			}
			byPartner[pid] = cp
			order = append(order, pid)
		}
		// 是否公开真名由对方在自己那条边上决定
		if e.FollowerID == pid {
			cp.AllowRealNameInChat = e.PrivacySettings.AllowRealNameInChat
		}
	}

	profiles, err := s.resolver.Describe(ctx, order)
	if err != nil {
		return nil, err
	}
	out := make([]ChatPartner, 0, len(order))
	for _, pid := range order {
		p, ok := profiles[pid]
		if !ok {
			continue
		}
		cp := byPartner[pid]
		cp.Partner = p
		out = append(out, *cp)
	}
	return out, nil
}

func (s *followService) UpdateSettings(ctx context.Context, edgeID, viewerID string, patch SettingsPatch) (_ *EdgeSummary, err error) {
	ctx, span := tracer.Start(ctx, "FollowService.UpdateSettings")
	defer func() {
		metrics.RecordFollowOp("update_settings", resultOf(err))
		endSpan(span, err)
	}()

	var edge *model.FollowEdge
	err = s.tx.run(ctx, "update_settings", func(tx *gorm.DB) error {
		repo := s.follows.WithTx(tx)
		cur, err := repo.GetByID(ctx, edgeID)
		if err != nil {
			return err
		}
		if cur.Status != model.FollowStatusActive {
			return apperr.NotFound("follow relationship not found")
		}
		if cur.FollowerID != viewerID {
			return apperr.Forbidden("you can only update your own follow settings")
		}
		if err := repo.UpdatePrivacy(ctx, cur.ID, patch.apply(cur.PrivacySettings)); err != nil {
			return err
		}
		edge, err = repo.GetByID(ctx, cur.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	items, err := s.summaries(ctx, viewerID, []*model.FollowEdge{edge})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (s *followService) summaries(ctx context.Context, viewerID string, edges []*model.FollowEdge) ([]EdgeSummary, error) {
	items := make([]EdgeSummary, 0, len(edges))
	if len(edges) == 0 {
		return items, nil
	}
	seen := make(map[string]struct{}, len(edges)*2)
	ids := make([]string, 0, len(edges)*2)
	for _, e := range edges {
		for _, id := range [2]string{e.FollowerID, e.FollowingID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	profiles, err := s.resolver.Describe(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		items = append(items, summarize(e, viewerID, profiles))
	}
	return items, nil
}

func summarize(e *model.FollowEdge, viewerID string, profiles map[string]PublicProfile) EdgeSummary {
	sum := EdgeSummary{
		ID:                        e.ID,
		Follower:                  profiles[e.FollowerID],
		Following:                 profiles[e.FollowingID],
		IsMutualFollow:            e.IsMutualFollow,
		ChatAccessGranted:         e.ChatAccessGranted,
		MutualFollowEstablishedAt: e.MutualFollowEstablishedAt,
		FollowSource:              e.Metadata.FollowSource,
		CreatedAt:                 e.CreatedAt,
	}
	if e.FollowerID == viewerID {
		ps := e.PrivacySettings
		sum.PrivacySettings = &ps
	}
	return sum
}
