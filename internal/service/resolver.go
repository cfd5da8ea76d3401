package service

import (
	"context"
	"regexp"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/d60-Lab/anon-community/internal/identity"
	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/internal/repository"
	"github.com/d60-Lab/anon-community/pkg/apperr"
	"github.com/d60-Lab/anon-community/pkg/metrics"
)

// 关注目标校验失败原因
const (
	ReasonNotFound   = "not found"
	ReasonSelfFollow = "self-follow"
)

var tracer = otel.Tracer("github.com/d60-Lab/anon-community/internal/service")

// PublicProfile 对外展示的匿名资料
type PublicProfile struct {
	identity.Pseudonym
	Role                model.Role `json:"role"`
	IsVerifiedTherapist bool       `json:"isVerifiedTherapist"`
	Bio                 string     `json:"bio,omitempty"`
	PostCount           int        `json:"postCount"`
	CommentCount        int        `json:"commentCount"`
	LastActiveAt        *time.Time `json:"lastActiveAt,omitempty"`
	MemberSince         time.Time  `json:"memberSince"`
}

// Resolver 匿名 ID 与内部 ID 之间的唯一通道。
//
// 匿名 ID 是单向派生的，反查只能对全部用户重新派生后比对，开销 O(n)。
// 这是有意为之：服务端不保存任何可逆映射。
type Resolver struct {
	dir     DirectoryService
	deriver *identity.Deriver
}

func NewResolver(dir DirectoryService, deriver *identity.Deriver) *Resolver {
	return &Resolver{dir: dir, deriver: deriver}
}

// Resolve 反查单个匿名 ID
func (r *Resolver) Resolve(ctx context.Context, anonymousID string) (string, error) {
	found, err := r.scan(ctx, []string{anonymousID}, "single")
	if err != nil {
		return "", err
	}
	ref, ok := found[anonymousID]
	if !ok {
		return "", apperr.NotFound("user not found")
	}
	return ref.ID, nil
}

// ResolveMany 一次扫描反查多个匿名 ID；未命中的 ID 不出现在结果中
func (r *Resolver) ResolveMany(ctx context.Context, anonymousIDs []string) (map[string]string, error) {
	found, err := r.scan(ctx, anonymousIDs, "batch")
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(found))
	for anon, ref := range found {
		out[anon] = ref.ID
	}
	return out, nil
}

// ValidateFollowTarget 反查关注目标并排除自关注。
// 校验不通过时返回 reason，err 只用于输入格式错误和存储故障
func (r *Resolver) ValidateFollowTarget(ctx context.Context, anonymousID, requesterAuthID string) (targetID, reason string, err error) {
	found, err := r.scan(ctx, []string{anonymousID}, "single")
	if err != nil {
		return "", "", err
	}
	ref, ok := found[anonymousID]
	if !ok {
		return "", ReasonNotFound, nil
	}
	if ref.AuthID == requesterAuthID {
		return "", ReasonSelfFollow, nil
	}
	return ref.ID, "", nil
}

func (r *Resolver) scan(ctx context.Context, anonymousIDs []string, mode string) (map[string]repository.UserRef, error) {
	want := make(map[string]struct{}, len(anonymousIDs))
	for _, id := range anonymousIDs {
		if !identity.ValidAnonymousID(id) {
			return nil, apperr.InvalidInput("invalid anonymous id")
		}
		want[id] = struct{}{}
	}
	found := make(map[string]repository.UserRef, len(want))
	if len(want) == 0 {
		return found, nil
	}

	ctx, span := tracer.Start(ctx, "Resolver.scan")
	defer span.End()

	start := time.Now()
	scanned := 0
	err := r.dir.Scan(ctx, func(batch []repository.UserRef) bool {
		for _, ref := range batch {
			scanned++
			anon := r.deriver.AnonymousID(ref.ID)
			if _, ok := want[anon]; ok {
				found[anon] = ref
				if len(found) == len(want) {
					return false
				}
			}
		}
		return true
	})
	metrics.RecordResolve(mode, scanned, time.Since(start))
	span.SetAttributes(
		attribute.Int("resolve.wanted", len(want)),
		attribute.Int("resolve.scanned", scanned),
		attribute.Int("resolve.found", len(found)),
	)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return found, nil
}

// Describe 为一组内部 ID 生成匿名资料；响应中的身份信息都从这里来
func (r *Resolver) Describe(ctx context.Context, ids []string) (map[string]PublicProfile, error) {
	snaps, err := r.dir.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]PublicProfile, len(snaps))
	for id, snap := range snaps {
		out[id] = r.profileOf(snap)
	}
	return out, nil
}

// PublicProfile 单个用户的匿名资料
func (r *Resolver) PublicProfile(u *model.User) PublicProfile {
	return r.profileOf(snapshotOf(u))
}

func (r *Resolver) profileOf(s ProfileSnapshot) PublicProfile {
	return PublicProfile{
		Pseudonym:           r.deriver.Derive(s.ID, identity.KindProfile),
		Role:                s.Role,
		IsVerifiedTherapist: s.IsVerifiedTherapist,
		Bio:                 SanitizeBio(s.Bio),
		PostCount:           s.PostCount,
		CommentCount:        s.CommentCount,
		LastActiveAt:        s.LastActiveAt,
		MemberSince:         s.CreatedAt,
	}
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{6,}\d`)
)

const redacted = "[removed]"

// SanitizeBio 去掉简介里的邮箱和电话号码
func SanitizeBio(bio string) string {
	if bio == "" {
		return bio
	}
	bio = emailPattern.ReplaceAllString(bio, redacted)
	return phonePattern.ReplaceAllString(bio, redacted)
}
