package handler

import (
	"context"
	"errors"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/anon-community/internal/api/middleware"
	"github.com/d60-Lab/anon-community/internal/identity"
	"github.com/d60-Lab/anon-community/internal/model"
	"github.com/d60-Lab/anon-community/internal/service"
	"github.com/d60-Lab/anon-community/pkg/apperr"
	"github.com/d60-Lab/anon-community/pkg/response"
)

// HealthCheck 依赖探活
type HealthCheck func(ctx context.Context) error

type Handler struct {
	dir      service.DirectoryService
	resolver *service.Resolver
	follows  service.FollowService
	checks   map[string]HealthCheck
}

func New(dir service.DirectoryService, resolver *service.Resolver, follows service.FollowService, checks map[string]HealthCheck) *Handler {
	return &Handler{dir: dir, resolver: resolver, follows: follows, checks: checks}
}

var registerOnce sync.Once

// RegisterValidators 注册自定义校验 tag：anonid
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("gin validator is not go-playground/validator")
			return
		}
		err = v.RegisterValidation("anonid", func(fl validator.FieldLevel) bool {
			return identity.ValidAnonymousID(fl.Field().String())
		})
	})
	return err
}

// viewer 当前调用方；首次访问时建档
func (h *Handler) viewer(c *gin.Context) (*model.User, bool) {
	u, err := h.dir.GetOrCreateByAuthID(c.Request.Context(), middleware.AuthID(c))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return u, true
}

// activeViewer 写操作要求账号处于 active 状态
func (h *Handler) activeViewer(c *gin.Context) (*model.User, bool) {
	u, ok := h.viewer(c)
	if !ok {
		return nil, false
	}
	if u.Status != model.UserStatusActive {
		response.Error(c, apperr.Forbidden("account is %s", u.Status))
		return nil, false
	}
	return u, true
}
