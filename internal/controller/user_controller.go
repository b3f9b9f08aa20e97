package controller

import (
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/service"
	"gamehub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	UserService *service.UserService
}

func NewUserController(userService *service.UserService) *UserController {
	return &UserController{UserService: userService}
}

// UpdateProfileRequest 未提供的字段不修改
// swagger:model UpdateProfileRequest
type UpdateProfileRequest struct {
	Name     *string `json:"displayName" binding:"omitempty,min=1,max=100"`
	UserType *string `json:"userType" binding:"omitempty,oneof=developer company"`
	Avatar   *string `json:"avatar" binding:"omitempty,max=255"`
	Bio      *string `json:"bio"`
}

// GetProfile godoc
// @Summary 获取当前用户资料
// @Tags 用户
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=model.User}
// @Router /api/profile [get]
func (c *UserController) GetProfile(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	user, err := c.UserService.GetProfile(claims.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// UpdateProfile godoc
// @Summary 更新当前用户资料
// @Tags 用户
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body UpdateProfileRequest true "资料"
// @Success 200 {object} util.Response{data=model.User}
// @Router /api/user/profile [put]
func (c *UserController) UpdateProfile(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req UpdateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, util.BindErrorMessage(err))
		return
	}

	in := service.UpdateProfileInput{Name: req.Name, Avatar: req.Avatar, Bio: req.Bio}
	if req.UserType != nil {
		t := model.UserType(*req.UserType)
		in.UserType = &t
	}

	user, err := c.UserService.UpdateProfile(claims.UserID, in)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}
