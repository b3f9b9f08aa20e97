package controller

import (
	"fmt"
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/service"
	"gamehub_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type GameController struct {
	CatalogService *service.CatalogService
	GameService    *service.GameService
}

func NewGameController(catalogService *service.CatalogService, gameService *service.GameService) *GameController {
	return &GameController{
		CatalogService: catalogService,
		GameService:    gameService,
	}
}

// GameRequest 创建/更新游戏
// swagger:model GameRequest
type GameRequest struct {
	Title            string   `json:"title" binding:"required,max=255"`
	ShortDescription string   `json:"shortDescription" binding:"max=300"`
	FullDescription  string   `json:"fullDescription" binding:"max=5000"`
	Genre            string   `json:"genre" binding:"required,genre"`
	Platforms        []string `json:"platforms" binding:"required,min=1,dive,platform"`
	Tags             []string `json:"tags" binding:"omitempty,dive,max=50"`
	CoverImageURL    string   `json:"coverImageUrl" binding:"omitempty,url"`
	Screenshots      []string `json:"screenshots" binding:"omitempty,dive,url"`
	Price            float64  `json:"price" binding:"gte=0"`
	IsFree           bool     `json:"isFree"`
	Visibility       string   `json:"visibility" binding:"omitempty,visibility"`
}

// StatusRequest 状态变更
// swagger:model StatusRequest
type StatusRequest struct {
	Status string `json:"status" binding:"required,oneof=draft published rejected"`
}

func (r *GameRequest) input() service.GameInput {
	platforms := make([]model.Platform, 0, len(r.Platforms))
	for _, p := range r.Platforms {
		platforms = append(platforms, model.Platform(p))
	}
	return service.GameInput{
		Title:            r.Title,
		ShortDescription: r.ShortDescription,
		FullDescription:  r.FullDescription,
		Genre:            model.Genre(r.Genre),
		Platforms:        platforms,
		Tags:             r.Tags,
		CoverImageURL:    r.CoverImageURL,
		Screenshots:      r.Screenshots,
		Price:            r.Price,
		IsFree:           r.IsFree,
		Visibility:       model.Visibility(r.Visibility),
	}
}

// parseFilterSpec 解析目录查询参数，pageSize 缺省时取配置默认值
func (c *GameController) parseFilterSpec(ctx *gin.Context) (service.FilterSpec, error) {
	spec := service.FilterSpec{
		Search:   ctx.Query("search"),
		Genre:    model.Genre(ctx.Query("genre")),
		Platform: model.Platform(ctx.Query("platform")),
		SortBy:   service.SortKey(ctx.Query("sortBy")),
		Cursor:   ctx.Query("cursor"),
		PageSize: c.CatalogService.DefaultPageSize(),
	}

	for _, raw := range ctx.QueryArray("tags") {
		spec.Tags = append(spec.Tags, util.SplitCSV(raw)...)
	}

	var err error
	parseFloat := func(name string) (float64, bool, error) {
		raw := ctx.Query(name)
		if raw == "" {
			return 0, false, nil
		}
		v, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return 0, false, fmt.Errorf("%w: %s must be a number", util.ErrInvalidFilterSpec, name)
		}
		return v, true, nil
	}

	if spec.PriceMin, _, err = parseFloat("priceMin"); err != nil {
		return spec, err
	}
	if v, ok, perr := parseFloat("priceMax"); perr != nil {
		return spec, perr
	} else if ok {
		spec.PriceMax = &v
	}
	if spec.MinRating, _, err = parseFloat("rating"); err != nil {
		return spec, err
	}

	if raw := ctx.Query("isFree"); raw != "" {
		v, perr := strconv.ParseBool(raw)
		if perr != nil {
			return spec, fmt.Errorf("%w: isFree must be a boolean", util.ErrInvalidFilterSpec)
		}
		spec.IsFree = &v
	}
	if raw := ctx.Query("pageSize"); raw != "" {
		v, perr := strconv.Atoi(raw)
		if perr != nil {
			return spec, fmt.Errorf("%w: pageSize must be an integer", util.ErrInvalidFilterSpec)
		}
		spec.PageSize = v
	}
	return spec, nil
}

// ListGames godoc
// @Summary 浏览游戏目录
// @Description 已发布游戏的筛选、排序与游标分页。部分条件在页内过滤，返回条数可能少于 pageSize。
// @Tags 游戏
// @Produce json
// @Param search query string false "标题/开发者/标签关键字"
// @Param genre query string false "类型"
// @Param platform query string false "平台"
// @Param priceMin query number false "最低价格"
// @Param priceMax query number false "最高价格"
// @Param isFree query bool false "是否免费"
// @Param rating query number false "最低评分"
// @Param sortBy query string false "排序" Enums(newest, popular, rating, price_low, price_high) default(newest)
// @Param tags query string false "标签，逗号分隔，需全部匹配"
// @Param pageSize query int false "每页数量" default(12)
// @Param cursor query string false "上一页返回的 nextCursor"
// @Success 200 {object} util.Response{data=service.CatalogPage}
// @Failure 400 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/games [get]
func (c *GameController) ListGames(ctx *gin.Context) {
	spec, err := c.parseFilterSpec(ctx)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	page, err := c.CatalogService.FetchPage(ctx.Request.Context(), spec)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, page)
}

// GetGame godoc
// @Summary 游戏详情
// @Description 游戏信息及其构建列表
// @Tags 游戏
// @Produce json
// @Param id path string true "游戏ID"
// @Success 200 {object} util.Response{data=service.GameDetail}
// @Failure 404 {object} util.Response
// @Router /api/games/{id} [get]
func (c *GameController) GetGame(ctx *gin.Context) {
	principal := service.PrincipalFromClaims(util.GetUserFromContext(ctx))

	detail, err := c.GameService.GetDetail(principal, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}

// CreateGame godoc
// @Summary 提交游戏
// @Description 公开可见的游戏直接发布，其余保存为草稿
// @Tags 游戏
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body GameRequest true "游戏信息"
// @Success 201 {object} util.Response{data=model.Game}
// @Failure 400 {object} util.Response
// @Router /api/games [post]
func (c *GameController) CreateGame(ctx *gin.Context) {
	var req GameRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, util.BindErrorMessage(err))
		return
	}

	principal := service.PrincipalFromClaims(util.GetUserFromContext(ctx))
	game, err := c.GameService.Create(principal, req.input())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, game)
}

// UpdateGame godoc
// @Summary 更新游戏
// @Tags 游戏
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "游戏ID"
// @Param body body GameRequest true "游戏信息"
// @Success 200 {object} util.Response{data=model.Game}
// @Failure 403 {object} util.Response
// @Router /api/games/{id} [put]
func (c *GameController) UpdateGame(ctx *gin.Context) {
	var req GameRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, util.BindErrorMessage(err))
		return
	}

	principal := service.PrincipalFromClaims(util.GetUserFromContext(ctx))
	game, err := c.GameService.Update(principal, ctx.Param("id"), req.input())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, game)
}

// UpdateStatus godoc
// @Summary 变更游戏状态
// @Tags 游戏
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "游戏ID"
// @Param body body StatusRequest true "目标状态"
// @Success 200 {object} util.Response{data=model.Game}
// @Failure 400 {object} util.Response "非法状态流转"
// @Router /api/games/{id}/status [patch]
func (c *GameController) UpdateStatus(ctx *gin.Context) {
	var req StatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, util.BindErrorMessage(err))
		return
	}

	principal := service.PrincipalFromClaims(util.GetUserFromContext(ctx))
	game, err := c.GameService.UpdateStatus(principal, ctx.Param("id"), model.GameStatus(req.Status))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, game)
}

// DeleteGame godoc
// @Summary 删除游戏
// @Description 同时删除构建记录与库条目
// @Tags 游戏
// @Produce json
// @Security BearerAuth
// @Param id path string true "游戏ID"
// @Success 200 {object} util.Response
// @Router /api/games/{id} [delete]
func (c *GameController) DeleteGame(ctx *gin.Context) {
	principal := service.PrincipalFromClaims(util.GetUserFromContext(ctx))
	if err := c.GameService.Delete(ctx.Request.Context(), principal, ctx.Param("id")); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// DownloadBuild godoc
// @Summary 下载构建
// @Description 返回下载地址，累计下载次数；免费游戏首次下载加入游戏库
// @Tags 游戏
// @Produce json
// @Security BearerAuth
// @Param id path string true "游戏ID"
// @Param buildId path string true "构建ID"
// @Success 200 {object} util.Response{data=service.DownloadInfo}
// @Failure 403 {object} util.Response "未购买"
// @Router /api/games/{id}/builds/{buildId}/download [post]
func (c *GameController) DownloadBuild(ctx *gin.Context) {
	principal := service.PrincipalFromClaims(util.GetUserFromContext(ctx))
	info, err := c.GameService.Download(ctx.Request.Context(), principal, ctx.Param("id"), ctx.Param("buildId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, info)
}
