package controller

import (
	"errors"
	"gamehub_backend/internal/service"
	"gamehub_backend/internal/util"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

type FileController struct {
	Storage *service.StorageService
	Games   *service.GameService
}

func NewFileController(storage *service.StorageService, games *service.GameService) *FileController {
	return &FileController{Storage: storage, Games: games}
}

// Download godoc
// @Summary 下载存储文件
// @Description 只能下载有权访问的构建文件（免费、本人开发或已购买）。本地存储直接返回文件，对象存储重定向到签名地址。浏览器可用 ?token= 传递令牌。
// @Tags 文件
// @Security BearerAuth
// @Param id query string true "文件ID"
// @Success 200 {file} binary
// @Success 302 {string} string "签名地址"
// @Failure 401 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/files [get]
func (c *FileController) Download(ctx *gin.Context) {
	fileID := ctx.Query("id")
	if fileID == "" {
		util.BadRequest(ctx, "id is required")
		return
	}

	p := service.PrincipalFromClaims(util.GetUserFromContext(ctx))
	if err := c.Games.AuthorizeFile(p, fileID); err != nil {
		util.HandleError(ctx, err)
		return
	}

	loc, err := c.Storage.Locate(ctx.Request.Context(), fileID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, service.ErrInvalidFileID) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	if loc.URL != "" {
		ctx.Redirect(http.StatusFound, loc.URL)
		return
	}
	ctx.FileAttachment(loc.Path, filepath.Base(loc.Path))
}
