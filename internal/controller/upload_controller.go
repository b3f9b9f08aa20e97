package controller

import (
	"errors"
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/service"
	"gamehub_backend/internal/util"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UploadController struct {
	Sessions *service.UploadSessions
	TempDir  string
}

func NewUploadController(sessions *service.UploadSessions, tempDir string) *UploadController {
	return &UploadController{Sessions: sessions, TempDir: tempDir}
}

// headerFile 仅用于落盘前的校验
type headerFile struct {
	fh *multipart.FileHeader
}

func (f headerFile) Name() string                 { return f.fh.Filename }
func (f headerFile) Size() int64                  { return f.fh.Size }
func (f headerFile) ContentType() string          { return f.fh.Header.Get("Content-Type") }
func (f headerFile) Open() (io.ReadCloser, error) { return f.fh.Open() }

func (c *UploadController) tracker(ctx *gin.Context) (*service.UploadTracker, bool) {
	principal := service.PrincipalFromClaims(util.GetUserFromContext(ctx))
	t, err := c.Sessions.For(principal)
	if err != nil {
		util.HandleError(ctx, err)
		return nil, false
	}
	return t, true
}

// StartUpload godoc
// @Summary 上传构建文件
// @Description 同步校验后在后台传输，返回上传单元ID；进度通过轮询或事件流获取
// @Tags 上传
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "构建文件 (.zip/.exe/.apk)"
// @Param platform formData string true "平台"
// @Success 202 {object} util.Response{data=object}
// @Failure 422 {object} util.Response "文件校验未通过"
// @Router /api/uploads [post]
func (c *UploadController) StartUpload(ctx *gin.Context) {
	t, ok := c.tracker(ctx)
	if !ok {
		return
	}

	fh, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	platform := model.Platform(ctx.PostForm("platform"))

	if err := t.Validate(headerFile{fh}, platform); err != nil {
		util.HandleError(ctx, err)
		return
	}

	if err := os.MkdirAll(c.TempDir, 0755); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	tmpPath := filepath.Join(c.TempDir, uuid.NewString()+filepath.Ext(fh.Filename))
	if err := ctx.SaveUploadedFile(fh, tmpPath); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	unitID, err := t.StartUpload(&service.LocalUploadFile{
		Path:     tmpPath,
		Filename: util.SanitizeFilename(fh.Filename),
		MIMEType: fh.Header.Get("Content-Type"),
		Bytes:    fh.Size,
	}, platform)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Accepted(ctx, gin.H{"unitId": unitID})
}

// ListUploads godoc
// @Summary 当前用户的上传单元
// @Tags 上传
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.UploadUnit}
// @Router /api/uploads [get]
func (c *UploadController) ListUploads(ctx *gin.Context) {
	t, ok := c.tracker(ctx)
	if !ok {
		return
	}
	util.Success(ctx, t.List())
}

// GetUpload godoc
// @Summary 上传单元详情
// @Tags 上传
// @Produce json
// @Security BearerAuth
// @Param unitId path string true "上传单元ID"
// @Success 200 {object} util.Response{data=model.UploadUnit}
// @Failure 404 {object} util.Response
// @Router /api/uploads/{unitId} [get]
func (c *UploadController) GetUpload(ctx *gin.Context) {
	t, ok := c.tracker(ctx)
	if !ok {
		return
	}
	unit, err := t.Get(ctx.Param("unitId"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, unit)
}

// RemoveUpload godoc
// @Summary 移除上传单元
// @Description 任意状态均可移除，进行中的传输会被取消
// @Tags 上传
// @Produce json
// @Security BearerAuth
// @Param unitId path string true "上传单元ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/uploads/{unitId} [delete]
func (c *UploadController) RemoveUpload(ctx *gin.Context) {
	t, ok := c.tracker(ctx)
	if !ok {
		return
	}
	if err := t.RemoveUpload(ctx.Param("unitId")); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// Events godoc
// @Summary 上传事件流
// @Description Server-Sent Events：先推送一次 snapshot，之后推送每次状态与进度变化
// @Tags 上传
// @Produce text/event-stream
// @Security BearerAuth
// @Router /api/uploads/events [get]
func (c *UploadController) Events(ctx *gin.Context) {
	t, ok := c.tracker(ctx)
	if !ok {
		return
	}

	events, cancel := t.Subscribe()
	defer cancel()

	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("X-Accel-Buffering", "no")
	ctx.SSEvent("snapshot", t.List())
	ctx.Writer.Flush()

	ctx.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			ctx.SSEvent("upload", ev)
			return true
		}
	})
}

// Stream godoc
// @Summary 上传事件 WebSocket
// @Description 连接后先收到 SNAPSHOT，之后收到 UPLOAD 事件；可发送 {"type":"SNAPSHOT"} 重新同步，{"type":"REMOVE","unitId":"..."} 取消上传。浏览器可用 ?token= 传递令牌。
// @Tags 上传
// @Security BearerAuth
// @Router /api/uploads/ws [get]
func (c *UploadController) Stream(ctx *gin.Context) {
	t, ok := c.tracker(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	service.ServeUploadWs(t, ctx.Writer, ctx.Request, claims.UserID)
}

// CheckComplete godoc
// @Summary 检查各平台是否都有已完成的上传
// @Description 仅作提示，不阻止 finalize
// @Tags 上传
// @Produce json
// @Security BearerAuth
// @Param platforms query string true "平台，逗号分隔"
// @Success 200 {object} util.Response{data=object}
// @Router /api/uploads/check [get]
func (c *UploadController) CheckComplete(ctx *gin.Context) {
	t, ok := c.tracker(ctx)
	if !ok {
		return
	}

	var platforms []model.Platform
	for _, raw := range util.SplitCSV(ctx.Query("platforms")) {
		p := model.Platform(raw)
		if !p.Valid() {
			util.BadRequest(ctx, "unknown platform: "+raw)
			return
		}
		platforms = append(platforms, p)
	}

	err := t.CheckComplete(platforms)
	switch {
	case err == nil:
		util.Success(ctx, gin.H{"complete": true})
	case errors.Is(err, util.ErrFinalizeIncomplete):
		util.Success(ctx, gin.H{"complete": false, "warning": err.Error()})
	default:
		util.HandleError(ctx, err)
	}
}

// Finalize godoc
// @Summary 将已完成的上传写入游戏构建
// @Description 仅游戏开发者可调用；未完成的上传保留并在 pending 中返回
// @Tags 上传
// @Produce json
// @Security BearerAuth
// @Param id path string true "游戏ID"
// @Success 200 {object} util.Response{data=service.FinalizeResult}
// @Failure 403 {object} util.Response
// @Router /api/games/{id}/finalize [post]
func (c *UploadController) Finalize(ctx *gin.Context) {
	t, ok := c.tracker(ctx)
	if !ok {
		return
	}
	result, err := t.Finalize(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
