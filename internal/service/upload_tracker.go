package service

import (
	"context"
	"errors"
	"fmt"
	"gamehub_backend/internal/config"
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/util"
	"gamehub_backend/pkg/logger"
	"gamehub_backend/pkg/monitoring"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	subscriberBuffer    = 32
	mirrorWriteTimeout  = 2 * time.Second
	maxProgressInFlight = 99
)

// Principal 已认证的调用者，由 JWT claims 构造后显式传入
type Principal struct {
	UserID uint
	Name   string
	Email  string
}

func PrincipalFromClaims(c *util.Claims) Principal {
	if c == nil {
		return Principal{}
	}
	return Principal{UserID: c.UserID, Name: c.Name, Email: c.Email}
}

func (p Principal) Authenticated() bool {
	return p.UserID != 0
}

// BuildLinker 把完成的上传写成游戏构建记录
type BuildLinker interface {
	FindByID(id string) (*model.Game, error)
	AttachBuilds(ctx context.Context, gameID string, builds []model.GameBuild) error
}

// ProgressMirror 上传快照的外部副本（Redis），可为空
type ProgressMirror interface {
	Save(ctx context.Context, userID uint, unit model.UploadUnit) error
	Delete(ctx context.Context, userID uint, unitID string) error
}

type UploadPolicy struct {
	MaxSize      int64
	Extensions   []string
	ContentTypes []string
}

func UploadPolicyFromConfig(cfg config.UploadConfig) UploadPolicy {
	return UploadPolicy{
		MaxSize:      cfg.MaxFileSize(),
		Extensions:   slices.Clone(cfg.AllowedExtensions),
		ContentTypes: slices.Clone(cfg.AllowedContentTypes),
	}
}

func (p UploadPolicy) Check(file UploadFile, platform model.Platform) error {
	switch {
	case !platform.Valid():
		return fmt.Errorf("%w: unknown platform %q", util.ErrValidationRejected, platform)
	case file.Size() <= 0:
		return fmt.Errorf("%w: file is empty", util.ErrValidationRejected)
	case file.Size() > p.MaxSize:
		return fmt.Errorf("%w: file exceeds %d MB", util.ErrValidationRejected, p.MaxSize/util.MiB)
	case !util.HasAllowedExtension(file.Name(), p.Extensions) &&
		!util.HasAllowedContentType(file.ContentType(), p.ContentTypes):
		return fmt.Errorf("%w: unsupported file type %q", util.ErrValidationRejected, file.ContentType())
	}
	return nil
}

type FinalizeResult struct {
	Builds  []model.GameBuild  `json:"builds"`
	Pending []model.UploadUnit `json:"pending"`
}

type uploadUnit struct {
	snap   model.UploadUnit
	file   UploadFile
	cancel context.CancelFunc
}

// UploadTracker 跟踪一个用户的多平台构建上传。
// 传输在各自的 goroutine 中进行，只能通过 tracker 的方法修改自己的条目；
// 条目按 ID 和指针同时比对，被移除的单元的迟到回调一律忽略。
type UploadTracker struct {
	principal Principal
	storage   *StorageService
	linker    BuildLinker
	mirror    ProgressMirror

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	policy  UploadPolicy
	units   map[string]*uploadUnit
	subs    map[int]chan model.UploadEvent
	nextSub int
	closed  bool
}

func NewUploadTracker(principal Principal, storage *StorageService, linker BuildLinker, mirror ProgressMirror, policy UploadPolicy) *UploadTracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &UploadTracker{
		principal: principal,
		storage:   storage,
		linker:    linker,
		mirror:    mirror,
		ctx:       ctx,
		cancel:    cancel,
		policy:    policy,
		units:     make(map[string]*uploadUnit),
		subs:      make(map[int]chan model.UploadEvent),
	}
}

func (t *UploadTracker) SetPolicy(policy UploadPolicy) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.policy = policy
}

// Validate 按当前策略校验文件，不创建单元
func (t *UploadTracker) Validate(file UploadFile, platform model.Platform) error {
	t.mu.Lock()
	policy := t.policy
	t.mu.Unlock()
	return policy.Check(file, platform)
}

// StartUpload 同步校验，通过后在后台开始传输并返回单元 ID
func (t *UploadTracker) StartUpload(file UploadFile, platform model.Platform) (string, error) {
	t.mu.Lock()
	policy := t.policy
	closed := t.closed
	t.mu.Unlock()

	if closed {
		release(file)
		return "", fmt.Errorf("%w: upload session closed", util.ErrTransferFailed)
	}
	if err := policy.Check(file, platform); err != nil {
		release(file)
		monitoring.UploadTransitions.WithLabelValues(string(platform), string(model.UploadRejected)).Inc()
		logger.Log.Info("Upload rejected",
			zap.Uint("userId", t.principal.UserID),
			zap.String("file", file.Name()),
			zap.Error(err),
		)
		return "", err
	}

	ctx, cancel := context.WithCancel(t.ctx)
	now := time.Now()
	u := &uploadUnit{
		snap: model.UploadUnit{
			ID:          uuid.NewString(),
			Platform:    platform,
			FileName:    file.Name(),
			FileSize:    file.Size(),
			ContentType: file.ContentType(),
			State:       model.UploadUploading,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		file:   file,
		cancel: cancel,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		release(file)
		return "", fmt.Errorf("%w: upload session closed", util.ErrTransferFailed)
	}
	t.units[u.snap.ID] = u
	snap := u.snap
	t.emitLocked(snap)
	t.wg.Add(1)
	t.mu.Unlock()
	t.mirrorSave(snap)

	monitoring.UploadTransitions.WithLabelValues(string(platform), string(model.UploadUploading)).Inc()
	go t.transfer(ctx, u)
	return snap.ID, nil
}

func (t *UploadTracker) transfer(ctx context.Context, u *uploadUnit) {
	defer t.wg.Done()
	defer release(u.file)
	monitoring.ActiveUploads.Inc()
	defer monitoring.ActiveUploads.Dec()

	rc, err := u.file.Open()
	if err != nil {
		t.fail(u, err)
		return
	}
	defer rc.Close()

	total := u.snap.FileSize
	reader := &progressReader{ctx: ctx, r: rc, onRead: func(read int64) {
		t.progress(u, int(read*100/total))
	}}

	objectName := BuildObjectName(u.snap.Platform, u.snap.FileName)
	fileID, err := t.storage.Upload(ctx, objectName, reader, total, u.snap.ContentType)
	if err != nil {
		if ctx.Err() != nil {
			t.storage.DeleteQuietly(context.Background(), objectName)
			return
		}
		t.fail(u, err)
		return
	}
	t.complete(u, fileID)
}

func (t *UploadTracker) progress(u *uploadUnit, percent int) {
	percent = min(percent, maxProgressInFlight)

	t.mu.Lock()
	if t.units[u.snap.ID] != u || u.snap.State != model.UploadUploading || percent <= u.snap.Progress {
		t.mu.Unlock()
		return
	}
	u.snap.Progress = percent
	u.snap.UpdatedAt = time.Now()
	snap := u.snap
	t.emitLocked(snap)
	t.mu.Unlock()
	t.mirrorSave(snap)
}

func (t *UploadTracker) complete(u *uploadUnit, fileID string) {
	t.mu.Lock()
	if t.units[u.snap.ID] != u {
		t.mu.Unlock()
		// 单元已被移除，传输迟到完成
		t.storage.DeleteQuietly(context.Background(), fileID)
		return
	}
	u.snap.State = model.UploadCompleted
	u.snap.Progress = 100
	u.snap.StorageFileID = fileID
	u.snap.DownloadURL = t.storage.DownloadURL(fileID)
	u.snap.UpdatedAt = time.Now()
	u.cancel = nil
	snap := u.snap
	t.emitLocked(snap)
	t.mu.Unlock()

	monitoring.UploadTransitions.WithLabelValues(string(snap.Platform), string(model.UploadCompleted)).Inc()
	monitoring.UploadBytes.Add(float64(snap.FileSize))
	t.mirrorSave(snap)
}

func (t *UploadTracker) fail(u *uploadUnit, cause error) {
	err := fmt.Errorf("%w: %v", util.ErrTransferFailed, cause)

	t.mu.Lock()
	if t.units[u.snap.ID] != u {
		t.mu.Unlock()
		return
	}
	u.snap.State = model.UploadFailed
	u.snap.Progress = 0
	u.snap.Error = err.Error()
	u.snap.UpdatedAt = time.Now()
	u.cancel = nil
	snap := u.snap
	t.emitLocked(snap)
	t.mu.Unlock()

	monitoring.UploadTransitions.WithLabelValues(string(snap.Platform), string(model.UploadFailed)).Inc()
	logger.Log.Warn("Upload failed",
		zap.Uint("userId", t.principal.UserID),
		zap.String("unitId", snap.ID),
		zap.String("platform", string(snap.Platform)),
		zap.Error(cause),
	)
	t.mirrorSave(snap)
}

// RemoveUpload 任意状态下移除单元；进行中的传输被取消，远端残留对象尽力删除
func (t *UploadTracker) RemoveUpload(unitID string) error {
	t.mu.Lock()
	u, ok := t.units[unitID]
	if !ok {
		t.mu.Unlock()
		return util.ErrUploadNotFound
	}
	delete(t.units, unitID)
	cancel := u.cancel
	snap := u.snap
	t.emitLocked(model.UploadUnit{ID: snap.ID, Platform: snap.Platform, State: model.UploadRemoved, UpdatedAt: time.Now()})
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if snap.State == model.UploadCompleted {
		t.storage.DeleteQuietly(context.Background(), snap.StorageFileID)
	}
	t.mirrorDelete(unitID)
	return nil
}

func (t *UploadTracker) Get(unitID string) (model.UploadUnit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.units[unitID]
	if !ok {
		return model.UploadUnit{}, util.ErrUploadNotFound
	}
	return u.snap, nil
}

func (t *UploadTracker) List() []model.UploadUnit {
	t.mu.Lock()
	out := make([]model.UploadUnit, 0, len(t.units))
	for _, u := range t.units {
		out = append(out, u.snap)
	}
	t.mu.Unlock()

	slices.SortFunc(out, func(a, b model.UploadUnit) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// CheckComplete 返回缺少已完成上传的平台；仅作提示，Finalize 不强制
func (t *UploadTracker) CheckComplete(platforms []model.Platform) error {
	done := make(map[model.Platform]bool)
	for _, u := range t.List() {
		if u.State == model.UploadCompleted {
			done[u.Platform] = true
		}
	}

	var missing []string
	for _, p := range platforms {
		if !done[p] && !slices.Contains(missing, string(p)) {
			missing = append(missing, string(p))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", util.ErrFinalizeIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

// Finalize 把所有已完成的单元写成游戏的构建记录。未完成的单元保留在 tracker 中，
// 通过 Pending 返回。写库失败时单元原样放回。
func (t *UploadTracker) Finalize(ctx context.Context, gameID string) (*FinalizeResult, error) {
	if !t.principal.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	game, err := t.linker.FindByID(gameID)
	if err != nil {
		return nil, err
	}
	if game.DeveloperID != t.principal.UserID {
		return nil, util.ErrPermissionDenied
	}

	t.mu.Lock()
	var claimed []*uploadUnit
	result := &FinalizeResult{Builds: []model.GameBuild{}, Pending: []model.UploadUnit{}}
	for id, u := range t.units {
		if u.snap.State == model.UploadCompleted {
			claimed = append(claimed, u)
			delete(t.units, id)
		} else {
			result.Pending = append(result.Pending, u.snap)
		}
	}
	t.mu.Unlock()

	slices.SortFunc(claimed, func(a, b *uploadUnit) int { return a.snap.CreatedAt.Compare(b.snap.CreatedAt) })
	slices.SortFunc(result.Pending, func(a, b model.UploadUnit) int { return a.CreatedAt.Compare(b.CreatedAt) })

	now := time.Now()
	for _, u := range claimed {
		result.Builds = append(result.Builds, model.GameBuild{
			GameID:        gameID,
			CreatorID:     t.principal.UserID,
			FileName:      u.snap.FileName,
			FileSize:      u.snap.FileSize,
			Platform:      u.snap.Platform,
			Version:       model.DefaultBuildVersion,
			UploadedAt:    now,
			StorageFileID: u.snap.StorageFileID,
			DownloadURL:   u.snap.DownloadURL,
		})
	}

	if err := t.linker.AttachBuilds(ctx, gameID, result.Builds); err != nil {
		t.mu.Lock()
		for _, u := range claimed {
			t.units[u.snap.ID] = u
		}
		t.mu.Unlock()
		if errors.Is(err, util.ErrGameNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("attach builds: %w", err)
	}

	t.mu.Lock()
	for _, u := range claimed {
		t.emitLocked(model.UploadUnit{ID: u.snap.ID, Platform: u.snap.Platform, State: model.UploadFinalized, Progress: 100, UpdatedAt: now})
	}
	t.mu.Unlock()
	for _, u := range claimed {
		t.mirrorDelete(u.snap.ID)
	}

	logger.Log.Info("Builds attached",
		zap.String("gameId", gameID),
		zap.Uint("userId", t.principal.UserID),
		zap.Int("builds", len(result.Builds)),
		zap.Int("pending", len(result.Pending)),
	)
	return result, nil
}

// Subscribe 订阅状态与进度变化。消费过慢时事件会被丢弃，可用 List 重新同步。
func (t *UploadTracker) Subscribe() (<-chan model.UploadEvent, func()) {
	ch := make(chan model.UploadEvent, subscriberBuffer)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if _, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(ch)
			}
		})
	}
}

func (t *UploadTracker) emitLocked(snap model.UploadUnit) {
	ev := model.UploadEvent{
		UnitID:   snap.ID,
		Platform: snap.Platform,
		State:    snap.State,
		Progress: snap.Progress,
		Error:    snap.Error,
		At:       snap.UpdatedAt,
	}
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (t *UploadTracker) mirrorSave(snap model.UploadUnit) {
	if t.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
	defer cancel()
	if err := t.mirror.Save(ctx, t.principal.UserID, snap); err != nil {
		logger.Log.Debug("Upload progress mirror write failed", zap.String("unitId", snap.ID), zap.Error(err))
	}
}

func (t *UploadTracker) mirrorDelete(unitID string) {
	if t.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
	defer cancel()
	if err := t.mirror.Delete(ctx, t.principal.UserID, unitID); err != nil {
		logger.Log.Debug("Upload progress mirror delete failed", zap.String("unitId", unitID), zap.Error(err))
	}
}

// Close 取消所有进行中的传输并关闭订阅
func (t *UploadTracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()

	t.mu.Lock()
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	t.mu.Unlock()
}

func release(file UploadFile) {
	if r, ok := file.(releasable); ok {
		if err := r.Release(); err != nil {
			logger.Log.Debug("Failed to release upload file", zap.String("file", file.Name()), zap.Error(err))
		}
	}
}

// progressReader 统计已读字节；ctx 取消后立即返回错误以中断传输
type progressReader struct {
	ctx    context.Context
	r      io.Reader
	read   int64
	onRead func(read int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.onRead(p.read)
	}
	return n, err
}
