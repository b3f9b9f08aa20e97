package service

import (
	"context"
	"errors"
	"fmt"
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/repository"
	"gamehub_backend/internal/util"
	"gamehub_backend/pkg/logger"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const downloadDedupeWindow = 10 * time.Minute

// GameInput 创建/更新游戏时可写的字段
type GameInput struct {
	Title            string
	ShortDescription string
	FullDescription  string
	Genre            model.Genre
	Platforms        []model.Platform
	Tags             []string
	CoverImageURL    string
	Screenshots      []string
	Price            float64
	IsFree           bool
	Visibility       model.Visibility
}

type GameDetail struct {
	model.Game
	IsPurchased bool `json:"isPurchased"`
	IsOwner     bool `json:"isOwner"`
}

type DownloadInfo struct {
	BuildID  string         `json:"buildId"`
	FileName string         `json:"fileName"`
	FileSize int64          `json:"fileSize"`
	Platform model.Platform `json:"platform"`
	URL      string         `json:"downloadUrl"`
}

type GameService struct {
	GameRepo    *repository.GameRepository
	BuildRepo   *repository.GameBuildRepository
	LibraryRepo *repository.LibraryRepository
	UserRepo    *repository.UserRepository
	Storage     *StorageService
	// 为 nil 时不做下载去重
	Redis *redis.Client
}

func NewGameService(
	gameRepo *repository.GameRepository,
	buildRepo *repository.GameBuildRepository,
	libraryRepo *repository.LibraryRepository,
	userRepo *repository.UserRepository,
	storage *StorageService,
	rdb *redis.Client,
) *GameService {
	return &GameService{
		GameRepo:    gameRepo,
		BuildRepo:   buildRepo,
		LibraryRepo: libraryRepo,
		UserRepo:    userRepo,
		Storage:     storage,
		Redis:       rdb,
	}
}

func (in *GameInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		return fmt.Errorf("%w: title is required", util.ErrInvalidGame)
	case utf8.RuneCountInString(in.ShortDescription) > model.MaxShortDescription:
		return fmt.Errorf("%w: short description exceeds %d characters", util.ErrInvalidGame, model.MaxShortDescription)
	case utf8.RuneCountInString(in.FullDescription) > model.MaxFullDescription:
		return fmt.Errorf("%w: full description exceeds %d characters", util.ErrInvalidGame, model.MaxFullDescription)
	case !in.Genre.Valid():
		return fmt.Errorf("%w: unknown genre %q", util.ErrInvalidGame, in.Genre)
	case len(in.Platforms) == 0:
		return fmt.Errorf("%w: at least one platform is required", util.ErrInvalidGame)
	case in.Price < 0:
		return fmt.Errorf("%w: price must not be negative", util.ErrInvalidGame)
	}
	if in.Visibility == "" {
		in.Visibility = model.VisibilityPublic
	}
	if !in.Visibility.Valid() {
		return fmt.Errorf("%w: unknown visibility %q", util.ErrInvalidGame, in.Visibility)
	}

	var platforms []model.Platform
	for _, p := range in.Platforms {
		if !p.Valid() {
			return fmt.Errorf("%w: unknown platform %q", util.ErrInvalidGame, p)
		}
		if !slices.Contains(platforms, p) {
			platforms = append(platforms, p)
		}
	}
	in.Platforms = platforms

	tags := []string{}
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	in.Tags = tags

	if in.IsFree {
		in.Price = 0
	}
	return nil
}

func (in *GameInput) apply(g *model.Game) {
	g.Title = in.Title
	g.ShortDescription = in.ShortDescription
	g.FullDescription = in.FullDescription
	g.Genre = in.Genre
	g.Platforms = in.Platforms
	g.Tags = in.Tags
	g.CoverImageURL = in.CoverImageURL
	g.Screenshots = in.Screenshots
	g.Price = in.Price
	g.IsFree = in.IsFree
	g.Visibility = in.Visibility
}

// Create 公开可见直接发布，否则存为草稿；开发者名称取自账号资料
func (s *GameService) Create(p Principal, in GameInput) (*model.Game, error) {
	if !p.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	developer := p.Name
	if user, err := s.UserRepo.FindByID(p.UserID); err == nil && user.Name != "" {
		developer = user.Name
	}

	game := &model.Game{
		Developer:   developer,
		DeveloperID: p.UserID,
		Status:      in.Visibility.InitialStatus(),
	}
	in.apply(game)
	if game.Screenshots == nil {
		game.Screenshots = []string{}
	}

	if err := s.GameRepo.Create(game); err != nil {
		return nil, err
	}
	logger.Log.Info("Game created",
		zap.String("gameId", game.ID),
		zap.Uint("developerId", p.UserID),
		zap.String("status", string(game.Status)),
	)
	return game, nil
}

func (s *GameService) ownedGame(p Principal, id string) (*model.Game, error) {
	if !p.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	game, err := s.GameRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if game.DeveloperID != p.UserID {
		return nil, util.ErrPermissionDenied
	}
	return game, nil
}

func (s *GameService) Update(p Principal, id string, in GameInput) (*model.Game, error) {
	game, err := s.ownedGame(p, id)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	in.apply(game)
	if err := s.GameRepo.Update(game); err != nil {
		return nil, err
	}
	return s.GameRepo.FindByID(id)
}

func (s *GameService) UpdateStatus(p Principal, id string, status model.GameStatus) (*model.Game, error) {
	game, err := s.ownedGame(p, id)
	if err != nil {
		return nil, err
	}
	if !game.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", util.ErrInvalidStatusTransition, game.Status, status)
	}
	if game.Status == status {
		return game, nil
	}
	if err := s.GameRepo.UpdateStatus(id, status); err != nil {
		return nil, err
	}
	game.Status = status
	return game, nil
}

// Delete 级联删除构建记录和库条目；存储对象尽力删除，失败仅记录日志
func (s *GameService) Delete(ctx context.Context, p Principal, id string) error {
	if _, err := s.ownedGame(p, id); err != nil {
		return err
	}
	fileIDs, err := s.GameRepo.Delete(id)
	if err != nil {
		return err
	}
	s.Storage.DeleteQuietly(ctx, fileIDs...)
	logger.Log.Info("Game deleted", zap.String("gameId", id), zap.Int("builds", len(fileIDs)))
	return nil
}

// GetDetail 未发布的游戏只对开发者本人可见；下载地址只给有权下载的调用方
func (s *GameService) GetDetail(p Principal, id string) (*GameDetail, error) {
	game, err := s.GameRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	owner := p.Authenticated() && game.DeveloperID == p.UserID
	if game.Status != model.StatusPublished && !owner {
		return nil, util.ErrGameNotFound
	}

	detail := &GameDetail{IsOwner: owner}
	if p.Authenticated() {
		detail.IsPurchased, err = s.LibraryRepo.Has(p.UserID, id)
		if err != nil {
			return nil, err
		}
	}

	builds, err := s.BuildRepo.FindByGameID(id)
	if err != nil {
		return nil, err
	}
	if game.IsFree || owner || detail.IsPurchased {
		for i := range builds {
			builds[i].DownloadURL = s.Storage.DownloadURL(builds[i].StorageFileID)
		}
	}
	game.Builds = builds
	detail.Game = *game
	return detail, nil
}

// checkAccess 付费游戏只有开发者本人或已购买的用户可以下载
func (s *GameService) checkAccess(p Principal, game *model.Game) error {
	owner := game.DeveloperID == p.UserID
	if game.Status != model.StatusPublished && !owner {
		return util.ErrGameNotFound
	}
	if game.IsFree || owner {
		return nil
	}
	owned, err := s.LibraryRepo.Has(p.UserID, game.ID)
	if err != nil {
		return err
	}
	if !owned {
		return util.ErrNotPurchased
	}
	return nil
}

// AuthorizeFile 文件下载前的鉴权：按存储文件 ID 找到构建及其游戏，规则与 Download 一致
func (s *GameService) AuthorizeFile(p Principal, fileID string) error {
	if !p.Authenticated() {
		return util.ErrUnauthorized
	}
	build, err := s.BuildRepo.FindByStorageFileID(fileID)
	if err != nil {
		return err
	}
	game, err := s.GameRepo.FindByID(build.GameID)
	if err != nil {
		return err
	}
	return s.checkAccess(p, game)
}

// Download 校验购买状态，累计下载次数并维护用户库
func (s *GameService) Download(ctx context.Context, p Principal, gameID, buildID string) (*DownloadInfo, error) {
	if !p.Authenticated() {
		return nil, util.ErrUnauthorized
	}
	game, err := s.GameRepo.FindByID(gameID)
	if err != nil {
		return nil, err
	}
	if err := s.checkAccess(p, game); err != nil {
		return nil, err
	}

	build, err := s.BuildRepo.FindByID(gameID, buildID)
	if err != nil {
		return nil, err
	}

	if s.firstDownloadInWindow(ctx, gameID, p.UserID) {
		if err := s.GameRepo.IncrementDownload(gameID); err != nil {
			return nil, err
		}
	}
	if err := s.LibraryRepo.RecordDownload(p.UserID, gameID, game.IsFree); err != nil {
		return nil, err
	}

	return &DownloadInfo{
		BuildID:  build.ID,
		FileName: build.FileName,
		FileSize: build.FileSize,
		Platform: build.Platform,
		URL:      s.Storage.DownloadURL(build.StorageFileID),
	}, nil
}

func (s *GameService) firstDownloadInWindow(ctx context.Context, gameID string, userID uint) bool {
	if s.Redis == nil {
		return true
	}
	key := fmt.Sprintf("game_download:%s:%d", gameID, userID)
	ok, err := s.Redis.SetNX(ctx, key, "1", downloadDedupeWindow).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Log.Warn("Download dedupe unavailable", zap.String("gameId", gameID), zap.Error(err))
		return true
	}
	return ok
}
