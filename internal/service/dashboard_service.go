package service

import (
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/repository"
)

type DashboardService struct {
	GameRepo    *repository.GameRepository
	LibraryRepo *repository.LibraryRepository
}

func NewDashboardService(gameRepo *repository.GameRepository, libraryRepo *repository.LibraryRepository) *DashboardService {
	return &DashboardService{
		GameRepo:    gameRepo,
		LibraryRepo: libraryRepo,
	}
}

type Dashboard struct {
	Projects []model.Game   `json:"projects"`
	Library  []LibraryItem  `json:"library"`
	Stats    DashboardStats `json:"stats"`
}

type LibraryItem struct {
	Game  model.Game         `json:"game"`
	Entry model.LibraryEntry `json:"entry"`
}

type DashboardStats struct {
	TotalProjects  int   `json:"totalProjects"`
	Published      int   `json:"published"`
	Drafts         int   `json:"drafts"`
	TotalDownloads int64 `json:"totalDownloads"`
	LibrarySize    int   `json:"librarySize"`
}

// GetUserDashboard 开发者自己的项目（全部状态）及其游戏库
func (s *DashboardService) GetUserDashboard(userID uint) (*Dashboard, error) {
	projects, err := s.GameRepo.FindByDeveloper(userID)
	if err != nil {
		return nil, err
	}

	entries, err := s.LibraryRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.GameID)
	}
	games, err := s.GameRepo.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Game, len(games))
	for _, g := range games {
		byID[g.ID] = g
	}

	dashboard := &Dashboard{
		Projects: projects,
		Library:  make([]LibraryItem, 0, len(entries)),
	}
	for _, e := range entries {
		// 游戏已被删除的条目不展示
		g, ok := byID[e.GameID]
		if !ok {
			continue
		}
		dashboard.Library = append(dashboard.Library, LibraryItem{Game: g, Entry: e})
	}

	dashboard.Stats.TotalProjects = len(projects)
	dashboard.Stats.LibrarySize = len(dashboard.Library)
	for _, p := range projects {
		switch p.Status {
		case model.StatusPublished:
			dashboard.Stats.Published++
		case model.StatusDraft:
			dashboard.Stats.Drafts++
		}
		dashboard.Stats.TotalDownloads += p.DownloadCount
	}
	return dashboard, nil
}
