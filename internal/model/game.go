package model

import (
	"gorm.io/datatypes"
)

type Genre string

const (
	GenreAction     Genre = "Action"
	GenreAdventure  Genre = "Adventure"
	GenreRPG        Genre = "RPG"
	GenreStrategy   Genre = "Strategy"
	GenrePuzzle     Genre = "Puzzle"
	GenrePlatformer Genre = "Platformer"
	GenreRacing     Genre = "Racing"
	GenreSimulator  Genre = "Simulator"
	GenreHorror     Genre = "Horror"
	GenreArcade     Genre = "Arcade"
	GenreIndie      Genre = "Indie"
	GenreCasual     Genre = "Casual"
)

var Genres = []Genre{
	GenreAction, GenreAdventure, GenreRPG, GenreStrategy, GenrePuzzle, GenrePlatformer,
	GenreRacing, GenreSimulator, GenreHorror, GenreArcade, GenreIndie, GenreCasual,
}

type Platform string

const (
	PlatformWindows     Platform = "Windows"
	PlatformMac         Platform = "Mac"
	PlatformLinux       Platform = "Linux"
	PlatformAndroid     Platform = "Android"
	PlatformIOS         Platform = "iOS"
	PlatformWeb         Platform = "Web"
	PlatformPlayStation Platform = "PlayStation"
	PlatformXbox        Platform = "Xbox"
	PlatformSwitch      Platform = "Nintendo Switch"
)

var Platforms = []Platform{
	PlatformWindows, PlatformMac, PlatformLinux, PlatformAndroid, PlatformIOS,
	PlatformWeb, PlatformPlayStation, PlatformXbox, PlatformSwitch,
}

type GameStatus string

const (
	StatusDraft     GameStatus = "draft"
	StatusPublished GameStatus = "published"
	StatusRejected  GameStatus = "rejected"
)

type Visibility string

const (
	VisibilityPublic        Visibility = "public"
	VisibilityPrivate       Visibility = "private"
	VisibilityCompaniesOnly Visibility = "companies-only"
)

const (
	MaxShortDescription = 300
	MaxFullDescription  = 5000
	MaxRating           = 5
)

// 允许的状态流转，rejected 为终态
var statusTransitions = map[GameStatus][]GameStatus{
	StatusDraft:     {StatusPublished, StatusRejected},
	StatusPublished: {StatusDraft},
}

// Game 游戏条目。Builds 只在读取时按 game_id 查询填充，不落在 games 表上。
// swagger:model Game
type Game struct {
	UUIDModel
	Title            string                        `gorm:"size:255;not null" json:"title"`
	Developer        string                        `gorm:"size:100" json:"developer"`
	DeveloperID      uint                          `gorm:"index;type:bigint unsigned" json:"developerId"`
	ShortDescription string                        `gorm:"size:300" json:"shortDescription"`
	FullDescription  string                        `gorm:"type:text" json:"fullDescription"`
	Genre            Genre                         `gorm:"size:50;index" json:"genre"`
	Platforms        datatypes.JSONSlice[Platform] `json:"platforms"`
	Tags             datatypes.JSONSlice[string]   `json:"tags"`
	CoverImageURL    string                        `gorm:"size:255" json:"coverImageUrl"`
	Screenshots      datatypes.JSONSlice[string]   `json:"screenshots"`
	Price            float64                       `gorm:"default:0" json:"price"`
	IsFree           bool                          `gorm:"index;default:false" json:"isFree"`
	Status           GameStatus                    `gorm:"size:20;index;default:'draft'" json:"status"`
	Visibility       Visibility                    `gorm:"size:20;default:'public'" json:"visibility"`
	Rating           float64                       `gorm:"default:0" json:"rating"`
	DownloadCount    int64                         `gorm:"default:0" json:"downloadCount"`
	Builds           []GameBuild                   `gorm:"foreignKey:GameID" json:"builds,omitempty"`
}

func (Game) TableName() string {
	return "games"
}

func (g Genre) Valid() bool {
	for _, v := range Genres {
		if v == g {
			return true
		}
	}
	return false
}

func (p Platform) Valid() bool {
	for _, v := range Platforms {
		if v == p {
			return true
		}
	}
	return false
}

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate || v == VisibilityCompaniesOnly
}

// InitialStatus 公开提交直接发布，其余保存为草稿
func (v Visibility) InitialStatus() GameStatus {
	if v == VisibilityPublic {
		return StatusPublished
	}
	return StatusDraft
}

func (s GameStatus) CanTransitionTo(next GameStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (g *Game) HasTag(tag string) bool {
	for _, t := range g.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (g *Game) SupportsPlatform(p Platform) bool {
	for _, v := range g.Platforms {
		if v == p {
			return true
		}
	}
	return false
}
