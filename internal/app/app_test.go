package app

import (
	"bufio"
	"bytes"
	"encoding/json"
	"gamehub_backend/internal/config"
	"gamehub_backend/internal/service"
	"gamehub_backend/internal/testutil"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t     *testing.T
	app   *App
	token string
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	cfg := &config.Config{
		Server:  config.ServerConfig{Port: "0", Mode: gin.TestMode},
		JWT:     config.JWTConfig{Secret: "integration-test-secret", ExpireTime: time.Hour},
		Catalog: config.CatalogConfig{DefaultPageSize: 12, MaxPageSize: 100},
		Storage: config.StorageConfig{
			Type:          "local",
			LocalPath:     dir + "/storage",
			PublicHost:    "localhost:8080",
			DownloadRoute: "api/files",
		},
		Upload: config.UploadConfig{
			MaxFileSizeMB:       1,
			AllowedExtensions:   []string{".zip", ".exe", ".apk"},
			AllowedContentTypes: []string{"application/zip"},
			TempDir:             dir + "/tmp",
		},
	}

	a := &App{Config: cfg}
	a.wire(testutil.NewTestDB(t), nil, service.NewStorageService(cfg))
	t.Cleanup(a.services.uploads.Close)
	return &testServer{t: t, app: a}
}

func (s *testServer) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return s.send(req)
}

func (s *testServer) send(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) upload(filename, platform string, content []byte) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(s.t, err)
	_, err = fw.Write(content)
	require.NoError(s.t, err)
	require.NoError(s.t, mw.WriteField("platform", platform))
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(req)
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (s *testServer) login() {
	w, _ := s.do(http.MethodPost, "/api/register", map[string]any{
		"displayName": "Pixel Forge",
		"email":       "dev@example.com",
		"password":    "supersecret",
	})
	require.Equal(s.t, http.StatusCreated, w.Code)

	w, env := s.do(http.MethodPost, "/api/login", map[string]any{
		"email":    "dev@example.com",
		"password": "supersecret",
	})
	require.Equal(s.t, http.StatusOK, w.Code)
	s.token = decode[struct {
		Token string `json:"token"`
	}](s.t, env).Token
	require.NotEmpty(s.t, s.token)
}

func (s *testServer) createGame(body map[string]any) string {
	w, env := s.do(http.MethodPost, "/api/games", body)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[struct {
		ID string `json:"id"`
	}](s.t, env).ID
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	s.login()

	w, env := s.do(http.MethodPost, "/api/register", map[string]any{
		"displayName": "Copycat",
		"email":       "DEV@example.com",
		"password":    "anothersecret",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, http.StatusConflict, env.Code)

	w, _ = s.do(http.MethodPost, "/api/register", map[string]any{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	saved := s.token
	s.token = ""
	w, _ = s.do(http.MethodPost, "/api/login", map[string]any{"email": "dev@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = s.do(http.MethodGet, "/api/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	s.token = saved
	w, env = s.do(http.MethodGet, "/api/profile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode[struct {
		DisplayName string `json:"displayName"`
		UserType    string `json:"userType"`
	}](t, env)
	assert.Equal(t, "Pixel Forge", profile.DisplayName)
	assert.Equal(t, "developer", profile.UserType)
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.login()

	s.createGame(map[string]any{
		"title": "Dungeon Deep", "genre": "RPG", "platforms": []string{"Windows"},
		"isFree": true, "price": 15, "tags": []string{"roguelike"},
	})
	s.createGame(map[string]any{
		"title": "Sky Racer", "genre": "Racing", "platforms": []string{"Android"}, "price": 3.5,
	})
	s.createGame(map[string]any{
		"title": "Secret Project", "genre": "RPG", "platforms": []string{"Linux"}, "visibility": "private",
	})

	w, _ := s.do(http.MethodPost, "/api/games", map[string]any{"title": "Bad", "genre": "Sports", "platforms": []string{"Windows"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.token = ""
	w, env := s.do(http.MethodGet, "/api/games?sortBy=price_low", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Records []struct {
			Title string  `json:"title"`
			Price float64 `json:"price"`
		} `json:"records"`
		NextCursor string `json:"nextCursor"`
	}](t, env)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "Dungeon Deep", page.Records[0].Title)
	assert.Zero(t, page.Records[0].Price)
	assert.Equal(t, "Sky Racer", page.Records[1].Title)
	assert.Empty(t, page.NextCursor)

	w, env = s.do(http.MethodGet, "/api/games?genre=RPG&pageSize=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[struct {
		Records []struct {
			Title string  `json:"title"`
			Price float64 `json:"price"`
		} `json:"records"`
		NextCursor string `json:"nextCursor"`
	}](t, env)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "Dungeon Deep", page.Records[0].Title)

	for _, q := range []string{"sortBy=cheapest", "pageSize=0", "priceMin=-1", "rating=6", "isFree=maybe", "cursor=%21%21"} {
		w, env = s.do(http.MethodGet, "/api/games?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		assert.Equal(t, http.StatusBadRequest, env.Code, q)
	}
}

func TestUploadAndFinalizeFlow(t *testing.T) {
	s := newTestServer(t)
	s.login()
	gameID := s.createGame(map[string]any{
		"title": "Star Courier", "genre": "Arcade", "platforms": []string{"Android", "Windows"}, "price": 2,
	})

	// 超过单文件上限但仍在请求体余量内，由校验拒绝
	w, _ := s.upload("huge.zip", "Windows", make([]byte, 3<<19))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w, _ = s.upload("game.dmg", "Mac", []byte("dmg"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	content := bytes.Repeat([]byte("apk!"), 4096)
	w, env := s.upload("star courier.apk", "Android", content)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	unitID := decode[struct {
		UnitID string `json:"unitId"`
	}](t, env).UnitID
	require.NotEmpty(t, unitID)

	require.Eventually(t, func() bool {
		w, env := s.do(http.MethodGet, "/api/uploads/"+unitID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		return decode[struct {
			State string `json:"state"`
		}](t, env).State == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	w, env = s.do(http.MethodGet, "/api/uploads/check?platforms=Android,Windows", nil)
	require.Equal(t, http.StatusOK, w.Code)
	check := decode[struct {
		Complete bool   `json:"complete"`
		Warning  string `json:"warning"`
	}](t, env)
	assert.False(t, check.Complete)
	assert.Contains(t, check.Warning, "Windows")

	w, env = s.do(http.MethodPost, "/api/games/"+gameID+"/finalize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[struct {
		Builds []struct {
			FileName      string `json:"fileName"`
			FileSize      int64  `json:"fileSize"`
			StorageFileID string `json:"storageFileId"`
		} `json:"builds"`
	}](t, env)
	require.Len(t, result.Builds, 1)
	assert.Equal(t, "star-courier.apk", result.Builds[0].FileName)
	assert.EqualValues(t, len(content), result.Builds[0].FileSize)

	w, _ = s.do(http.MethodGet, "/api/uploads/"+unitID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = s.do(http.MethodGet, "/api/games/"+gameID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[struct {
		IsOwner bool `json:"isOwner"`
		Builds  []struct {
			DownloadURL string `json:"downloadUrl"`
		} `json:"builds"`
	}](t, env)
	assert.True(t, detail.IsOwner)
	require.Len(t, detail.Builds, 1)
	assert.Equal(t, "https://localhost:8080/api/files?id="+url.QueryEscape(result.Builds[0].StorageFileID), detail.Builds[0].DownloadURL)

	w, _ = s.do(http.MethodGet, "/api/files?id="+url.QueryEscape(result.Builds[0].StorageFileID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())

	w, _ = s.do(http.MethodGet, "/api/files?id="+url.QueryEscape("../../etc/passwd"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFinalizeRejectsOtherDevelopers(t *testing.T) {
	s := newTestServer(t)
	s.login()
	gameID := s.createGame(map[string]any{"title": "Mine", "genre": "Puzzle", "platforms": []string{"Web"}})

	w, _ := s.do(http.MethodPost, "/api/register", map[string]any{
		"displayName": "Rival", "email": "rival@example.com", "password": "rivalsecret",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w, env := s.do(http.MethodPost, "/api/login", map[string]any{"email": "rival@example.com", "password": "rivalsecret"})
	require.Equal(t, http.StatusOK, w.Code)
	s.token = decode[struct {
		Token string `json:"token"`
	}](t, env).Token

	w, _ = s.do(http.MethodPost, "/api/games/"+gameID+"/finalize", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodDelete, "/api/games/"+gameID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodPost, "/api/games/missing/finalize", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyConfigUpdatesUploadLimit(t *testing.T) {
	s := newTestServer(t)
	s.login()

	body := make([]byte, 3<<19)
	w, _ := s.upload("big.zip", "Windows", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// 超出上限加余量的请求体在中间件层直接拒绝
	w, _ = s.upload("huge.zip", "Windows", make([]byte, 3<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	cfg := *s.app.Config
	cfg.Upload.MaxFileSizeMB = 4
	s.app.ApplyConfig(&cfg)

	w, _ = s.upload("big.zip", "Windows", body)
	assert.Equal(t, http.StatusAccepted, w.Code)
	w, _ = s.upload("huge.zip", "Android", make([]byte, 3<<20))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestDashboardListsProjects(t *testing.T) {
	s := newTestServer(t)
	s.login()
	s.createGame(map[string]any{"title": "Live One", "genre": "Action", "platforms": []string{"Windows"}})
	s.createGame(map[string]any{"title": "Hidden One", "genre": "Action", "platforms": []string{"Windows"}, "visibility": "private"})

	w, env := s.do(http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	d := decode[service.Dashboard](t, env)
	assert.Len(t, d.Projects, 2)
	assert.Equal(t, 2, d.Stats.TotalProjects)
	assert.Equal(t, 1, d.Stats.Drafts)
	assert.Empty(t, d.Library)
}

func TestUploadEventsStreamSnapshot(t *testing.T) {
	s := newTestServer(t)
	s.login()
	srv := httptest.NewServer(s.app.Router)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/uploads/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	sc := bufio.NewScanner(resp.Body)
	require.True(t, sc.Scan())
	assert.Equal(t, "event:snapshot", strings.TrimSpace(sc.Text()))
	require.True(t, sc.Scan())
	assert.Equal(t, "data:[]", strings.TrimSpace(sc.Text()))
}

func (s *testServer) loginAs(name, email, password string) {
	s.t.Helper()
	s.token = ""
	w, _ := s.do(http.MethodPost, "/api/register", map[string]any{
		"displayName": name, "email": email, "password": password,
	})
	require.Equal(s.t, http.StatusCreated, w.Code)
	w, env := s.do(http.MethodPost, "/api/login", map[string]any{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, w.Code)
	s.token = decode[struct {
		Token string `json:"token"`
	}](s.t, env).Token
}

// publishBuild 上传一个构建并挂到游戏上，返回存储文件 ID
func (s *testServer) publishBuild(gameID, filename, platform string, content []byte) string {
	s.t.Helper()
	w, env := s.upload(filename, platform, content)
	require.Equal(s.t, http.StatusAccepted, w.Code, w.Body.String())
	unitID := decode[struct {
		UnitID string `json:"unitId"`
	}](s.t, env).UnitID

	require.Eventually(s.t, func() bool {
		w, env := s.do(http.MethodGet, "/api/uploads/"+unitID, nil)
		return w.Code == http.StatusOK && decode[struct {
			State string `json:"state"`
		}](s.t, env).State == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	w, env = s.do(http.MethodPost, "/api/games/"+gameID+"/finalize", nil)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	result := decode[struct {
		Builds []struct {
			StorageFileID string `json:"storageFileId"`
		} `json:"builds"`
	}](s.t, env)
	require.Len(s.t, result.Builds, 1)
	return result.Builds[0].StorageFileID
}

type buildLinks struct {
	Builds []struct {
		ID          string `json:"id"`
		DownloadURL string `json:"downloadUrl"`
	} `json:"builds"`
}

func TestPaidBuildFilesRequirePurchase(t *testing.T) {
	s := newTestServer(t)
	s.login()
	paidID := s.createGame(map[string]any{"title": "Vault Runner", "genre": "Action", "platforms": []string{"Android"}, "price": 4.99})
	content := bytes.Repeat([]byte("paid"), 1024)
	paidFile := s.publishBuild(paidID, "vault.apk", "Android", content)
	freeID := s.createGame(map[string]any{"title": "Open Field", "genre": "Casual", "platforms": []string{"Windows"}, "isFree": true})
	freeFile := s.publishBuild(freeID, "field.zip", "Windows", []byte("free build"))
	fileURL := func(id string) string { return "/api/files?id=" + url.QueryEscape(id) }

	// 开发者本人可以直接下载
	w, _ := s.do(http.MethodGet, fileURL(paidFile), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())

	// 游客
	s.token = ""
	w, _ = s.do(http.MethodGet, fileURL(paidFile), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, env := s.do(http.MethodGet, "/api/games/"+paidID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	links := decode[buildLinks](t, env)
	require.Len(t, links.Builds, 1)
	assert.Empty(t, links.Builds[0].DownloadURL)

	// 未购买的玩家
	s.loginAs("Player One", "player@example.com", "playersecret")
	w, env = s.do(http.MethodGet, "/api/games/"+paidID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	links = decode[buildLinks](t, env)
	require.Len(t, links.Builds, 1)
	assert.Empty(t, links.Builds[0].DownloadURL)

	w, env = s.do(http.MethodGet, fileURL(paidFile), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, http.StatusForbidden, env.Code)
	w, _ = s.do(http.MethodPost, "/api/games/"+paidID+"/builds/"+links.Builds[0].ID+"/download", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 免费游戏对任何登录用户开放
	w, env = s.do(http.MethodGet, "/api/games/"+freeID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	links = decode[buildLinks](t, env)
	require.Len(t, links.Builds, 1)
	assert.NotEmpty(t, links.Builds[0].DownloadURL)
	w, _ = s.do(http.MethodGet, fileURL(freeFile), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("free build"), w.Body.Bytes())

	w, _ = s.do(http.MethodGet, fileURL("builds/unknown.zip"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
