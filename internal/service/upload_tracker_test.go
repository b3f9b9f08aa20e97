package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"gamehub_backend/internal/config"
	"gamehub_backend/internal/model"
	"gamehub_backend/internal/repository"
	"gamehub_backend/internal/testutil"
	"gamehub_backend/internal/util"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zeroReader struct{}

func (zeroReader) Read(b []byte) (int, error) {
	clear(b)
	return len(b), nil
}

// memFile 指定大小的全零文件，不占用内存
type memFile struct {
	name        string
	size        int64
	contentType string
}

func (f memFile) Name() string        { return f.name }
func (f memFile) Size() int64         { return f.size }
func (f memFile) ContentType() string { return f.contentType }
func (f memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(io.LimitReader(zeroReader{}, f.size)), nil
}

// gatedProvider 读完一半数据后在对应平台的闸门处等待
type gatedProvider struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	halfway map[string]chan struct{}
	objects map[string]int64
	deleted []string
	failErr error
}

func newGatedProvider() *gatedProvider {
	return &gatedProvider{
		gates:   make(map[string]chan struct{}),
		halfway: make(map[string]chan struct{}),
		objects: make(map[string]int64),
	}
}

func platformDir(p model.Platform) string {
	return strings.ToLower(strings.ReplaceAll(string(p), " ", "-"))
}

// gate 为平台加闸门，返回“已过半”信号与放行函数
func (p *gatedProvider) gate(platform model.Platform) (<-chan struct{}, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dir := platformDir(platform)
	gate, half := make(chan struct{}), make(chan struct{})
	p.gates[dir] = gate
	p.halfway[dir] = half
	var once sync.Once
	return half, func() { once.Do(func() { close(gate) }) }
}

func (p *gatedProvider) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	dir := strings.Split(objectName, "/")[1]

	p.mu.Lock()
	gate, half, failErr := p.gates[dir], p.halfway[dir], p.failErr
	p.mu.Unlock()

	if _, err := io.CopyN(io.Discard, reader, size/2); err != nil {
		return "", err
	}
	if failErr != nil {
		return "", failErr
	}
	if gate != nil {
		close(half)
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	n, err := io.Copy(io.Discard, reader)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.objects[objectName] = size/2 + n
	p.mu.Unlock()
	return objectName, nil
}

func (p *gatedProvider) Delete(ctx context.Context, fileID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, fileID)
	p.deleted = append(p.deleted, fileID)
	return nil
}

func (p *gatedProvider) Locate(ctx context.Context, fileID string) (*FileLocation, error) {
	return &FileLocation{URL: "https://signed.example.com/" + fileID}, nil
}

func (p *gatedProvider) Type() string { return "memory" }

func (p *gatedProvider) objectCount(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for name := range p.objects {
		if strings.HasPrefix(name, prefix) {
			n++
		}
	}
	return n
}

type trackerFixture struct {
	tracker  *UploadTracker
	provider *gatedProvider
	games    *repository.GameRepository
	builds   *repository.GameBuildRepository
	gameID   string
	userID   uint
}

func newTrackerFixture(t *testing.T) *trackerFixture {
	return newMirroredTrackerFixture(t, nil)
}

// newMirroredTrackerFixture mirror 为 nil 时不同步进度
func newMirroredTrackerFixture(t *testing.T, mirror ProgressMirror) *trackerFixture {
	db := testutil.NewTestDB(t)
	users := repository.NewUserRepository(db)
	games := repository.NewGameRepository(db)

	dev := &model.User{Name: "Pixel Forge", Email: "dev@example.com", Password: "x", UserType: model.Developer}
	require.NoError(t, users.Create(dev))
	game := &model.Game{
		Title:       "Star Courier",
		Developer:   dev.Name,
		DeveloperID: dev.ID,
		Genre:       model.GenreArcade,
		Platforms:   []model.Platform{model.PlatformWindows, model.PlatformAndroid},
		Tags:        []string{},
		Screenshots: []string{},
		Status:      model.StatusPublished,
		Visibility:  model.VisibilityPublic,
	}
	require.NoError(t, games.Create(game))

	provider := newGatedProvider()
	storage := NewStorageServiceWithProvider(provider, config.StorageConfig{PublicHost: "cdn.gamehub.test", DownloadRoute: "api/files"})
	policy := UploadPolicyFromConfig(config.UploadConfig{
		MaxFileSizeMB:       500,
		AllowedExtensions:   []string{".zip", ".exe", ".apk"},
		AllowedContentTypes: []string{"application/zip", "application/octet-stream"},
	})
	tracker := NewUploadTracker(Principal{UserID: dev.ID, Name: dev.Name}, storage, games, mirror, policy)
	t.Cleanup(tracker.Close)

	return &trackerFixture{
		tracker:  tracker,
		provider: provider,
		games:    games,
		builds:   repository.NewGameBuildRepository(db),
		gameID:   game.ID,
		userID:   dev.ID,
	}
}

func (f *trackerFixture) waitState(t *testing.T, unitID string, state model.UploadState) model.UploadUnit {
	t.Helper()
	var unit model.UploadUnit
	require.Eventually(t, func() bool {
		u, err := f.tracker.Get(unitID)
		unit = u
		return err == nil && u.State == state
	}, 5*time.Second, 10*time.Millisecond)
	return unit
}

func TestStartUploadRejectsOversizedFile(t *testing.T) {
	f := newTrackerFixture(t)
	events, cancel := f.tracker.Subscribe()
	defer cancel()

	id, err := f.tracker.StartUpload(memFile{name: "huge.zip", size: 600 << 20, contentType: "application/zip"}, model.PlatformWindows)
	assert.ErrorIs(t, err, util.ErrValidationRejected)
	assert.Empty(t, id)
	assert.Empty(t, f.tracker.List())

	select {
	case ev := <-events:
		t.Fatalf("rejected file produced event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartUploadValidation(t *testing.T) {
	f := newTrackerFixture(t)

	cases := map[string]struct {
		file     memFile
		platform model.Platform
		ok       bool
	}{
		"apk by extension":        {memFile{"game.apk", 1024, "application/vnd.android.package-archive"}, model.PlatformAndroid, true},
		"exe by octet-stream":     {memFile{"setup", 1024, "application/octet-stream"}, model.PlatformWindows, true},
		"upper-case extension":    {memFile{"GAME.ZIP", 1024, ""}, model.PlatformLinux, true},
		"unsupported type":        {memFile{"game.dmg", 1024, "application/x-apple-diskimage"}, model.PlatformMac, false},
		"empty file":              {memFile{"game.zip", 0, "application/zip"}, model.PlatformWindows, false},
		"unknown platform":        {memFile{"game.zip", 1024, "application/zip"}, "Dreamcast", false},
		"exactly the size limit":  {memFile{"game.zip", 500 << 20, "application/zip"}, model.PlatformWindows, true},
		"one byte over the limit": {memFile{"game.zip", 500<<20 + 1, "application/zip"}, model.PlatformWindows, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.tracker.Validate(tc.file, tc.platform)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, util.ErrValidationRejected)
			}
		})
	}
}

func TestUploadAndFinalizeAndroidBuild(t *testing.T) {
	f := newTrackerFixture(t)
	events, cancel := f.tracker.Subscribe()
	defer cancel()

	const size = 10 * 1024 * 1024
	id, err := f.tracker.StartUpload(memFile{name: "star-courier.apk", size: size, contentType: "application/vnd.android.package-archive"}, model.PlatformAndroid)
	require.NoError(t, err)

	unit := f.waitState(t, id, model.UploadCompleted)
	assert.Equal(t, 100, unit.Progress)
	assert.NotEmpty(t, unit.StorageFileID)
	assert.Contains(t, unit.DownloadURL, "https://cdn.gamehub.test/api/files?id=")

	first := <-events
	assert.Equal(t, model.UploadUploading, first.State)
	assert.Equal(t, id, first.UnitID)
	last := first.Progress
	for len(events) > 0 {
		ev := <-events
		assert.GreaterOrEqual(t, ev.Progress, last, "progress must not go backwards")
		last = ev.Progress
	}

	result, err := f.tracker.Finalize(context.Background(), f.gameID)
	require.NoError(t, err)
	require.Len(t, result.Builds, 1)
	assert.Empty(t, result.Pending)

	builds, err := f.builds.FindByGameID(f.gameID)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, model.PlatformAndroid, builds[0].Platform)
	assert.EqualValues(t, 10485760, builds[0].FileSize)
	assert.Equal(t, "star-courier.apk", builds[0].FileName)
	assert.Equal(t, model.DefaultBuildVersion, builds[0].Version)
	assert.Equal(t, unit.StorageFileID, builds[0].StorageFileID)

	_, err = f.tracker.Get(id)
	assert.ErrorIs(t, err, util.ErrUploadNotFound, "finalized units leave the tracker")
}

func TestRemoveThenLateCompletionCreatesNoBuild(t *testing.T) {
	f := newTrackerFixture(t)
	halfway, release := f.provider.gate(model.PlatformWindows)
	defer release()

	id, err := f.tracker.StartUpload(memFile{name: "game.exe", size: 4 << 20, contentType: "application/octet-stream"}, model.PlatformWindows)
	require.NoError(t, err)
	<-halfway

	f.tracker.mu.Lock()
	u := f.tracker.units[id]
	f.tracker.mu.Unlock()
	require.NotNil(t, u)

	require.NoError(t, f.tracker.RemoveUpload(id))
	assert.ErrorIs(t, f.tracker.RemoveUpload(id), util.ErrUploadNotFound)

	// 迟到的完成回调
	f.tracker.complete(u, "builds/windows/late-object")
	release()

	_, err = f.tracker.Get(id)
	assert.ErrorIs(t, err, util.ErrUploadNotFound)

	result, err := f.tracker.Finalize(context.Background(), f.gameID)
	require.NoError(t, err)
	assert.Empty(t, result.Builds)

	builds, err := f.builds.FindByGameID(f.gameID)
	require.NoError(t, err)
	assert.Empty(t, builds)
	assert.Eventually(t, func() bool {
		return f.provider.objectCount("builds/windows/") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestConcurrentUploadsCancelOne(t *testing.T) {
	f := newTrackerFixture(t)
	winHalfway, releaseWin := f.provider.gate(model.PlatformWindows)
	defer releaseWin()
	androidHalfway, releaseAndroid := f.provider.gate(model.PlatformAndroid)
	defer releaseAndroid()

	winID, err := f.tracker.StartUpload(memFile{name: "game.zip", size: 8 << 20, contentType: "application/zip"}, model.PlatformWindows)
	require.NoError(t, err)
	androidID, err := f.tracker.StartUpload(memFile{name: "game.apk", size: 6 << 20, contentType: ""}, model.PlatformAndroid)
	require.NoError(t, err)

	<-winHalfway
	<-androidHalfway

	android, err := f.tracker.Get(androidID)
	require.NoError(t, err)
	progressBefore := android.Progress
	assert.Greater(t, progressBefore, 0)
	assert.Less(t, progressBefore, 100)

	require.NoError(t, f.tracker.RemoveUpload(winID))

	android, err = f.tracker.Get(androidID)
	require.NoError(t, err)
	assert.Equal(t, model.UploadUploading, android.State)
	assert.Equal(t, progressBefore, android.Progress)

	releaseAndroid()
	f.waitState(t, androidID, model.UploadCompleted)

	units := f.tracker.List()
	require.Len(t, units, 1)
	assert.Equal(t, androidID, units[0].ID)
	assert.Equal(t, 0, f.provider.objectCount("builds/windows/"))
	assert.Equal(t, 1, f.provider.objectCount("builds/android/"))
}

func TestTransferFailureKeepsUnitVisible(t *testing.T) {
	f := newTrackerFixture(t)
	f.provider.failErr = errors.New("connection reset by peer")

	id, err := f.tracker.StartUpload(memFile{name: "game.zip", size: 1 << 20, contentType: "application/zip"}, model.PlatformLinux)
	require.NoError(t, err)

	unit := f.waitState(t, id, model.UploadFailed)
	assert.Equal(t, 0, unit.Progress)
	assert.Contains(t, unit.Error, util.ErrTransferFailed.Error())

	result, err := f.tracker.Finalize(context.Background(), f.gameID)
	require.NoError(t, err)
	assert.Empty(t, result.Builds)
	require.Len(t, result.Pending, 1)
	assert.Equal(t, id, result.Pending[0].ID)
}

func TestCheckCompleteReportsMissingPlatforms(t *testing.T) {
	f := newTrackerFixture(t)

	id, err := f.tracker.StartUpload(memFile{name: "game.apk", size: 2048, contentType: ""}, model.PlatformAndroid)
	require.NoError(t, err)
	f.waitState(t, id, model.UploadCompleted)

	assert.NoError(t, f.tracker.CheckComplete([]model.Platform{model.PlatformAndroid}))

	err = f.tracker.CheckComplete([]model.Platform{model.PlatformWindows, model.PlatformAndroid, model.PlatformMac})
	assert.ErrorIs(t, err, util.ErrFinalizeIncomplete)
	assert.Contains(t, err.Error(), "Windows, Mac")
}

func TestFinalizeRequiresOwner(t *testing.T) {
	f := newTrackerFixture(t)

	stranger := NewUploadTracker(Principal{UserID: 9999}, f.tracker.storage, f.games, nil, f.tracker.policy)
	defer stranger.Close()
	_, err := stranger.Finalize(context.Background(), f.gameID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	anonymous := NewUploadTracker(Principal{}, f.tracker.storage, f.games, nil, f.tracker.policy)
	defer anonymous.Close()
	_, err = anonymous.Finalize(context.Background(), f.gameID)
	assert.ErrorIs(t, err, util.ErrUnauthorized)

	_, err = f.tracker.Finalize(context.Background(), "missing-game")
	assert.ErrorIs(t, err, util.ErrGameNotFound)
}

func TestUploadSessionsPerUser(t *testing.T) {
	f := newTrackerFixture(t)
	sessions := NewUploadSessions(f.tracker.storage, f.games, nil, config.UploadConfig{MaxFileSizeMB: 1, AllowedExtensions: []string{".zip"}})
	defer sessions.Close()

	_, err := sessions.For(Principal{})
	assert.ErrorIs(t, err, util.ErrUnauthorized)

	a1, err := sessions.For(Principal{UserID: 1})
	require.NoError(t, err)
	a2, err := sessions.For(Principal{UserID: 1})
	require.NoError(t, err)
	b, err := sessions.For(Principal{UserID: 2})
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)

	big := memFile{name: "game.zip", size: 2 << 20, contentType: "application/zip"}
	assert.ErrorIs(t, a1.Validate(big, model.PlatformWindows), util.ErrValidationRejected)

	sessions.ApplyConfig(config.UploadConfig{MaxFileSizeMB: 5, AllowedExtensions: []string{".zip"}})
	assert.NoError(t, a1.Validate(big, model.PlatformWindows))
	assert.NoError(t, b.Validate(big, model.PlatformWindows))
}

func TestUploadProgressMirroredToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	f := newMirroredTrackerFixture(t, repository.NewUploadProgressRepository(rdb))
	key := fmt.Sprintf("upload_progress:%d", f.userID)

	mirrored := func(id string) (model.UploadUnit, bool) {
		raw := mr.HGet(key, id)
		if raw == "" {
			return model.UploadUnit{}, false
		}
		var u model.UploadUnit
		require.NoError(t, json.Unmarshal([]byte(raw), &u))
		return u, true
	}

	id, err := f.tracker.StartUpload(memFile{name: "sc.zip", size: 1 << 20, contentType: "application/zip"}, model.PlatformWindows)
	require.NoError(t, err)
	f.waitState(t, id, model.UploadCompleted)
	require.Eventually(t, func() bool {
		u, ok := mirrored(id)
		return ok && u.State == model.UploadCompleted && u.Progress == 100
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.tracker.RemoveUpload(id))
	_, ok := mirrored(id)
	assert.False(t, ok)

	id, err = f.tracker.StartUpload(memFile{name: "sc.apk", size: 1 << 20, contentType: "application/octet-stream"}, model.PlatformAndroid)
	require.NoError(t, err)
	f.waitState(t, id, model.UploadCompleted)
	require.Eventually(t, func() bool {
		u, ok := mirrored(id)
		return ok && u.State == model.UploadCompleted
	}, 2*time.Second, 10*time.Millisecond)

	_, err = f.tracker.Finalize(context.Background(), f.gameID)
	require.NoError(t, err)
	_, ok = mirrored(id)
	assert.False(t, ok, "finalized units leave the mirror")
}
