package service

import (
	"gamehub_backend/internal/config"
	"gamehub_backend/internal/util"
	"sync"
)

// UploadSessions 按用户 ID 保存 UploadTracker
type UploadSessions struct {
	storage *StorageService
	linker  BuildLinker
	mirror  ProgressMirror

	mu       sync.Mutex
	policy   UploadPolicy
	trackers map[uint]*UploadTracker
}

// NewUploadSessions mirror 可为 nil
func NewUploadSessions(storage *StorageService, linker BuildLinker, mirror ProgressMirror, cfg config.UploadConfig) *UploadSessions {
	return &UploadSessions{
		storage:  storage,
		linker:   linker,
		mirror:   mirror,
		policy:   UploadPolicyFromConfig(cfg),
		trackers: make(map[uint]*UploadTracker),
	}
}

func (s *UploadSessions) For(p Principal) (*UploadTracker, error) {
	if !p.Authenticated() {
		return nil, util.ErrUnauthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trackers[p.UserID]; ok {
		return t, nil
	}
	t := NewUploadTracker(p, s.storage, s.linker, s.mirror, s.policy)
	s.trackers[p.UserID] = t
	return t, nil
}

// ApplyConfig 热更新上传限制，已存在的 tracker 一并生效
func (s *UploadSessions) ApplyConfig(cfg config.UploadConfig) {
	policy := UploadPolicyFromConfig(cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = policy
	for _, t := range s.trackers {
		t.SetPolicy(policy)
	}
}

func (s *UploadSessions) Close() {
	s.mu.Lock()
	trackers := s.trackers
	s.trackers = make(map[uint]*UploadTracker)
	s.mu.Unlock()

	for _, t := range trackers {
		t.Close()
	}
}

// MaxSize 当前单文件上限，供请求体限制中间件读取
func (s *UploadSessions) MaxSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.MaxSize
}
