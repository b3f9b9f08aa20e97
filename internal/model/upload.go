package model

import "time"

type UploadState string

const (
	UploadValidating UploadState = "validating"
	UploadUploading  UploadState = "uploading"
	UploadCompleted  UploadState = "completed"
	UploadFailed     UploadState = "failed"
	UploadRejected   UploadState = "rejected"

	// 仅出现在事件中：单元被移除或已随 Finalize 生成构建
	UploadRemoved   UploadState = "removed"
	UploadFinalized UploadState = "finalized"
)

// UploadUnit 一个平台的一次上传尝试（快照）
type UploadUnit struct {
	ID            string      `json:"id"`
	Platform      Platform    `json:"platform"`
	FileName      string      `json:"fileName"`
	FileSize      int64       `json:"fileSize"`
	ContentType   string      `json:"contentType"`
	State         UploadState `json:"state"`
	Progress      int         `json:"progress"`
	StorageFileID string      `json:"storageFileId,omitempty"`
	DownloadURL   string      `json:"downloadUrl,omitempty"`
	Error         string      `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

type UploadEvent struct {
	UnitID   string      `json:"unitId"`
	Platform Platform    `json:"platform"`
	State    UploadState `json:"state"`
	Progress int         `json:"progress"`
	Error    string      `json:"error,omitempty"`
	At       time.Time   `json:"at"`
}
