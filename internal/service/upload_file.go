package service

import (
	"io"
	"os"
)

// UploadFile 待上传的构建文件
type UploadFile interface {
	Name() string
	Size() int64
	ContentType() string
	Open() (io.ReadCloser, error)
}

// LocalUploadFile 已落盘到临时目录的上传文件，传输结束后由 Release 删除
type LocalUploadFile struct {
	Path     string
	Filename string
	MIMEType string
	Bytes    int64
}

func (f *LocalUploadFile) Name() string        { return f.Filename }
func (f *LocalUploadFile) Size() int64         { return f.Bytes }
func (f *LocalUploadFile) ContentType() string { return f.MIMEType }

func (f *LocalUploadFile) Open() (io.ReadCloser, error) {
	return os.Open(f.Path)
}

func (f *LocalUploadFile) Release() error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type releasable interface {
	Release() error
}
