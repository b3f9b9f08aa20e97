package util

import (
	"path/filepath"
	"strings"
)

const MiB = 1 << 20

// HasAllowedExtension 不区分大小写比较文件后缀
func HasAllowedExtension(filename string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(ext, a) {
			return true
		}
	}
	return false
}

// HasAllowedContentType 忽略 "; charset=..." 之类的参数
func HasAllowedContentType(contentType string, allowed []string) bool {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if mediaType == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(mediaType, a) {
			return true
		}
	}
	return false
}

// SanitizeFilename 去掉路径并替换空格，用于拼接对象名
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.ReplaceAll(name, " ", "-")
}
