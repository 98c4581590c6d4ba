/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package staticfile

import (
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
)

// HeadersConfig governs the response headers TryServe attaches to a
// successfully resolved file.
type HeadersConfig struct {
	EnableCacheControl bool
	CacheMaxAge        int
	CachePublic        bool
	EnableETag         bool
	EnableContentType  bool
	AllowedMimeTypes   []string
	DenyMimeTypes      []string
	CustomMimeTypes    map[string]string
}

// DefaultHeadersConfig is the header profile applied when a Config leaves
// Headers unset: one hour public caching, ETag and Content-Type on, and
// executable MIME types denied.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		EnableCacheControl: true,
		CacheMaxAge:        3600,
		CachePublic:        true,
		EnableETag:         true,
		EnableContentType:  true,
		DenyMimeTypes:      []string{"application/x-executable", "application/x-msdownload"},
	}
}

func (cfg HeadersConfig) contentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := cfg.CustomMimeTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (cfg HeadersConfig) mimeAllowed(contentType string) bool {
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])

	for _, denied := range cfg.DenyMimeTypes {
		if strings.EqualFold(denied, base) {
			return false
		}
	}

	if len(cfg.AllowedMimeTypes) == 0 {
		return true
	}
	for _, allowed := range cfg.AllowedMimeTypes {
		if strings.EqualFold(allowed, base) {
			return true
		}
	}
	return false
}

func (cfg HeadersConfig) apply(w http.ResponseWriter, name string, etag string) string {
	contentType := cfg.contentType(name)

	if cfg.EnableContentType {
		w.Header().Set("Content-Type", contentType)
	}

	if cfg.EnableCacheControl {
		scope := "private"
		if cfg.CachePublic {
			scope = "public"
		}
		w.Header().Set("Cache-Control", scope+", max-age="+strconv.Itoa(cfg.CacheMaxAge))
	}

	if cfg.EnableETag && etag != "" {
		w.Header().Set("ETag", etag)
	}

	return contentType
}
