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

// Package staticfile short-circuits requests under a configured prefix
// straight to disk, bypassing the worker's scheduler/protocol-adapter path
// entirely, per spec.md §4.8.
package staticfile

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// chunkSize bounds how much of a file is read into memory at once while
// streaming a response body.
const chunkSize = 128 * 1024

// Config describes one static root mounted under Prefix.
type Config struct {
	Root         string
	Prefix       string
	Expires      int
	PathSecurity PathSecurityConfig
	Headers      HeadersConfig
}

// Handler serves files rooted at Config.Root for requests whose path
// starts with Config.Prefix. The security and header profiles can be
// swapped at runtime via SetPathSecurity/SetHeaders.
type Handler struct {
	mu  sync.RWMutex
	cfg Config
}

// New builds a Handler from cfg, filling PathSecurity/Headers with their
// defaults when left zero-valued.
func New(cfg Config) *Handler {
	if isZeroPathSecurity(cfg.PathSecurity) {
		cfg.PathSecurity = DefaultPathSecurityConfig()
	}
	if isZeroHeaders(cfg.Headers) {
		cfg.Headers = DefaultHeadersConfig()
	}
	return &Handler{cfg: cfg}
}

func isZeroPathSecurity(cfg PathSecurityConfig) bool {
	return !cfg.Enabled && !cfg.AllowDotFiles && cfg.MaxPathDepth == 0 && cfg.BlockedPatterns == nil
}

func isZeroHeaders(cfg HeadersConfig) bool {
	return !cfg.EnableCacheControl && cfg.CacheMaxAge == 0 && !cfg.CachePublic &&
		!cfg.EnableETag && !cfg.EnableContentType &&
		cfg.AllowedMimeTypes == nil && cfg.DenyMimeTypes == nil && cfg.CustomMimeTypes == nil
}

// SetPathSecurity replaces the traversal/pattern guard profile.
func (h *Handler) SetPathSecurity(cfg PathSecurityConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.PathSecurity = cfg
}

// GetPathSecurity returns the current traversal/pattern guard profile.
func (h *Handler) GetPathSecurity() PathSecurityConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.PathSecurity
}

// SetHeaders replaces the response-header profile.
func (h *Handler) SetHeaders(cfg HeadersConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.Headers = cfg
}

// GetHeaders returns the current response-header profile.
func (h *Handler) GetHeaders() HeadersConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.Headers
}

// IsPathSafe reports whether r's URL path passes the handler's current
// security profile, without touching the filesystem.
func (h *Handler) IsPathSafe(urlPath string) bool {
	return IsPathSafe(h.GetPathSecurity(), urlPath)
}

// TryServe attempts to serve r straight from disk. It returns false
// (writing nothing) when the path falls outside Prefix, fails the
// security profile, resolves outside Root, or names something other than
// a regular file — letting the caller fall through to the worker's normal
// dispatch path. A true return means the response has been fully written.
func (h *Handler) TryServe(w http.ResponseWriter, r *http.Request) bool {
	h.mu.RLock()
	cfg := h.cfg
	h.mu.RUnlock()

	if !strings.HasPrefix(r.URL.Path, cfg.Prefix) {
		return false
	}

	rel := strings.TrimPrefix(r.URL.Path, cfg.Prefix)

	if !IsPathSafe(cfg.PathSecurity, rel) {
		return false
	}

	resolved := filepath.Join(cfg.Root, filepath.FromSlash(rel))

	relCheck, err := filepath.Rel(cfg.Root, resolved)
	if err != nil || relCheck == ".." || strings.HasPrefix(relCheck, ".."+string(filepath.Separator)) {
		return false
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return false
	}
	if !info.Mode().IsRegular() {
		return false
	}

	f, err := os.Open(resolved)
	if err != nil {
		return false
	}
	defer f.Close()

	etag := fmt.Sprintf(`"%x-%x"`, info.ModTime().UnixNano(), info.Size())
	contentType := cfg.Headers.apply(w, resolved, etag)
	if !cfg.Headers.mimeAllowed(contentType) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return true
	}
	if cfg.Expires > 0 && !cfg.Headers.EnableCacheControl {
		w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", cfg.Expires))
	}

	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, chunkSize)
	flusher, _ := w.(http.Flusher)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return true
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			break
		}
	}

	return true
}
