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
	"path"
	"strings"
)

// PathSecurityConfig governs the traversal and pattern guards TryServe
// applies before ever touching the filesystem.
type PathSecurityConfig struct {
	Enabled         bool
	AllowDotFiles   bool
	MaxPathDepth    int
	BlockedPatterns []string
}

// DefaultPathSecurityConfig is the guard profile applied when a Config
// leaves PathSecurity unset: traversal blocked, dot-files blocked, depth
// capped at 10, and the common sensitive-file patterns denied.
func DefaultPathSecurityConfig() PathSecurityConfig {
	return PathSecurityConfig{
		Enabled:       true,
		AllowDotFiles: false,
		MaxPathDepth:  10,
		BlockedPatterns: []string{
			".git", ".env", ".htaccess", "wp-admin", "node_modules",
		},
	}
}

// IsPathSafe reports whether urlPath may be resolved under a static root
// given cfg. It never touches the filesystem; it only reasons about the
// path's own shape, so a "safe" verdict still requires a subsequent
// filepath.Rel containment check against the resolved root (see TryServe).
func IsPathSafe(cfg PathSecurityConfig, urlPath string) bool {
	if !cfg.Enabled {
		return true
	}

	if strings.ContainsRune(urlPath, 0) {
		return false
	}

	normalized := strings.ReplaceAll(urlPath, "\\", "/")
	clean := path.Clean("/" + normalized)

	for _, seg := range strings.Split(normalized, "/") {
		if seg == ".." {
			return false
		}
	}

	if !cfg.AllowDotFiles {
		for _, seg := range strings.Split(clean, "/") {
			if seg == "" || seg == "." {
				continue
			}
			if strings.HasPrefix(seg, ".") {
				return false
			}
		}
	}

	if cfg.MaxPathDepth > 0 {
		depth := 0
		for _, seg := range strings.Split(clean, "/") {
			if seg == "" || seg == "." {
				continue
			}
			depth++
		}
		if depth > cfg.MaxPathDepth {
			return false
		}
	}

	lower := strings.ToLower(clean)
	for _, pattern := range cfg.BlockedPatterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return false
		}
	}

	return true
}
