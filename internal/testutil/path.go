package testutil

import (
	"path/filepath"
	"runtime"
)

// Path creates a platform-independent absolute path. Each part may itself
// contain forward slashes, which are converted to the OS separator. Use this
// in tests instead of hardcoded paths like "/root/file.txt" to ensure tests
// pass on Windows.
//
// On Unix, Path("/", "home", "user/docs") returns "/home/user/docs"
// On Windows, it returns "C:\\home\\user\\docs"
//
// The first argument should be "/" to indicate an absolute path from root.
// Without it the result is relative.
func Path(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}

	native := make([]string, len(parts))
	for i, p := range parts {
		native[i] = filepath.FromSlash(p)
	}

	if parts[0] != "/" {
		return filepath.Join(native...)
	}
	if runtime.GOOS == "windows" {
		// C: alone is relative, so root at C:\
		return "C:\\" + filepath.Join(native[1:]...)
	}
	return filepath.Join(native...)
}
