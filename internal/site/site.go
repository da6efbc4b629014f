package site

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultEntryPage is written on first start so the redirect always has
// something to land on.
const defaultEntryPage = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>Welcome</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
               display: flex; justify-content: center; align-items: center;
               height: 100vh; margin: 0; background: #f5f5f5; }
        .container { text-align: center; padding: 40px; background: white;
                     border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
        h1 { color: #333; margin-bottom: 10px; }
        p { color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Doorman is running</h1>
        <p>Replace this page in the web root with your own entry page.</p>
    </div>
</body>
</html>
`

var webRootDir string

// Init prepares the web root: creates the directory tree and writes the
// default entry page if the target does not exist yet.
func Init(webRoot, target string) error {
	if err := os.MkdirAll(webRoot, 0755); err != nil {
		return fmt.Errorf("failed to create web root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(webRoot, "static"), 0755); err != nil {
		return fmt.Errorf("failed to create static directory: %w", err)
	}
	webRootDir = webRoot

	if EntryExists(target) {
		return nil
	}

	path := entryPath(target)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create entry page directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultEntryPage), 0644); err != nil {
		return fmt.Errorf("failed to write default entry page: %w", err)
	}

	return nil
}

// GetWebRoot returns the active web root directory
func GetWebRoot() string {
	return webRootDir
}

// EntryExists checks whether the entry page is present in the web root
func EntryExists(target string) bool {
	info, err := os.Stat(entryPath(target))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// entryPath resolves the target inside the web root. Cleaning a rooted path
// keeps a misconfigured target from escaping the web root.
func entryPath(target string) string {
	return filepath.Join(webRootDir, filepath.Clean("/"+target))
}
