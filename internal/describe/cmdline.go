package describe

import (
	"regexp"
	"strings"
)

var parentApps = map[string]string{
	"chrome":         "Google Chrome",
	"msedge":         "Microsoft Edge",
	"brave":          "Brave Browser",
	"opera":          "Opera",
	"firefox":        "Firefox",
	"code":           "VS Code",
	"explorer":       "Windows Explorer",
	"msedgewebview2": "Edge WebView2",
	"systemd":        "systemd",
	"gnome-shell":    "GNOME Shell",
}

var (
	webviewExeRe = regexp.MustCompile(`--webview-exe-name=(\S+)`)
	jarRe        = regexp.MustCompile(`-jar\s+"?([^"\s]+)`)
	mainClassRe  = regexp.MustCompile(`(?:^|\s)([a-zA-Z_]\w*(?:\.[a-zA-Z_]\w*)+)\s*$`)
	psFileRe     = regexp.MustCompile(`(?i)-(?:file|f)\s+"?([^"\s]+)`)
	svchostRe    = regexp.MustCompile(`-s\s+(\S+)`)
)

// ParentAppName returns a friendly name for a known parent process.
func ParentAppName(name string) string {
	if friendly, ok := parentApps[baseName(name)]; ok {
		return friendly
	}
	return name
}

// baseName lowercases and strips a Windows executable suffix so that
// "Chrome.exe" and "chrome" share heuristics.
func baseName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".exe")
}

// FromCmdline extracts a description from a process's command line. It
// returns false when no heuristic matches.
func FromCmdline(name, cmdline string) (string, bool) {
	base := baseName(name)
	lower := strings.ToLower(cmdline)

	switch base {
	case "chrome", "msedge", "brave", "opera", "chromium", "google-chrome":
		return chromium(ParentAppName(name), lower)
	case "code":
		return vscode(lower)
	case "msedgewebview2":
		switch {
		case strings.Contains(lower, "--type=renderer"):
			return "Edge WebView2 - Rendering web content for an app", true
		case strings.Contains(lower, "--type=gpu-process"):
			return "Edge WebView2 - GPU acceleration for embedded web content", true
		}
		if m := webviewExeRe.FindStringSubmatch(cmdline); m != nil {
			return "Edge WebView2 - Embedded browser for " + m[1], true
		}
	case "python", "pythonw", "python3":
		return python(cmdline), true
	case "node":
		return node(cmdline, lower), true
	case "java", "javaw":
		return java(cmdline, lower)
	case "cmd":
		for _, flag := range []string{"/c ", "/k "} {
			if i := strings.Index(lower, flag); i >= 0 {
				return "Command Prompt - Running: " + truncate(cmdline[i+len(flag):], 80), true
			}
		}
	case "powershell", "pwsh":
		shell := "PowerShell"
		if base == "pwsh" {
			shell = "PowerShell 7"
		}
		if m := psFileRe.FindStringSubmatch(cmdline); m != nil {
			return shell + " - Running script: " + fileBase(m[1]), true
		}
		if strings.Contains(lower, "-encodedcommand") {
			return shell + " - Running an encoded command", true
		}
		if strings.Contains(lower, "-command ") || strings.Contains(lower, "-c ") {
			return shell + " - Running a command", true
		}
	case "svchost":
		if m := svchostRe.FindStringSubmatch(cmdline); m != nil {
			return "Service Host - Running service: " + m[1], true
		}
	}
	return "", false
}

func chromium(browser, lower string) (string, bool) {
	switch {
	case strings.Contains(lower, "--type=renderer"):
		return browser + " - Tab renderer (displays a web page)", true
	case strings.Contains(lower, "--type=gpu-process"):
		return browser + " - GPU process (hardware-accelerated graphics)", true
	case strings.Contains(lower, "--type=utility"):
		switch {
		case strings.Contains(lower, "network"):
			return browser + " - Network service (handles all web requests)", true
		case strings.Contains(lower, "audio"):
			return browser + " - Audio service (plays sounds from web pages)", true
		case strings.Contains(lower, "storage"):
			return browser + " - Storage service (manages cookies, cache, etc.)", true
		}
		return browser + " - Utility process (background helper)", true
	case strings.Contains(lower, "--type=crashpad-handler"):
		return browser + " - Crash reporter (sends crash data if the browser crashes)", true
	case strings.Contains(lower, "--type=broker"):
		return browser + " - Security broker (manages permissions between processes)", true
	case !strings.Contains(lower, "--type="):
		return browser + " - Main browser process (manages all tabs and extensions)", true
	}
	return "", false
}

func vscode(lower string) (string, bool) {
	switch {
	case strings.Contains(lower, "--type=renderer"):
		return "VS Code - Editor window renderer", true
	case strings.Contains(lower, "--type=gpu-process"):
		return "VS Code - GPU acceleration process", true
	case strings.Contains(lower, "--type=utility"):
		return "VS Code - Utility helper process", true
	case strings.Contains(lower, "extensionhost"):
		return "VS Code - Extension Host (runs all your extensions)", true
	case !strings.Contains(lower, "--type="):
		return "VS Code - Main process", true
	}
	return "", false
}

func python(cmdline string) string {
	parts := strings.Fields(cmdline)
	for i := 1; i < len(parts); i++ {
		p := strings.Trim(parts[i], `"'`)
		switch {
		case strings.HasSuffix(p, ".py"), strings.HasSuffix(p, ".pyw"):
			return "Python - Running script: " + fileBase(p)
		case p == "-m" && i+1 < len(parts):
			return "Python - Running module: " + strings.Trim(parts[i+1], `"`)
		case p == "-c":
			return "Python - Running inline code"
		}
	}
	return "Python - Interpreter running"
}

func node(cmdline, lower string) string {
	parts := strings.Fields(cmdline)
	for i := 1; i < len(parts); i++ {
		p := strings.Trim(parts[i], `"'`)
		if strings.HasSuffix(p, ".js") || strings.HasSuffix(p, ".mjs") || strings.HasSuffix(p, ".ts") {
			return "Node.js - Running: " + fileBase(p)
		}
	}
	switch {
	case strings.Contains(lower, "npm"):
		return "Node.js - Running npm (package manager)"
	case strings.Contains(lower, "npx"):
		return "Node.js - Running npx command"
	}
	return "Node.js - JavaScript runtime"
}

func java(cmdline, lower string) (string, bool) {
	switch {
	case strings.Contains(lower, "minecraft"):
		return "Java - Running Minecraft", true
	case strings.Contains(lower, "eclipse"):
		return "Java - Running Eclipse IDE", true
	}
	if m := jarRe.FindStringSubmatch(cmdline); m != nil {
		return "Java - Running: " + fileBase(m[1]), true
	}
	if m := mainClassRe.FindStringSubmatch(cmdline); m != nil {
		return "Java - Running class: " + m[1], true
	}
	return "", false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// fileBase handles both slash styles; command lines may come from either OS.
func fileBase(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
