package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/crucible"
)

// Build metadata injected from main via SetVersionInfo.
var (
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
	appName      string

	analysisMu   sync.RWMutex
	analysisInfo *AnalysisInfo
)

// SetVersionInfo sets the version information for the handler
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// SetAppName sets the application name reported by the handler.
func SetAppName(name string) {
	appName = name
}

// SetAnalysisInfo publishes the active analysis settings; nil hides the section.
func SetAnalysisInfo(info *AnalysisInfo) {
	analysisMu.Lock()
	defer analysisMu.Unlock()
	if info == nil {
		analysisInfo = nil
		return
	}
	copied := *info
	analysisInfo = &copied
}

// VersionResponse represents the version information response
type VersionResponse struct {
	App          AppInfo       `json:"app"`
	Analysis     *AnalysisInfo `json:"analysis,omitempty"`
	Dependencies DepInfo       `json:"dependencies"`
	Runtime      RuntimeInfo   `json:"runtime"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// AnalysisInfo describes how analyses are served by this process.
type AnalysisInfo struct {
	PromptSlug        string `json:"prompt_slug"`
	UsageLimit        string `json:"usage_limit"`
	KnowledgeBackend  string `json:"knowledge_backend"`
	ServiceConfigured bool   `json:"service_configured"`
	RunnerEnabled     bool   `json:"runner_enabled"`
}

// DepInfo contains dependency version information
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// RuntimeInfo contains runtime environment information
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

func reportedAppName() string {
	if appName != "" {
		return appName
	}
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "unknown"
}

// VersionHandler handles version information requests
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	deps := crucible.GetVersion()

	analysisMu.RLock()
	var analysis *AnalysisInfo
	if analysisInfo != nil {
		copied := *analysisInfo
		analysis = &copied
	}
	analysisMu.RUnlock()

	response := VersionResponse{
		App: AppInfo{
			Name:      reportedAppName(),
			Version:   AppVersion,
			Commit:    AppCommit,
			BuildDate: AppBuildDate,
			GoVersion: runtime.Version(),
		},
		Analysis: analysis,
		Dependencies: DepInfo{
			Gofulmen: deps.Gofulmen,
			Crucible: deps.Crucible,
		},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
