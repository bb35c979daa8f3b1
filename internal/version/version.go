package version

import "fmt"

// ビルド時に -ldflags "-X" で埋め込む
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info は /api/status で返すビルド情報
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

func String() string {
	return fmt.Sprintf("v%s (commit: %s, built: %s)", Version, Commit, BuildTime)
}
