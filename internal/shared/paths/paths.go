package paths

import (
	"os"
	"path/filepath"
)

const dataDirName = ".live-tiktok"

var dbPathOverride string

// SetDBPath は --db フラグや設定で指定されたパスを優先させる
func SetDBPath(path string) {
	dbPathOverride = path
}

// GetDataDir はデータディレクトリ（~/.live-tiktok）を返す
func GetDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return dataDirName
	}
	return filepath.Join(home, dataDirName)
}

// GetDBPath はSQLiteファイルのパスを返す
func GetDBPath() string {
	if dbPathOverride != "" {
		return dbPathOverride
	}
	return filepath.Join(GetDataDir(), "local.db")
}

// EnsureDataDirs はデータディレクトリとDBファイルの親ディレクトリを作成する
func EnsureDataDirs() error {
	if err := os.MkdirAll(GetDataDir(), 0o755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Dir(GetDBPath()), 0o755)
}
