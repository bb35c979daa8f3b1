package correlator

import "time"

// Clock はエンジンの時刻源とタイマー。テストでは手動で進める実装に差し替える。
type Clock interface {
	Now() time.Time
	// AfterFunc は d 経過後に f を別goroutineで1回だけ呼ぶ。キャンセルはしない。
	AfterFunc(d time.Duration, f func())
}

type systemClock struct{}

// SystemClock は time パッケージをそのまま使う Clock
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}
