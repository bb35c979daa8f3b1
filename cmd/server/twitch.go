package main

import (
	"context"

	"github.com/Tirta71/live-tiktok/internal/env"
	"github.com/Tirta71/live-tiktok/internal/shared/logger"
	"github.com/Tirta71/live-tiktok/internal/twitcheventsub"
	"go.uber.org/zap"
)

// startTwitchSource はTwitch設定が揃っていればEventSubを配信元として起動する
func startTwitchSource(ctx context.Context, handler twitcheventsub.Handler) *twitcheventsub.Source {
	if !env.Value.TwitchConfigured() {
		logger.Info("Twitch is not configured, live events arrive only through the debug API")
		return nil
	}

	source, err := twitcheventsub.NewSource(twitcheventsub.Config{
		ClientID:          *env.Value.TwitchClientID,
		AccessToken:       *env.Value.TwitchAccessToken,
		BroadcasterUserID: *env.Value.TwitchUserID,
	}, handler)
	if err != nil {
		logger.Error("Failed to create EventSub source", zap.Error(err))
		return nil
	}

	go func() {
		if err := source.Run(ctx); err != nil {
			logger.Error("EventSub source stopped", zap.Error(err))
		}
	}()
	return source
}
