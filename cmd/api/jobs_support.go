package main

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/note-forge/internal/config"
	"github.com/yourusername/note-forge/internal/jobs"
)

func setupJobs(cfg *config.Config, exporter jobs.Exporter, logger *log.Logger) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 10
	}
	store := jobs.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)
	return jobs.NewManager(cfg, exporter, store, logger)
}

// taskStatusHandler は GET /api/task/:taskID のハンドラーを返します。
// キュー内部の状態語彙は jobs.Normalize で4状態へ正規化して返します。
func taskStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		taskID := strings.TrimSpace(c.Param("taskID"))
		if taskID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "taskId を指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), taskID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}

		// 未知のジョブIDは失敗扱い（進捗0・結果なし）として応答する
		c.JSON(http.StatusOK, jobs.Normalize(record))
	}
}
