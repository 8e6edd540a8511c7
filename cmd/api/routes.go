package main

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/note-forge/internal/auth"
	"github.com/yourusername/note-forge/internal/config"
	"github.com/yourusername/note-forge/internal/jobs"
	"github.com/yourusername/note-forge/internal/notes"
	"github.com/yourusername/note-forge/internal/storage"
)

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, svc *notes.Service, manager *jobs.Manager, media storage.Store) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	authManager := auth.NewManager(cfg)

	opts := notes.HandlerOptions{
		NotesPerPage:   cfg.NotesPerPage,
		EntriesPerPage: cfg.EntriesPerPage,
	}

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/logout",
				authManager.RequireLogin(),
				authManager.VerifyCSRF(),
				authManager.Logout,
			)
		}

		protected := api.Group("")
		protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
		{
			protected.GET("/notes", notes.ListNotesHandler(svc, opts))
			protected.POST("/notes", notes.CreateNoteHandler(svc))
			protected.GET("/notes/:noteID/entries", notes.ListEntriesHandler(svc, svc, opts))
			protected.POST("/notes/:noteID/entries", notes.CreateEntryHandler(svc))
			protected.PUT("/notes/:noteID/entries/:entryID", notes.UpdateEntryHandler(svc))
			protected.DELETE("/notes/:noteID/entries/:entryID", notes.DeleteEntryHandler(svc))
			protected.POST("/notes/:noteID/export/pdf", notes.ExportHandler(svc, manager))
			protected.GET("/task/:taskID", taskStatusHandler(manager))
		}
	}

	mediaRoutes := router.Group("/media", authManager.RequireLogin())
	{
		mediaRoutes.GET("/notes/img/:year/:month/:day/:filename", notes.ImageHandler(media))
		mediaRoutes.GET("/notes/pdf/:filename", notes.ArtifactHandler(media))
	}
}
