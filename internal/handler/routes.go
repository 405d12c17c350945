package handler

import "github.com/gin-gonic/gin"

// Handlers groups every HTTP handler of the API.
type Handlers struct {
	Integrations *IntegrationHandler
	Calendar     *CalendarHandler
	Events       *EventHandler
	Courses      *CourseHandler
	Sync         *SyncHandler
	Realtime     *RealtimeHandler
	Metrics      *MetricsHandler
}

// Register mounts the API under prefix. auth guards private routes; wsAuth guards the websocket.
func (h Handlers) Register(r *gin.Engine, prefix string, auth, wsAuth gin.HandlerFunc) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/metrics", h.Metrics.Prometheus)
	}

	api := r.Group(prefix)
	if h.Calendar != nil {
		api.GET("/feeds/:token", h.Calendar.Feed)
	}
	if h.Realtime != nil {
		api.GET("/ws", wsAuth, h.Realtime.Stream)
	}

	private := api.Group("", auth)
	if h.Metrics != nil {
		private.GET("/metrics/system", h.Metrics.System)
	}
	if h.Integrations != nil {
		private.GET("/integrations", h.Integrations.List)
		private.PUT("/integrations/:provider", h.Integrations.Connect)
		private.DELETE("/integrations/:provider", h.Integrations.Disconnect)
	}
	if h.Calendar != nil {
		private.GET("/calendar/window", h.Calendar.Window)
		private.GET("/calendar/upcoming", h.Calendar.Upcoming)
		private.GET("/calendar/export", h.Calendar.Export)
		private.GET("/calendar/feed-link", h.Calendar.FeedLink)
	}
	if h.Courses != nil {
		private.GET("/courses", h.Courses.List)
		private.GET("/courses/:id/analysis", h.Courses.Analysis)
		private.POST("/courses/:id/analysis", h.Courses.Analyze)
		private.DELETE("/courses/:id/analysis", h.Courses.Invalidate)
		private.POST("/courses/:id/syllabus", h.Courses.UploadSyllabus)
	}
	if h.Events != nil {
		private.POST("/events", h.Events.Create)
		private.GET("/events/free-slots", h.Events.FreeSlots)
		private.PUT("/events/:id", h.Events.Update)
		private.DELETE("/events/:id", h.Events.Delete)
		private.POST("/events/:id/study-session", h.Events.StudySession)
	}
	if h.Sync != nil {
		private.POST("/sync", h.Sync.Sync)
		private.POST("/sync/retry", h.Sync.Retry)
		private.GET("/sync/jobs/:id", h.Sync.Job)
	}
}
