package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore marks responses as live data that proxies and browsers must not
// cache, e.g. room snapshots and leaderboards.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
