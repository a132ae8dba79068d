package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/routinelog/internal/db"
	"golang.org/x/crypto/bcrypt"
)

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login 处理用户登录请求，校验通过后写入会话
func Login(c *gin.Context) {
	var payload loginPayload
	if !bindJSON(c, &payload, "登录参数不合法") {
		return
	}

	var user db.User
	if err := db.DB.Where("username = ?", strings.TrimSpace(payload.Username)).First(&user).Error; err != nil {
		respondError(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(payload.Password)); err != nil {
		respondError(c, http.StatusUnauthorized, "用户名或密码错误")
		return
	}

	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.Set("username", user.Username)
	if err := session.Save(); err != nil {
		respondError(c, http.StatusInternalServerError, "会话保存失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"username": user.Username})
}

// Logout 处理用户登出
func Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// AuthRequired 是一个简单的认证中间件，未登录请求返回 401
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get("user_id")
		if userID == nil {
			respondError(c, http.StatusUnauthorized, "请先登录")
			c.Abort()
			return
		}
		c.Next()
	}
}

// currentOwnerID 从会话中取出当前用户 ID，所有核心操作都以它做归属校验
func currentOwnerID(c *gin.Context) (uint, bool) {
	session := sessions.Default(c)
	raw := session.Get("user_id")
	if raw == nil {
		return 0, false
	}
	if id, ok := raw.(uint); ok {
		return id, true
	}
	return 0, false
}

// timezoneOffset 解析请求携带的分钟级时区偏移，缺省回退到用户配置
func timezoneOffset(c *gin.Context, ownerID uint) int {
	raw := strings.TrimSpace(c.Query("tz_offset"))
	if raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			return offset
		}
	}

	var user db.User
	if err := db.DB.First(&user, ownerID).Error; err == nil {
		return user.TimezoneOffset
	}
	return 0
}
